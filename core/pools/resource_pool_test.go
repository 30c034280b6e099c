package pools

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeResource counts closes so tests can verify shutdown behavior.
type fakeResource struct {
	id     int
	closed atomic.Bool
}

func (r *fakeResource) Close() error {
	r.closed.Store(true)
	return nil
}

func newFakeFactory() (Factory, *atomic.Int64) {
	var created atomic.Int64
	return func() (io.Closer, error) {
		id := int(created.Add(1))
		return &fakeResource{id: id}, nil
	}, &created
}

func TestResourcePool_EagerInit(t *testing.T) {
	factory, created := newFakeFactory()
	pool, err := NewResourcePool(factory, 4)
	if err != nil {
		t.Fatalf("NewResourcePool: %v", err)
	}
	defer pool.Close()

	if created.Load() != 4 {
		t.Errorf("factory called %d times, want 4", created.Load())
	}
	if pool.Free() != 4 {
		t.Errorf("Free() = %d, want 4", pool.Free())
	}
}

func TestResourcePool_InitFailureClosesPartial(t *testing.T) {
	boom := errors.New("backend down")
	var made []*fakeResource
	factory := func() (io.Closer, error) {
		if len(made) == 2 {
			return nil, boom
		}
		r := &fakeResource{id: len(made)}
		made = append(made, r)
		return r, nil
	}

	if _, err := NewResourcePool(factory, 4); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	for _, r := range made {
		if !r.closed.Load() {
			t.Errorf("resource %d leaked after failed init", r.id)
		}
	}
}

func TestResourcePool_InvalidCapacity(t *testing.T) {
	factory, _ := newFakeFactory()
	if _, err := NewResourcePool(factory, 0); !errors.Is(err, ErrPoolCapacity) {
		t.Errorf("capacity 0: got %v, want ErrPoolCapacity", err)
	}
}

func TestResourcePool_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	factory, _ := newFakeFactory()
	pool, err := NewResourcePool(factory, capacity)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	var outstanding atomic.Int64
	var peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease := pool.Acquire()
			defer lease.Release()

			n := outstanding.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			outstanding.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > capacity {
		t.Errorf("outstanding leases peaked at %d, capacity %d", peak.Load(), capacity)
	}
	if pool.Free() != capacity {
		t.Errorf("Free() = %d after all releases, want %d", pool.Free(), capacity)
	}
}

func TestResourcePool_ReleaseUnblocksWaiter(t *testing.T) {
	factory, _ := newFakeFactory()
	pool, err := NewResourcePool(factory, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	lease := pool.Acquire()

	acquired := make(chan *Lease)
	go func() {
		acquired <- pool.Acquire()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while resource was checked out")
	case <-time.After(50 * time.Millisecond):
	}

	lease.Release()

	select {
	case l := <-acquired:
		l.Release()
	case <-time.After(time.Second):
		t.Fatal("Release did not unblock the waiting Acquire")
	}
}

func TestResourcePool_DoubleReleaseIsNoop(t *testing.T) {
	factory, _ := newFakeFactory()
	pool, err := NewResourcePool(factory, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	lease := pool.Acquire()
	lease.Release()
	lease.Release()

	if pool.Free() != 2 {
		t.Errorf("Free() = %d after double release, want 2", pool.Free())
	}
}

func TestResourcePool_CloseClosesResources(t *testing.T) {
	var made []*fakeResource
	factory := func() (io.Closer, error) {
		r := &fakeResource{id: len(made)}
		made = append(made, r)
		return r, nil
	}

	pool, err := NewResourcePool(factory, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, r := range made {
		if !r.closed.Load() {
			t.Errorf("resource %d not closed by pool Close", r.id)
		}
	}
}

func TestResourcePool_CloseWhileCheckedOut(t *testing.T) {
	factory, _ := newFakeFactory()
	pool, err := NewResourcePool(factory, 2)
	if err != nil {
		t.Fatal(err)
	}

	lease := pool.Acquire()
	if err := pool.Close(); !errors.Is(err, ErrPoolBusy) {
		t.Errorf("Close with outstanding lease: got %v, want ErrPoolBusy", err)
	}
	lease.Release()
}
