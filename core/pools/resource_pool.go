package pools

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Factory creates one pooled resource. It is called capacity times when
// the pool is built; any failure aborts pool construction.
type Factory func() (io.Closer, error)

var (
	// ErrPoolCapacity reports a non-positive pool capacity.
	ErrPoolCapacity = errors.New("resource pool capacity must be positive")
	// ErrPoolBusy reports a Close while leases are still outstanding.
	ErrPoolBusy = errors.New("resource pool closed with resources checked out")
)

// ResourcePool is a bounded, backpressured pool of reusable handles to a
// scarce external resource. A counting semaphore gates Acquire: when every
// resource is checked out the caller blocks until a Release, which is the
// intended throttling behavior once resource-bound traffic saturates the
// pool. Invariant: in-use + free == capacity at all times.
type ResourcePool struct {
	mu   sync.Mutex
	idle *queue.Queue

	// sem holds one token per free resource; Acquire takes a token before
	// touching the queue, Release returns it afterwards.
	sem      chan struct{}
	capacity int
}

// NewResourcePool eagerly creates capacity resources using factory.
// Already-created resources are closed again if a later factory call
// fails, so a construction error never leaks handles.
func NewResourcePool(factory Factory, capacity int) (*ResourcePool, error) {
	if capacity <= 0 {
		return nil, ErrPoolCapacity
	}

	p := &ResourcePool{
		idle:     queue.New(),
		sem:      make(chan struct{}, capacity),
		capacity: capacity,
	}

	for i := 0; i < capacity; i++ {
		res, err := factory()
		if err != nil {
			p.drain()
			return nil, fmt.Errorf("resource pool init (%d/%d): %w", i, capacity, err)
		}
		p.idle.Add(res)
		p.sem <- struct{}{}
	}

	return p, nil
}

// Acquire blocks until a resource is free, then checks it out. Ownership
// transfers to the returned Lease until its Release.
func (p *ResourcePool) Acquire() *Lease {
	<-p.sem

	p.mu.Lock()
	res := p.idle.Remove().(io.Closer)
	p.mu.Unlock()

	return &Lease{pool: p, res: res}
}

// release re-enqueues a checked-out resource and posts the semaphore,
// unblocking one waiting Acquire if any.
func (p *ResourcePool) release(res io.Closer) {
	p.mu.Lock()
	p.idle.Add(res)
	p.mu.Unlock()

	p.sem <- struct{}{}
}

// Free returns an approximate snapshot of the idle resource count, for
// diagnostics only.
func (p *ResourcePool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Length()
}

// Capacity returns the fixed pool size.
func (p *ResourcePool) Capacity() int {
	return p.capacity
}

// Close drains and closes every idle resource. It must not be called while
// any lease is outstanding; doing so returns ErrPoolBusy after closing
// whatever was idle.
func (p *ResourcePool) Close() error {
	busy := p.Free() != p.capacity
	err := p.drain()
	if busy {
		return ErrPoolBusy
	}
	return err
}

func (p *ResourcePool) drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for p.idle.Length() > 0 {
		res := p.idle.Remove().(io.Closer)
		if err := res.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lease is the scoped-acquisition guard: the only sanctioned way to touch
// a pooled resource. Callers defer Release immediately after Acquire so
// the resource returns to the pool on every exit path.
type Lease struct {
	pool     *ResourcePool
	res      io.Closer
	released atomic.Bool
}

// Resource returns the checked-out handle. It must not be used after
// Release.
func (l *Lease) Resource() io.Closer {
	return l.res
}

// Release returns the resource to the pool. Releasing twice is a no-op.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.pool.release(l.res)
	l.res = nil
}
