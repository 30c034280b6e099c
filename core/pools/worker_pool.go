package pools

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Task represents a unit of work. It is consumed exactly once.
type Task func()

// WorkerPool runs tasks on a fixed set of goroutines pulling from one
// shared FIFO queue. A single mutex and condition variable guard the
// queue; tasks execute outside the lock so a slow task never blocks the
// other workers from picking up new work.
type WorkerPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue
	closed bool

	numWorkers int
	wg         sync.WaitGroup

	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
	}
}

// NewWorkerPool creates a pool with numWorkers goroutines. A non-positive
// count defaults to the CPU count.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	p := &WorkerPool{
		tasks:      queue.New(),
		numWorkers: numWorkers,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.run()
	}

	return p
}

// Submit enqueues a task and wakes one idle worker. It reports false once
// the pool has been closed; the task is not enqueued in that case.
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.tasks.Add(task)
	p.mu.Unlock()

	p.stats.tasksSubmitted.Add(1)
	p.cond.Signal()
	return true
}

// run is the worker loop: pop under the lock, execute outside it. Workers
// drain whatever remains in the queue after Close before exiting, so no
// accepted task is dropped on shutdown.
func (p *WorkerPool) run() {
	defer p.wg.Done()

	p.mu.Lock()
	for {
		if p.tasks.Length() > 0 {
			task := p.tasks.Remove().(Task)
			p.mu.Unlock()

			task()
			p.stats.tasksCompleted.Add(1)

			p.mu.Lock()
		} else if p.closed {
			break
		} else {
			p.cond.Wait()
		}
	}
	p.mu.Unlock()
}

// Close marks the pool closed, wakes every worker and joins them. It
// returns only after all previously submitted tasks have executed.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() WorkerPoolStats {
	submitted := p.stats.tasksSubmitted.Load()
	completed := p.stats.tasksCompleted.Load()
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPending:   submitted - completed,
	}
}

// WorkerPoolStats contains pool statistics.
type WorkerPoolStats struct {
	NumWorkers     int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPending   uint64
}
