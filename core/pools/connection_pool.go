package pools

import (
	"sync"
	"sync/atomic"
)

// ConnPool recycles per-socket connection objects so keep-alive churn does
// not allocate. Unlike ResourcePool it is unbounded: sync.Pool underneath,
// with hit statistics in the same shape as the other pools.
type ConnPool struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
}

// Resettable is implemented by poolable connection objects; Reset must
// return the object to its freshly-constructed state.
type Resettable interface {
	Reset()
}

// NewConnPool creates a connection object pool.
func NewConnPool(newFunc func() any) *ConnPool {
	cp := &ConnPool{}
	cp.pool.New = newFunc
	return cp
}

// Get retrieves a connection object from the pool.
func (cp *ConnPool) Get() any {
	cp.gets.Add(1)
	return cp.pool.Get()
}

// Put resets a connection object and returns it to the pool.
func (cp *ConnPool) Put(obj any) {
	if r, ok := obj.(Resettable); ok {
		r.Reset()
	}
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats returns get/put counters and the put/get ratio.
func (cp *ConnPool) Stats() (gets, puts uint64, hitRate float64) {
	g := cp.gets.Load()
	p := cp.puts.Load()
	if g > 0 {
		hitRate = float64(p) / float64(g)
	}
	return g, p, hitRate
}
