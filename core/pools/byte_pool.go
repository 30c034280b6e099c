package pools

import "sync"

// BytePool is a multi-tiered byte slice pool for different size classes.
// The connection read path borrows a scratch region from it on every
// readiness burst, so misses here translate directly into per-event
// allocations.
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// Size tiers chosen for HTTP workloads: small scratch regions, header
// blocks, and large keep-alive bursts.
var defaultSizes = []int{
	512,
	2048,
	8192,
	32768,
}

// NewBytePool creates a byte pool with the standard size tiers.
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers.
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size // capture for closure
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a byte slice of at least the requested size.
func (bp *BytePool) Get(size int) []byte {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			bufPtr := bp.pools[i].Get().(*[]byte)
			buf := *bufPtr
			return buf[:size]
		}
	}

	// Size too large for any tier, allocate directly.
	return make([]byte, size)
}

// Put returns a byte slice to its tier. Slices that did not come from a
// tier are left to the GC.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)

	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

// Global byte pool instance shared by the buffer read path.
var globalBytePool = NewBytePool()

// GetBytes is a convenience function using the global pool.
func GetBytes(size int) []byte {
	return globalBytePool.Get(size)
}

// PutBytes returns bytes to the global pool.
func PutBytes(buf []byte) {
	globalBytePool.Put(buf)
}
