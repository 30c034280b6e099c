// Package buffer provides the growable, cursor-based byte container that
// decouples socket I/O from protocol parsing. A Buffer has no knowledge of
// HTTP; connections own one for each direction.
package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/sheep-cloud12138/MyWebServer/core/pools"
)

// DefaultSize is the initial capacity of a connection buffer.
const DefaultSize = 1024

// scratchSize is the fixed size of the overflow region used by ReadFD so a
// single edge-triggered burst never forces the buffer to grow up front.
const scratchSize = 4096

// Buffer is a growable byte container with separate read and write cursors.
// Invariant: 0 <= readPos <= writePos <= len(storage). It grows on demand
// and never shrinks; Reset only rewinds the cursors.
type Buffer struct {
	storage  []byte
	readPos  int
	writePos int
}

// New creates a buffer with the given initial capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{storage: make([]byte, size)}
}

// Readable reports the number of unread bytes.
func (b *Buffer) Readable() int { return b.writePos - b.readPos }

// Writable reports the free space after the write cursor.
func (b *Buffer) Writable() int { return len(b.storage) - b.writePos }

// Prependable reports the reclaimable prefix in front of the read cursor.
func (b *Buffer) Prependable() int { return b.readPos }

// Peek returns the unread region without copying. The slice is only valid
// until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.storage[b.readPos:b.writePos]
}

// Consume advances the read cursor by n bytes. Consuming everything that
// is readable rewinds both cursors to zero.
func (b *Buffer) Consume(n int) {
	if n < b.Readable() {
		b.readPos += n
		return
	}
	b.Reset()
}

// Reset rewinds both cursors; capacity is retained for connection reuse.
func (b *Buffer) Reset() {
	b.readPos = 0
	b.writePos = 0
}

// EnsureWritable guarantees space for n more bytes, compacting the
// reclaimable prefix when that suffices and reallocating otherwise.
func (b *Buffer) EnsureWritable(n int) {
	if b.Writable() >= n {
		return
	}
	if b.Writable()+b.Prependable() < n {
		grown := make([]byte, b.writePos+n)
		copy(grown, b.storage[:b.writePos])
		b.storage = grown
		return
	}
	// Slide the unread bytes to the front to reclaim the prefix.
	readable := b.Readable()
	copy(b.storage, b.storage[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

// Append copies p behind the write cursor, growing as needed.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.EnsureWritable(len(p))
	copy(b.storage[b.writePos:], p)
	b.writePos += len(p)
}

// AppendString copies s behind the write cursor.
func (b *Buffer) AppendString(s string) {
	if len(s) == 0 {
		return
	}
	b.EnsureWritable(len(s))
	copy(b.storage[b.writePos:], s)
	b.writePos += len(s)
}

// DrainString returns all readable bytes as a string and resets the buffer.
func (b *Buffer) DrainString() string {
	s := string(b.Peek())
	b.Reset()
	return s
}

// ReadFD absorbs one readiness-triggered burst from fd. It scatter-reads
// into the writable tail and a pooled scratch region in a single readv, so
// an arbitrarily large burst is captured without growing the buffer ahead
// of time; whatever landed in the scratch region is appended afterwards.
// Returns the number of bytes read; err carries the OS errno on failure.
func (b *Buffer) ReadFD(fd int) (int, error) {
	scratch := pools.GetBytes(scratchSize)
	defer pools.PutBytes(scratch)

	writable := b.Writable()
	iov := [][]byte{b.storage[b.writePos:], scratch}

	n, err := unix.Readv(fd, iov)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.storage)
		b.Append(scratch[:n-writable])
	}
	return n, nil
}

// WriteFD drains the peek region into fd with a single write and advances
// the read cursor by however many bytes the kernel actually took.
func (b *Buffer) WriteFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	b.Consume(n)
	return n, nil
}
