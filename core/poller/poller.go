// Package poller wraps the kernel readiness-notification facility behind a
// small register/modify/unregister/wait contract. All monitored sockets use
// edge-triggered semantics: the caller must fully drain readability or
// writability before re-arming, because an identical later state change
// will not trigger another notification.
package poller

// Interest bits passed to Add and Mod.
const (
	// Readable arms the descriptor for read readiness.
	Readable uint32 = 1 << iota
	// Writable arms the descriptor for write readiness.
	Writable
	// OneShot disarms the descriptor after a single event until the next
	// Mod, guaranteeing that at most one worker handles it at a time.
	OneShot
)

// Result bits reported by Wait.
const (
	EventReadable uint32 = 1 << iota
	EventWritable
	EventHangup
	EventError
)

// Event is one readiness notification for a registered descriptor.
type Event struct {
	FD     int
	Events uint32
}

// Poller is the I/O multiplexing interface.
type Poller interface {
	// Add registers fd with the given interest bits.
	Add(fd int, events uint32) error
	// Mod replaces the interest bits of a registered fd, re-arming it if
	// it was registered with OneShot.
	Mod(fd int, events uint32) error
	// Del unregisters fd.
	Del(fd int) error
	// Wait blocks until readiness events arrive or timeoutMs elapses.
	// A negative timeout blocks indefinitely. An interrupted wait returns
	// an empty event list rather than an error.
	Wait(timeoutMs int) ([]Event, error)
	// Close releases the underlying facility.
	Close() error
}
