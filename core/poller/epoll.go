//go:build linux
// +build linux

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// maxEvents bounds how many readiness notifications a single wait call can
// deliver; the kernel queues the rest for the next iteration.
const maxEvents = 1024

// EpollPoller is the epoll-based multiplexer. Every descriptor is
// registered edge-triggered (EPOLLET) with EPOLLRDHUP so peer shutdown
// surfaces as a hangup event instead of an endless readable state.
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates an epoll poller.
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// toEpoll translates interest bits into the epoll event mask.
func toEpoll(events uint32) uint32 {
	var ev uint32 = unix.EPOLLET | unix.EPOLLRDHUP
	if events&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if events&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	if events&OneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

// Add registers fd with the given interest bits.
func (p *EpollPoller) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Mod replaces the interest bits of fd, re-arming a one-shot descriptor.
func (p *EpollPoller) Mod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// Del unregisters fd.
func (p *EpollPoller) Del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks for readiness events. EINTR is swallowed so the reactor loop
// simply spins once more.
func (p *EpollPoller) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll wait: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i]
		var evs uint32
		if raw.Events&unix.EPOLLIN != 0 {
			evs |= EventReadable
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			evs |= EventWritable
		}
		if raw.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
			evs |= EventHangup
		}
		if raw.Events&unix.EPOLLERR != 0 {
			evs |= EventError
		}
		out = append(out, Event{FD: int(raw.Fd), Events: evs})
	}
	return out, nil
}

// Close releases the epoll descriptor.
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
