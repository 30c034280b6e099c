// Package core contains the event-driven connection engine: the reactor
// loop over the readiness multiplexer, dispatch into the worker pool, and
// the fd-to-connection table. Per-connection handling is serialized by the
// one-shot re-arm discipline, so the engine never takes a per-connection
// lock.
package core

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/sheep-cloud12138/MyWebServer/core/http"
	"github.com/sheep-cloud12138/MyWebServer/core/poller"
	"github.com/sheep-cloud12138/MyWebServer/core/pools"
)

// Options configures an Engine instance. Everything the engine shares with
// its connections is passed here explicitly; there are no process-wide
// singletons.
type Options struct {
	// Port to listen on. 0 lets the kernel pick an ephemeral port,
	// otherwise the port must lie in the non-privileged range.
	Port int
	// RootDir is the document root served to peers.
	RootDir string
	// Workers is the worker goroutine count; 0 means DefaultWorkers.
	Workers int
	// BodyHandler receives request bodies for dynamic requests. Optional.
	BodyHandler http.BodyHandler
	// AccessLog enables per-request status logging.
	AccessLog bool
}

// Engine owns the listening socket, the poller, the worker pool and the
// fd-to-connection map, and runs the reactor loop.
type Engine struct {
	opts Options

	listenFD int
	poller   poller.Poller
	workers  *pools.WorkerPool
	connPool *pools.ConnPool

	// wakeMu guards wakeFD between Shutdown (any goroutine) and
	// cleanupListener (the Serve goroutine).
	wakeMu sync.Mutex
	wakeFD int

	connMu sync.RWMutex
	conns  map[int]*http.Conn

	liveConns   atomic.Int64
	accepted    atomic.Uint64
	closedConns atomic.Uint64

	listening bool
	shutdown  atomic.Bool
}

// NewEngine creates an engine. Listen must be called before Serve.
func NewEngine(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	pools.ApplyGCConfig(pools.DefaultGCConfig())

	e := &Engine{
		opts:     opts,
		listenFD: -1,
		wakeFD:   -1,
		conns:    make(map[int]*http.Conn),
		workers:  pools.NewWorkerPool(opts.Workers),
	}
	e.connPool = pools.NewConnPool(func() any {
		return http.NewConn()
	})
	return e
}

// Listen opens the listening socket and the readiness multiplexer. Any
// failure here is fatal to startup and returned immediately.
func (e *Engine) Listen() error {
	if err := e.initSocket(); err != nil {
		return err
	}

	p, err := poller.New()
	if err != nil {
		unix.Close(e.listenFD)
		e.listenFD = -1
		return err
	}
	e.poller = p

	// Eventfd wakes the reactor out of its indefinite wait on Shutdown.
	wake, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		e.cleanupListener()
		return fmt.Errorf("eventfd: %w", err)
	}
	e.wakeFD = wake

	if err := e.poller.Add(e.listenFD, poller.Readable); err != nil {
		e.cleanupListener()
		return err
	}
	if err := e.poller.Add(e.wakeFD, poller.Readable); err != nil {
		e.cleanupListener()
		return err
	}

	e.listening = true
	return nil
}

// initSocket creates the non-blocking IPv4 listener with SO_REUSEADDR.
func (e *Engine) initSocket() error {
	if e.opts.Port != 0 && (e.opts.Port < 1024 || e.opts.Port > 65535) {
		return ErrInvalidPort
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: e.opts.Port}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind port %d: %w", e.opts.Port, err)
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set nonblock: %w", err)
	}

	e.listenFD = fd
	return nil
}

// Port returns the bound listen port, useful when Options.Port was 0.
func (e *Engine) Port() int {
	if e.listenFD < 0 {
		return e.opts.Port
	}
	if sa, err := unix.Getsockname(e.listenFD); err == nil {
		if sa4, ok := sa.(*unix.SockaddrInet4); ok {
			return sa4.Port
		}
	}
	return e.opts.Port
}

// Serve runs the reactor loop until Shutdown. The reactor thread blocks
// only inside the readiness wait; every connection event is handed to the
// worker pool so loop latency stays bounded by syscall cost.
func (e *Engine) Serve() error {
	if !e.listening {
		return ErrServerClosed
	}

	log.Printf("========== Server start at port %d ==========", e.Port())

	for !e.shutdown.Load() {
		events, err := e.poller.Wait(-1)
		if err != nil {
			if e.shutdown.Load() {
				break
			}
			log.Printf("poller wait: %v", err)
			continue
		}
		for _, ev := range events {
			e.dispatch(ev)
		}
	}

	// Workers are joined before any connection teardown: a close while a
	// task is mid-read or mid-write would release the mapping and buffers
	// under it.
	e.workers.Close()
	e.closeAll()
	e.cleanupListener()

	stats := e.Stats()
	log.Printf("server stopped: %d accepted, %d closed, %d tasks run",
		stats.Accepted, stats.Closed, stats.Workers.TasksCompleted)
	return nil
}

// Run is Listen followed by Serve.
func (e *Engine) Run() error {
	if err := e.Listen(); err != nil {
		return err
	}
	return e.Serve()
}

// Shutdown stops the reactor loop. It is safe to call from any goroutine
// and more than once.
func (e *Engine) Shutdown() {
	if !e.shutdown.CompareAndSwap(false, true) {
		return
	}
	e.wakeMu.Lock()
	if e.wakeFD >= 0 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], 1)
		_, _ = unix.Write(e.wakeFD, buf[:])
	}
	e.wakeMu.Unlock()
}

func (e *Engine) cleanupListener() {
	e.wakeMu.Lock()
	if e.wakeFD >= 0 {
		unix.Close(e.wakeFD)
		e.wakeFD = -1
	}
	e.wakeMu.Unlock()
	if e.listenFD >= 0 {
		unix.Close(e.listenFD)
		e.listenFD = -1
	}
	if e.poller != nil {
		e.poller.Close()
		e.poller = nil
	}
	e.listening = false
}

// dispatch routes one readiness event: the listener always gets the
// accept-drain loop, hangup and error close the connection, and data
// events go to the worker pool, never handled inline on the reactor
// thread.
func (e *Engine) dispatch(ev poller.Event) {
	switch {
	case ev.FD == e.listenFD:
		e.acceptLoop()
	case ev.FD == e.wakeFD:
		// Shutdown wakeup; the loop condition does the rest.
	case ev.Events&(poller.EventHangup|poller.EventError) != 0:
		e.closeConn(ev.FD)
	case ev.Events&poller.EventReadable != 0:
		if conn := e.lookup(ev.FD); conn != nil {
			e.workers.Submit(func() { e.onRead(conn) })
		} else {
			log.Printf("fd %d: %v", ev.FD, ErrUnknownClient)
		}
	case ev.Events&poller.EventWritable != 0:
		if conn := e.lookup(ev.FD); conn != nil {
			e.workers.Submit(func() { e.onWrite(conn) })
		} else {
			log.Printf("fd %d: %v", ev.FD, ErrUnknownClient)
		}
	}
}

// acceptLoop accepts until the listener would block; edge-triggered
// registration requires draining the whole backlog on every event.
func (e *Engine) acceptLoop() {
	for {
		nfd, sa, err := unix.Accept(e.listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			if !e.shutdown.Load() {
				log.Printf("accept: %v", err)
			}
			return
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		conn := e.connPool.Get().(*http.Conn)
		conn.Init(nfd, peerString(sa), e.opts.RootDir, e.opts.BodyHandler, &e.liveConns)

		e.connMu.Lock()
		e.conns[nfd] = conn
		e.connMu.Unlock()

		if err := e.poller.Add(nfd, poller.Readable|poller.OneShot); err != nil {
			e.connMu.Lock()
			delete(e.conns, nfd)
			e.connMu.Unlock()
			conn.Close()
			e.connPool.Put(conn)
			continue
		}

		e.accepted.Add(1)
	}
}

func (e *Engine) lookup(fd int) *http.Conn {
	e.connMu.RLock()
	conn := e.conns[fd]
	e.connMu.RUnlock()
	return conn
}

// onRead runs on a worker goroutine holding the connection's one-shot
// ownership.
func (e *Engine) onRead(conn *http.Conn) {
	if _, err := conn.Read(); err != nil {
		e.closeConn(conn.FD())
		return
	}
	e.onProcess(conn)
}

// onProcess parses whatever is buffered and re-arms the connection for
// the next state: write when a response is ready, read when the request
// is still incomplete. Protocol errors drop the connection without a
// response.
func (e *Engine) onProcess(conn *http.Conn) {
	ready, err := conn.Process()
	if err != nil {
		e.closeConn(conn.FD())
		return
	}
	if ready {
		if e.opts.AccessLog {
			logRequest(conn.Peer(), conn.Method(), conn.Path(), conn.Status())
		}
		e.rearm(conn, poller.Writable)
	} else {
		e.rearm(conn, poller.Readable)
	}
}

// onWrite drains the response. A finished keep-alive write goes back
// through onProcess, which finds the read buffer empty and re-arms for
// the next request; a finished non-keep-alive write or any hard error
// closes the connection.
func (e *Engine) onWrite(conn *http.Conn) {
	_, err := conn.Write()

	if conn.ToWrite() == 0 {
		if conn.KeepAlive() {
			e.onProcess(conn)
			return
		}
	} else if err == unix.EAGAIN {
		e.rearm(conn, poller.Writable)
		return
	}
	e.closeConn(conn.FD())
}

// rearm restores single-shot interest after a worker finishes handling a
// connection event.
func (e *Engine) rearm(conn *http.Conn, interest uint32) {
	if err := e.poller.Mod(conn.FD(), interest|poller.OneShot); err != nil {
		e.closeConn(conn.FD())
	}
}

// closeConn unregisters and closes a connection. The map entry is removed
// before the fd is closed so a recycled descriptor number can never
// collide with a stale entry.
func (e *Engine) closeConn(fd int) {
	e.connMu.Lock()
	conn, ok := e.conns[fd]
	if ok {
		delete(e.conns, fd)
	}
	e.connMu.Unlock()
	if !ok {
		return
	}

	_ = e.poller.Del(fd)
	conn.Close()
	e.connPool.Put(conn)
	e.closedConns.Add(1)
}

func (e *Engine) closeAll() {
	e.connMu.Lock()
	fds := make([]int, 0, len(e.conns))
	for fd := range e.conns {
		fds = append(fds, fd)
	}
	e.connMu.Unlock()

	for _, fd := range fds {
		e.closeConn(fd)
	}
}

// EngineStats is a diagnostic snapshot of the engine counters.
type EngineStats struct {
	LiveConnections int64
	Accepted        uint64
	Closed          uint64
	Workers         pools.WorkerPoolStats
}

// Stats returns the current engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		LiveConnections: e.liveConns.Load(),
		Accepted:        e.accepted.Load(),
		Closed:          e.closedConns.Load(),
		Workers:         e.workers.Stats(),
	}
}

// peerString formats an accepted peer address.
func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String() + ":" + strconv.Itoa(a.Port)
	case *unix.SockaddrInet6:
		return "[" + net.IP(a.Addr[:]).String() + "]:" + strconv.Itoa(a.Port)
	}
	return "unknown"
}
