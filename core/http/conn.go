// Package http implements the per-socket HTTP/1.1 state machine: reading
// through the edge-triggered drain loop, parsing the buffered request,
// and assembling a zero-copy two-segment response (header bytes from the
// write buffer plus an mmapped file region) sent with a single writev.
package http

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/sheep-cloud12138/MyWebServer/core/buffer"
)

// Response status codes emitted by the file pipeline. Nothing else is
// spoken on this wire.
const (
	StatusOK        = 200
	StatusForbidden = 403
	StatusNotFound  = 404
)

var statusText = map[int]string{
	StatusOK:        "OK",
	StatusForbidden: "Forbidden",
	StatusNotFound:  "Not Found",
}

// BodyHandler receives the request body of a parsed request. Handlers run
// on a worker goroutine and must not touch the connection; failures are
// theirs to log, never surfaced to the peer.
type BodyHandler interface {
	HandleBody(method, path, body string)
}

// segment is one element of the scatter/gather response list: either a
// borrowed slice of the connection's own write buffer (the header bytes)
// or the mmapped file region, which the connection releases exactly once.
type segment struct {
	data   []byte
	mapped bool
}

// Conn is the per-socket connection object. Exactly one exists per active
// fd; the engine's one-shot re-arm discipline guarantees at most one
// worker touches it at a time, so it carries no lock.
type Conn struct {
	fd   int
	peer string

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer

	req    Request
	status int

	segs  [2]segment
	nsegs int

	// file is the active read-only mapping backing segs[1]; it must be
	// unmapped before the socket is closed.
	file []byte

	root    string
	handler BodyHandler
	live    *atomic.Int64

	closed bool
}

// NewConn creates an unbound connection object; Init attaches it to a fd.
func NewConn() *Conn {
	return &Conn{
		fd:       -1,
		readBuf:  buffer.New(buffer.DefaultSize),
		writeBuf: buffer.New(buffer.DefaultSize),
		closed:   true,
	}
}

// Init binds the connection to an accepted socket and bumps the live
// connection gauge.
func (c *Conn) Init(fd int, peer, root string, handler BodyHandler, live *atomic.Int64) {
	c.fd = fd
	c.peer = peer
	c.root = root
	c.handler = handler
	c.live = live
	c.closed = false
	c.status = 0

	c.readBuf.Reset()
	c.writeBuf.Reset()
	c.req.Reset()
	c.releaseFile()

	if live != nil {
		live.Add(1)
	}
}

// FD returns the socket descriptor.
func (c *Conn) FD() int { return c.fd }

// Peer returns the formatted peer address.
func (c *Conn) Peer() string { return c.peer }

// Method returns the parsed request method.
func (c *Conn) Method() string { return c.req.Method }

// Path returns the parsed request path (after index rewriting).
func (c *Conn) Path() string { return c.req.Path }

// Status returns the status code of the current response, 0 before any
// response has been built.
func (c *Conn) Status() int { return c.status }

// KeepAlive reports whether the parsed request asked to keep the
// connection open.
func (c *Conn) KeepAlive() bool { return c.req.KeepAlive }

// Read drains the socket until it would block, accumulating into the read
// buffer. Interrupted reads are retried inside the loop; would-block ends
// it. A hard error or peer close with nothing read this call returns an
// error, and the caller closes the connection.
func (c *Conn) Read() (int, error) {
	var total int
	for {
		n, err := c.readBuf.ReadFD(c.fd)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			if err == unix.EINTR {
				continue
			}
			if total == 0 {
				return 0, fmt.Errorf("read fd %d: %w", c.fd, err)
			}
			break
		}
		if n == 0 {
			// Peer closed the write side.
			if total == 0 {
				return 0, io.EOF
			}
			break
		}
		total += n
	}
	return total, nil
}

// Process parses the buffered payload and builds the response. It returns
// (false, nil) when the request is still incomplete (the caller re-arms
// for read), (true, nil) when a response is ready (the caller re-arms for
// write), and an error for a malformed request, which drops the
// connection without a response.
func (c *Conn) Process() (bool, error) {
	if c.readBuf.Readable() == 0 {
		return false, nil
	}
	data := c.readBuf.DrainString()

	lineEnd := indexCRLF(data, 0)
	if lineEnd == -1 {
		// Request line not terminated yet, keep the bytes for the next
		// readiness burst.
		c.readBuf.AppendString(data)
		return false, nil
	}

	c.req.Reset()
	if !parseRequestLine(data[:lineEnd], &c.req) {
		return false, ErrMalformedRequest
	}

	pos := lineEnd + 2
	sawBlank := false
	for {
		rel := indexCRLF(data, pos)
		if rel == -1 {
			break
		}
		line := data[pos:rel]
		pos = rel + 2
		if line == "" {
			// Blank line: headers done, the rest is the body.
			sawBlank = true
			break
		}
		parseHeaderLine(line, &c.req)
	}
	if !sawBlank {
		// Header block not terminated yet; re-parse once more arrives.
		c.readBuf.AppendString(data)
		return false, nil
	}

	if pos < len(data) {
		c.req.Body = data[pos:]
		if c.handler != nil {
			c.handler.HandleBody(c.req.Method, c.req.Path, c.req.Body)
		}
	}

	c.makeResponse()
	return true, nil
}

// indexCRLF finds the next "\r\n" at or after pos, returning its absolute
// offset or -1.
func indexCRLF(s string, pos int) int {
	for i := pos; i+1 < len(s); i++ {
		if s[i] == '\r' && s[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// makeResponse resolves the request path under the document root and sets
// up the response segments: a header-only 404/403, or a 200 whose body is
// the file mmapped read-only - the file bytes are never copied into the
// connection's buffers.
func (c *Conn) makeResponse() {
	c.releaseFile()
	c.writeBuf.Reset()

	target, ok := c.resolveTarget()
	var st unix.Stat_t
	if !ok || unix.Stat(target, &st) != nil || st.Mode&unix.S_IFMT == unix.S_IFDIR {
		c.respondStatus(StatusNotFound)
		return
	}

	fd, err := unix.Open(target, unix.O_RDONLY, 0)
	if err != nil {
		c.respondStatus(StatusForbidden)
		return
	}

	c.status = StatusOK
	c.writeBuf.AppendString("HTTP/1.1 200 OK\r\n")
	if c.req.KeepAlive {
		c.writeBuf.AppendString("Connection: keep-alive\r\n")
	} else {
		c.writeBuf.AppendString("Connection: close\r\n")
	}
	c.writeBuf.AppendString("Content-Length: " + strconv.FormatInt(st.Size, 10) + "\r\n\r\n")

	if st.Size == 0 {
		unix.Close(fd)
		c.segs[0] = segment{data: c.writeBuf.Peek()}
		c.nsegs = 1
		return
	}

	data, merr := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	unix.Close(fd)
	if merr != nil {
		c.writeBuf.Reset()
		c.respondStatus(StatusForbidden)
		return
	}

	c.file = data
	c.segs[0] = segment{data: c.writeBuf.Peek()}
	c.segs[1] = segment{data: data, mapped: true}
	c.nsegs = 2
}

// respondStatus emits a header-only response.
func (c *Conn) respondStatus(code int) {
	c.status = code
	c.writeBuf.AppendString("HTTP/1.1 " + strconv.Itoa(code) + " " + statusText[code] +
		"\r\nContent-Length: 0\r\n\r\n")
	c.segs[0] = segment{data: c.writeBuf.Peek()}
	c.nsegs = 1
}

// resolveTarget maps the request path onto the document root. The path is
// cleaned while still rooted, so ".." components cannot climb out of the
// root directory; anything not starting with "/" resolves to nothing.
func (c *Conn) resolveTarget() (string, bool) {
	p := c.req.Path
	if p == "" || p[0] != '/' {
		return "", false
	}
	return filepath.Join(c.root, filepath.FromSlash(path.Clean(p))), true
}

// writeVecs collects the non-empty remaining segments for one writev call.
func (c *Conn) writeVecs() [][]byte {
	vecs := make([][]byte, 0, 2)
	for i := 0; i < c.nsegs; i++ {
		if len(c.segs[i].data) > 0 {
			vecs = append(vecs, c.segs[i].data)
		}
	}
	return vecs
}

// ToWrite returns how many response bytes are still unsent.
func (c *Conn) ToWrite() int {
	total := 0
	for i := 0; i < c.nsegs; i++ {
		total += len(c.segs[i].data)
	}
	return total
}

// Write drains the remaining response segments with writev until either
// everything is sent or the socket would block; the caller re-arms for
// writability in the latter case. Partial writes retire header-buffer
// bytes first, then advance the mapped segment in place.
func (c *Conn) Write() (int, error) {
	var total int
	for {
		vecs := c.writeVecs()
		if len(vecs) == 0 {
			return total, nil
		}

		n, err := unix.Writev(c.fd, vecs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
		c.advance(n)
	}
}

// advance retires n sent bytes across the segment list.
func (c *Conn) advance(n int) {
	if h := len(c.segs[0].data); h > 0 {
		if n < h {
			c.segs[0].data = c.segs[0].data[n:]
			c.writeBuf.Consume(n)
			return
		}
		c.segs[0].data = nil
		c.writeBuf.Reset()
		n -= h
	}
	if n > 0 && c.nsegs > 1 {
		c.segs[1].data = c.segs[1].data[n:]
	}
}

// releaseFile unmaps the active file region and clears the segment list.
// Safe to call repeatedly.
func (c *Conn) releaseFile() {
	if c.file != nil {
		_ = unix.Munmap(c.file)
		c.file = nil
	}
	c.segs[0] = segment{}
	c.segs[1] = segment{}
	c.nsegs = 0
}

// Close unmaps any mapped file region before releasing the socket and
// drops the live-connection gauge. Closing twice is a no-op.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true

	c.releaseFile()
	_ = unix.Close(c.fd)

	if c.live != nil {
		c.live.Add(-1)
	}
}

// Reset returns the connection object to its unbound state for pooling.
func (c *Conn) Reset() {
	c.fd = -1
	c.peer = ""
	c.root = ""
	c.handler = nil
	c.live = nil
	c.status = 0
	c.closed = true
	c.readBuf.Reset()
	c.writeBuf.Reset()
	c.req.Reset()
	c.releaseFile()
}
