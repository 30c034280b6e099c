package http

// Request holds the parse state of one HTTP/1.1 request: the request line,
// the single semantically significant header, and the body. Connections
// embed one and reset it between keep-alive requests, so there is nothing
// to pool here.
type Request struct {
	Method string
	Path   string
	Proto  string

	// KeepAlive is set by a "Connection: keep-alive" header; every other
	// header is parsed and ignored.
	KeepAlive bool

	Body string
}

// Reset clears the parse state for connection reuse.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.KeepAlive = false
	r.Body = ""
}
