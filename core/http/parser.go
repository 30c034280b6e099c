package http

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedRequest reports a request line that does not match
	// "METHOD SP PATH SP HTTP/VERSION". The connection is dropped without
	// a response.
	ErrMalformedRequest = errors.New("malformed HTTP request line")
)

// parseRequestLine splits "METHOD SP PATH SP HTTP/VERSION" into the
// request. A root path is rewritten to the index page.
func parseRequestLine(line string, req *Request) bool {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 <= 0 {
		return false
	}

	sp2 := strings.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return false
	}
	sp2 += sp1 + 1

	proto := line[sp2+1:]
	if !strings.HasPrefix(proto, "HTTP/") || len(proto) == len("HTTP/") {
		return false
	}

	req.Method = line[:sp1]
	req.Path = line[sp1+1 : sp2]
	req.Proto = proto[len("HTTP/"):]

	if req.Path == "/" {
		req.Path = "/index.html"
	}
	return req.Path != "" && req.Method != ""
}

// parseHeaderLine handles one "Name: Value" line. Only the Connection
// header carries meaning here; everything else is ignored.
func parseHeaderLine(line string, req *Request) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return
	}

	name := line[:colon]
	value := strings.TrimSpace(line[colon+1:])

	if strings.EqualFold(name, "Connection") && strings.EqualFold(value, "keep-alive") {
		req.KeepAlive = true
	}
}
