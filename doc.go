/*
MyWebServer is an event-driven HTTP/1.1 file server for Linux.

A single reactor goroutine multiplexes all sockets through edge-triggered
epoll; ready connections are handed to a fixed worker pool, and each
connection is registered one-shot so at most one worker ever touches it at
a time. Static files are served zero-copy: the response header is
assembled in a growable buffer and transmitted together with the mmapped
file body in one writev call.

Dynamic POST requests (login, register, predict) hand their bodies to the
application layer, which authenticates against a pooled credential-store
connection or runs the bundled inference model.

Modules

  - app: application wiring and lifecycle
  - config: flag and environment configuration
  - core: the reactor engine
  - core/http: connection state machine, request parsing, responses
  - core/buffer: cursor-based growable byte buffer with readv/writev
  - core/poller: epoll readiness multiplexing
  - core/pools: worker pool, resource pool, byte and connection pools
  - backend: credential store client
  - inference: prediction model

Run it with:

	go run . -port 9006 -root ./resources
*/
package main
