package core

import "errors"

// Listener tuning. The backlog is deliberately small: under load the
// accept-drain loop empties it on every listener event anyway.
const (
	ListenBacklog = 6

	// DefaultWorkers is the worker thread count used when the
	// configuration does not specify one.
	DefaultWorkers = 8
)

// Error definitions
var (
	ErrInvalidPort   = errors.New("listen port outside the usable range")
	ErrServerClosed  = errors.New("server closed")
	ErrUnknownClient = errors.New("event for an unregistered connection")
)
