// Package backend implements the client side of the credential store the
// server authenticates against. The store speaks a small line protocol
// over TCP; connections are expensive to establish, so callers hold them
// in a resource pool and lease one per request.
package backend

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const dialTimeout = 3 * time.Second

var (
	// ErrAuthFailed means the store rejected our credentials at handshake.
	ErrAuthFailed = errors.New("backend: authentication failed")
	// ErrNotFound means the requested user has no record in the store.
	ErrNotFound = errors.New("backend: user not found")
	// ErrBadReply means the store answered with something we cannot parse.
	ErrBadReply = errors.New("backend: malformed reply")
)

// Config locates and authenticates against the credential store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Addr returns the host:port dial target.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Conn is a single authenticated connection to the store. It is not safe
// for concurrent use; lease it from a pool instead of sharing it.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader
}

// Dial connects to the store and performs the AUTH handshake.
func Dial(cfg Config) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", cfg.Addr(), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("backend: dial %s: %w", cfg.Addr(), err)
	}

	c := &Conn{nc: nc, r: bufio.NewReader(nc)}
	reply, err := c.roundTrip(fmt.Sprintf("AUTH %s %s %s", cfg.User, cfg.Password, cfg.Database))
	if err != nil {
		nc.Close()
		return nil, err
	}
	if reply != "OK" {
		nc.Close()
		return nil, ErrAuthFailed
	}
	return c, nil
}

// roundTrip writes one command line and reads one reply line. Each
// exchange carries its own deadline so a wedged store cannot hold a
// worker goroutine forever.
func (c *Conn) roundTrip(cmd string) (string, error) {
	if err := c.nc.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		return "", fmt.Errorf("backend: set deadline: %w", err)
	}
	if _, err := c.nc.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("backend: write: %w", err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("backend: read: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Lookup fetches the stored password for a user.
func (c *Conn) Lookup(user string) (string, error) {
	reply, err := c.roundTrip("GET " + user)
	if err != nil {
		return "", err
	}
	switch {
	case reply == "NIL":
		return "", ErrNotFound
	case strings.HasPrefix(reply, "VAL "):
		return reply[len("VAL "):], nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadReply, reply)
}

// Authenticate reports whether user/password matches the stored record.
// An unknown user is a plain false, not an error.
func (c *Conn) Authenticate(user, password string) (bool, error) {
	stored, err := c.Lookup(user)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == password, nil
}

// Register stores a new user record. The store answers OK on success and
// DUP when the name is taken.
func (c *Conn) Register(user, password string) error {
	reply, err := c.roundTrip(fmt.Sprintf("SET %s %s", user, password))
	if err != nil {
		return err
	}
	switch reply {
	case "OK":
		return nil
	case "DUP":
		return fmt.Errorf("backend: user %q already exists", user)
	}
	return fmt.Errorf("%w: %q", ErrBadReply, reply)
}

// Ping verifies the connection is still usable.
func (c *Conn) Ping() error {
	reply, err := c.roundTrip("PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("%w: %q", ErrBadReply, reply)
	}
	return nil
}

// Close tears the connection down.
func (c *Conn) Close() error {
	return c.nc.Close()
}
