package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bnema/wfplug/internal/logger"
)

// Conn is the caller side of an IPC connection. Calls are sequential; after
// subscribing to a topic, Next returns the pushed events.
type Conn struct {
	rw             io.ReadWriteCloser
	timeout        time.Duration
	maxMessageSize int

	mu sync.Mutex
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Dial connects to the unix socket at socketPath.
func Dial(socketPath string, timeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, fmt.Errorf("wfplug is not running at %s", socketPath)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	return NewConn(conn, timeout), nil
}

// NewConn wraps an established stream, e.g. an SSH session.
func NewConn(rw io.ReadWriteCloser, timeout time.Duration) *Conn {
	return &Conn{
		rw:             rw,
		timeout:        timeout,
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// Call sends a request and returns the first document read back. Error
// envelopes are returned as documents; use ResponseError to turn them into errors.
func (c *Conn) Call(method string, data Document) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setDeadline(c.timeout)
	defer c.setDeadline(0)

	if err := WriteFrame(c.rw, NewRequest(method, data)); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := ReadFrame(c.rw, c.maxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

// Next blocks until the server pushes the next document.
func (c *Conn) Next() (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := ReadFrame(c.rw, c.maxMessageSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return doc, nil
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	if err := c.rw.Close(); err != nil {
		logger.Debugf("Failed to close IPC connection: %v", err)
		return err
	}
	return nil
}

func (c *Conn) setDeadline(d time.Duration) {
	dl, ok := c.rw.(deadliner)
	if !ok {
		return
	}
	var t time.Time
	if d > 0 {
		t = time.Now().Add(d)
	}
	if err := dl.SetDeadline(t); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}
}

// isConnectionRefused checks if the error is a connection refused error
func isConnectionRefused(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Op == "dial"
	}
	return false
}
