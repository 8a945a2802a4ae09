package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/wfplug/internal/logger"
	"github.com/google/uuid"
)

// SocketServer exposes a Hub on a unix socket
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	hub        *Hub
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool

	maxMessageSize int
	writeTimeout   time.Duration

	connsMu sync.Mutex
	conns   map[string]*socketClient
}

// SocketOption configures a SocketServer.
type SocketOption func(*SocketServer)

// WithMaxMessageSize bounds inbound frames.
func WithMaxMessageSize(n int) SocketOption {
	return func(s *SocketServer) {
		if n > 0 {
			s.maxMessageSize = n
		}
	}
}

// WithWriteTimeout bounds every write to a client.
func WithWriteTimeout(d time.Duration) SocketOption {
	return func(s *SocketServer) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewSocketServer creates a new socket server
func NewSocketServer(socketPath string, hub *Hub, opts ...SocketOption) *SocketServer {
	s := &SocketServer{
		socketPath:     socketPath,
		hub:            hub,
		maxMessageSize: DefaultMaxMessageSize,
		writeTimeout:   time.Second,
		conns:          make(map[string]*socketClient),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SocketPath returns the path the server listens on.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	// Create socket directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to report their disconnects.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for _, c := range s.conns {
		c.conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	// Clean up socket file
	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

// ClientCount returns the number of open connections.
func (s *SocketServer) ClientCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// acceptConnections accepts and handles incoming connections
func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves requests of one client until it goes away
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	client := &socketClient{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: s.writeTimeout,
	}

	s.connsMu.Lock()
	if ctx.Err() != nil {
		// Stop already swept the open connections.
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[client.id] = client
	s.connsMu.Unlock()

	s.hub.Connect(client)
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, client.id)
		s.connsMu.Unlock()

		client.close()
		s.hub.Disconnect(client)
	}()

	logger.Debug("New IPC connection established", "client", client.id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := ReadFrame(conn, s.maxMessageSize)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		var response Document
		method, data, err := ParseRequest(msg)
		if err != nil {
			response = Error(err.Error())
		} else {
			response = s.hub.Handle(client, method, data)
		}

		if err := client.Send(response); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// socketClient is the Client handle of one unix socket connection.
type socketClient struct {
	id           string
	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *socketClient) ID() string {
	return c.id
}

// Send writes doc to the connection. Writes from the connection goroutine and
// from broadcasts are serialized. A failed write closes the connection.
func (c *socketClient) Send(doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client %s: connection closed", c.id)
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := WriteFrame(c.conn, doc); err != nil {
		// A partial frame leaves the stream unreadable, so drop the connection.
		c.closed = true
		c.conn.Close()
		return err
	}
	return nil
}

func (c *socketClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}
