// Package network carries IPC requests over SSH so that remote callers can
// reach the same method registry as local socket clients.
package network

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/google/uuid"
	gossh "golang.org/x/crypto/ssh"
)

// SSHServer accepts SSH sessions and treats each one as an IPC client
type SSHServer struct {
	port           int
	hostKeyPath    string
	authKeysPath   string
	maxMessageSize int
	writeTimeout   time.Duration
	sshServer      *ssh.Server
	hub            *ipc.Hub

	// Active sessions
	mu      sync.Mutex
	clients map[string]*sshClient

	// Lifecycle
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Event handlers
	OnClientConnected    func(addr string, fingerprint string)
	OnClientDisconnected func(addr string)
}

// NewSSHServer creates a new SSH transport in front of hub
func NewSSHServer(port int, hostKeyPath, authKeysPath string, hub *ipc.Hub) *SSHServer {
	return &SSHServer{
		port:           port,
		hostKeyPath:    hostKeyPath,
		authKeysPath:   authKeysPath,
		maxMessageSize: ipc.DefaultMaxMessageSize,
		writeTimeout:   time.Second,
		hub:            hub,
		clients:        make(map[string]*sshClient),
		stop:           make(chan struct{}),
	}
}

// SetMaxMessageSize bounds inbound frames.
func (s *SSHServer) SetMaxMessageSize(n int) {
	if n > 0 {
		s.maxMessageSize = n
	}
}

// SetWriteTimeout bounds every write to a session. A session that does not
// drain its channel within d is closed.
func (s *SSHServer) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		s.writeTimeout = d
	}
}

// Start begins listening for SSH connections
func (s *SSHServer) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(fmt.Sprintf(":%d", s.port)),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			s.sessionHandler(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	s.sshServer = server

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger.Infof("SSH IPC server listening on port %d", s.port)
		if err := server.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
			logger.Errorf("SSH server error: %v", err)
		}
	}()

	// Handle context cancellation
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stop:
		}
	}()

	return nil
}

// Stop shuts down the SSH server
func (s *SSHServer) Stop() {
	s.stopOnce.Do(func() {
		// Sessions register under mu, so none can join the WaitGroup after this.
		s.mu.Lock()
		close(s.stop)
		s.mu.Unlock()

		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.sshServer.Shutdown(ctx)
		}

		// Close all active sessions
		s.mu.Lock()
		for _, client := range s.clients {
			_ = client.session.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
}

// Port returns the server's port
func (s *SSHServer) Port() int {
	return s.port
}

// ClientCount returns the number of open sessions.
func (s *SSHServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// publicKeyAuth accepts keys listed in the authorized_keys file
func (s *SSHServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	addr := ctx.RemoteAddr().String()

	logger.Infof("SSH authentication attempt addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)

	authorized, err := loadAuthorizedKeys(s.authKeysPath)
	if err != nil {
		logger.Errorf("Failed to load authorized keys: %v", err)
		return false
	}

	for _, k := range authorized {
		if ssh.KeysEqual(k, key) {
			return true
		}
	}

	logger.Infof("SSH key denied key=%s addr=%s", fingerprint, addr)
	return false
}

// loadAuthorizedKeys parses an OpenSSH authorized_keys file
func loadAuthorizedKeys(path string) ([]gossh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var keys []gossh.PublicKey
	for len(data) > 0 {
		key, _, _, rest, err := gossh.ParseAuthorizedKey(data)
		if err != nil {
			break
		}
		keys = append(keys, key)
		data = rest
	}
	return keys, nil
}

// loggingMiddleware provides custom logging using our internal logger
func (s *SSHServer) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("SSH session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

// sessionHandler registers the session with the hub and serves its requests
func (s *SSHServer) sessionHandler() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			addr := sess.RemoteAddr().String()
			var fingerprint string
			if sess.PublicKey() != nil {
				fingerprint = gossh.FingerprintSHA256(sess.PublicKey())
			}

			client := &sshClient{
				id:           uuid.NewString(),
				session:      sess,
				addr:         addr,
				fingerprint:  fingerprint,
				writeTimeout: s.writeTimeout,
			}

			s.mu.Lock()
			select {
			case <-s.stop:
				s.mu.Unlock()
				logger.Debugf("Rejecting SSH session from %s: server stopping", addr)
				_ = sess.Close()
				return
			default:
			}
			s.clients[client.id] = client
			s.wg.Add(1)
			s.mu.Unlock()
			s.hub.Connect(client)

			if s.OnClientConnected != nil {
				s.OnClientConnected(addr, fingerprint)
			}

			defer func() {
				s.mu.Lock()
				delete(s.clients, client.id)
				s.mu.Unlock()

				client.close()
				s.hub.Disconnect(client)

				if s.OnClientDisconnected != nil {
					s.OnClientDisconnected(addr)
				}
				s.wg.Done()
			}()

			s.serve(client)
			h(sess)
		}
	}
}

// serve reads requests from the session until it closes or the server stops
func (s *SSHServer) serve(client *sshClient) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-s.stop:
			client.close()
		case <-client.session.Context().Done():
		case <-done:
		}
	}()

	for {
		msg, err := ipc.ReadFrame(client.session, s.maxMessageSize)
		if err != nil {
			logger.Debugf("SSH session closed or read error: %v", err)
			return
		}

		var response ipc.Document
		method, data, err := ipc.ParseRequest(msg)
		if err != nil {
			response = ipc.Error(err.Error())
		} else {
			response = s.hub.Handle(client, method, data)
		}

		if err := client.Send(response); err != nil {
			logger.Errorf("Failed to send response to %s: %v", client.addr, err)
			return
		}
	}
}

// sshClient is the ipc.Client handle of one SSH session
type sshClient struct {
	id          string
	session     ssh.Session
	addr        string
	fingerprint  string
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *sshClient) ID() string {
	return c.id
}

// Send writes doc to the session. SSH channels have no write deadline, so a
// write that outlasts writeTimeout closes the session to release the writer.
func (c *sshClient) Send(doc ipc.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("session %s closed", c.addr)
	}

	if c.writeTimeout <= 0 {
		if err := ipc.WriteFrame(c.session, doc); err != nil {
			c.closeLocked()
			return err
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- ipc.WriteFrame(c.session, doc)
	}()

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			c.closeLocked()
		}
		return err
	case <-timer.C:
		c.closeLocked()
		return fmt.Errorf("session %s: write timed out after %s", c.addr, c.writeTimeout)
	}
}

func (c *sshClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *sshClient) closeLocked() {
	if !c.closed {
		c.closed = true
		_ = c.session.Close()
	}
}
