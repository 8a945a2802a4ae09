package network

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/wfplug/internal/ipc"
	"golang.org/x/crypto/ssh"
)

// DefaultKeyPath returns the first of ~/.ssh/id_ed25519 and ~/.ssh/id_rsa that exists
func DefaultKeyPath() string {
	homeDir, _ := os.UserHomeDir()
	keyPaths := []string{
		filepath.Join(homeDir, ".ssh", "id_ed25519"),
		filepath.Join(homeDir, ".ssh", "id_rsa"),
	}

	for _, path := range keyPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DialSSH opens an SSH session to addr and returns it as an IPC connection
func DialSSH(addr, privateKeyPath string, timeout time.Duration) (*ipc.Conn, error) {
	if privateKeyPath == "" {
		privateKeyPath = DefaultKeyPath()
	}

	// Load private key
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User: "wfplug",
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: check against a known_hosts file
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to start SSH session: %w", err)
	}

	return ipc.NewConn(&sessionStream{
		Writer:  stdin,
		Reader:  stdout,
		session: session,
		client:  client,
	}, timeout), nil
}

// sessionStream joins the session pipes into one stream
type sessionStream struct {
	io.Writer
	io.Reader
	session *ssh.Session
	client  *ssh.Client
}

func (s *sessionStream) Close() error {
	_ = s.session.Close()
	return s.client.Close()
}
