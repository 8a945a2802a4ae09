package network

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bnema/wfplug/internal/ipc"
	"github.com/charmbracelet/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topic = "basic-example/client-interest"

type testKeys struct {
	host, client, authorized string
}

func setupKeys(t *testing.T) testKeys {
	t.Helper()
	dir := t.TempDir()
	keys := testKeys{
		host:       filepath.Join(dir, "host_key"),
		client:     filepath.Join(dir, "client_key"),
		authorized: filepath.Join(dir, "authorized_keys"),
	}
	require.NoError(t, GenerateTestKeys(keys.host, keys.client, keys.authorized))
	return keys
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startSSH(t *testing.T, keys testKeys, configure func(*SSHServer)) (*SSHServer, *ipc.Hub, *ipc.Broker, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping SSH test in short mode")
	}

	hub := ipc.NewHub(ipc.NewRegistry(ipc.WithIntrospection()))
	broker, err := ipc.NewBroker(topic, hub.Registry(), hub)
	require.NoError(t, err)

	port := freePort(t)
	server := NewSSHServer(port, keys.host, keys.authorized, hub)
	if configure != nil {
		configure(server)
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() {
		cancel()
		server.Stop()
		_ = broker.Close()
	})

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	return server, hub, broker, addr
}

func TestSSHServerPort(t *testing.T) {
	server := NewSSHServer(52600, "host_key", "authorized_keys", ipc.NewHub(ipc.NewRegistry()))
	assert.Equal(t, 52600, server.Port())
	assert.Equal(t, 0, server.ClientCount())
}

func TestSSHCallAndSubscribe(t *testing.T) {
	keys := setupKeys(t)
	connected := make(chan string, 1)
	_, hub, broker, addr := startSSH(t, keys, func(s *SSHServer) {
		s.OnClientConnected = func(addr, fingerprint string) {
			connected <- fingerprint
		}
	})

	conn, err := DialSSH(addr, keys.client, 5*time.Second)
	require.NoError(t, err)

	resp, err := conn.Call(ipc.ListMethodsName, nil)
	require.NoError(t, err)
	assert.Contains(t, resp["methods"], topic)

	select {
	case fp := <-connected:
		assert.Contains(t, fp, "SHA256:")
	case <-time.After(2 * time.Second):
		t.Fatal("OnClientConnected was not called")
	}

	resp, err = conn.Call(topic, ipc.Document{"type": ipc.InterestSubscribe})
	require.NoError(t, err)
	assert.Equal(t, ipc.SubscribersChangedEvent, resp["event"])
	_, err = conn.Next()
	require.NoError(t, err)

	assert.Equal(t, 1, broker.SubscriberCount())
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0 && hub.ClientCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSSHRejectsUnknownKey(t *testing.T) {
	keys := setupKeys(t)
	_, _, _, addr := startSSH(t, keys, nil)

	// A second key pair that is not in authorized_keys
	other := setupKeys(t)
	_, err := DialSSH(addr, other.client, 2*time.Second)
	assert.Error(t, err)
}

func TestLoadAuthorizedKeys(t *testing.T) {
	keys := setupKeys(t)

	parsed, err := loadAuthorizedKeys(keys.authorized)
	require.NoError(t, err)
	assert.Len(t, parsed, 1)

	_, err = loadAuthorizedKeys(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, os.IsNotExist(err))
}

func TestDialSSHMissingKey(t *testing.T) {
	_, err := DialSSH("127.0.0.1:1", filepath.Join(t.TempDir(), "nope"), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")
}

// fakeSession is an in-memory ssh.Session. A stalled session blocks every
// write until it is closed, like a peer that stopped reading.
type fakeSession struct {
	ssh.Session
	stalled bool

	mu        sync.Mutex
	buf       bytes.Buffer
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession(stalled bool) *fakeSession {
	return &fakeSession{stalled: stalled, closed: make(chan struct{})}
}

func (f *fakeSession) Write(p []byte) (int, error) {
	if f.stalled {
		<-f.closed
		return 0, io.ErrClosedPipe
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(p)
}

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

func (f *fakeSession) PublicKey() ssh.PublicKey {
	return nil
}

func (f *fakeSession) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func TestSSHStalledSubscriberDoesNotBlockHub(t *testing.T) {
	hub := ipc.NewHub(ipc.NewRegistry())
	broker, err := ipc.NewBroker(topic, hub.Registry(), hub)
	require.NoError(t, err)
	defer broker.Close()

	stalledSession := newFakeSession(true)
	stalled := &sshClient{id: "stalled", session: stalledSession, addr: "stalled", writeTimeout: 50 * time.Millisecond}
	hub.Connect(stalled)

	// The subscribe broadcast reaches only the subscriber that is already stalled.
	done := make(chan ipc.Document, 1)
	go func() {
		done <- hub.Handle(stalled, topic, ipc.Document{"type": ipc.InterestSubscribe})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled subscriber blocked its own subscribe")
	}
	assert.True(t, stalledSession.isClosed())

	readerSession := newFakeSession(false)
	reader := &sshClient{id: "reader", session: readerSession, addr: "reader", writeTimeout: 50 * time.Millisecond}
	hub.Connect(reader)

	go func() {
		done <- hub.Handle(reader, topic, ipc.Document{"type": ipc.InterestSubscribe})
	}()
	select {
	case resp := <-done:
		assert.Equal(t, ipc.SubscribersChangedEvent, resp["event"])
	case <-time.After(2 * time.Second):
		t.Fatal("second client's call was blocked by the stalled subscriber")
	}

	frame, err := ipc.ReadFrame(bytes.NewReader(readerSession.buf.Bytes()), ipc.DefaultMaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, ipc.SubscribersChangedEvent, frame["event"])

	err = stalled.Send(ipc.OK())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestSSHSessionRejectedAfterStop(t *testing.T) {
	hub := ipc.NewHub(ipc.NewRegistry())
	server := NewSSHServer(0, "host_key", "authorized_keys", hub)

	connected := false
	server.OnClientConnected = func(string, string) { connected = true }
	server.Stop()

	sess := newFakeSession(false)
	handler := server.sessionHandler()(func(ssh.Session) {
		t.Error("next handler ran for a rejected session")
	})
	handler(sess)

	assert.True(t, sess.isClosed())
	assert.False(t, connected)
	assert.Equal(t, 0, server.ClientCount())
	assert.Equal(t, 0, hub.ClientCount())
}
