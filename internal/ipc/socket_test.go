package ipc

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSocketPath keeps the path short; unix socket paths are limited to ~108 bytes.
func testSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wfplug")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "test.sock")
}

func startTestServer(t *testing.T) (*SocketServer, *Hub, *Broker) {
	t.Helper()
	hub := NewHub(NewRegistry(WithIntrospection()))
	broker, err := NewBroker(topic, hub.Registry(), hub)
	require.NoError(t, err)

	server := NewSocketServer(testSocketPath(t), hub, WithWriteTimeout(200*time.Millisecond))
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		server.Stop()
		_ = broker.Close()
	})
	return server, hub, broker
}

func TestSocketServerStartStop(t *testing.T) {
	hub := NewHub(NewRegistry())
	server := NewSocketServer(testSocketPath(t), hub)

	require.NoError(t, server.Start())

	_, err := os.Stat(server.SocketPath())
	assert.NoError(t, err, "socket file was not created")

	// Starting again should not error
	assert.NoError(t, server.Start())

	server.Stop()

	_, err = os.Stat(server.SocketPath())
	assert.True(t, os.IsNotExist(err), "socket file was not cleaned up")

	// Stopping again should not panic
	server.Stop()
}

func TestSocketServerCleanupExistingSocket(t *testing.T) {
	hub := NewHub(NewRegistry())
	server := NewSocketServer(testSocketPath(t), hub)

	file, err := os.Create(server.SocketPath())
	require.NoError(t, err)
	file.Close()

	require.NoError(t, server.Start())
	server.Stop()
}

func TestSocketCallRoundTrip(t *testing.T) {
	server, _, _ := startTestServer(t)

	conn, err := Dial(server.SocketPath(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := conn.Call(topic, Document{"type": InterestOneshot})
	require.NoError(t, err)
	require.NoError(t, ResponseError(resp))
	n, ok := resp.Int("nr-subscribers")
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)

	resp, err = conn.Call(ListMethodsName, nil)
	require.NoError(t, err)
	assert.Contains(t, resp["methods"], topic)

	resp, err = conn.Call("nobody/home", nil)
	require.NoError(t, err)
	assert.Equal(t, "No such method found!", resp.ErrorMessage())
}

func TestSocketSubscribeAndDisconnect(t *testing.T) {
	server, _, broker := startTestServer(t)

	first, err := Dial(server.SocketPath(), time.Second)
	require.NoError(t, err)
	defer first.Close()

	// The subscriber gets the broadcast copy and then the direct response.
	resp, err := first.Call(topic, Document{"type": InterestSubscribe})
	require.NoError(t, err)
	assert.Equal(t, SubscribersChangedEvent, resp["event"])
	resp, err = first.Next()
	require.NoError(t, err)
	n, _ := resp.Int("nr-subscribers")
	assert.Equal(t, int64(1), n)

	second, err := Dial(server.SocketPath(), time.Second)
	require.NoError(t, err)

	_, err = second.Call(topic, Document{"type": InterestSubscribe})
	require.NoError(t, err)

	event, err := first.Next()
	require.NoError(t, err)
	n, _ = event.Int("nr-subscribers")
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, broker.SubscriberCount())

	require.NoError(t, second.Close())

	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A oneshot from a third connection sees the cleaned-up list
	third, err := Dial(server.SocketPath(), time.Second)
	require.NoError(t, err)
	defer third.Close()

	resp, err = third.Call(topic, Document{"type": InterestOneshot})
	require.NoError(t, err)
	n, _ = resp.Int("nr-subscribers")
	assert.Equal(t, int64(1), n)
}

func TestSocketStopDisconnectsClients(t *testing.T) {
	hub := NewHub(NewRegistry())
	broker, err := NewBroker(topic, hub.Registry(), hub)
	require.NoError(t, err)
	defer broker.Close()

	server := NewSocketServer(testSocketPath(t), hub)
	require.NoError(t, server.Start())

	conn, err := Dial(server.SocketPath(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Call(topic, Document{"type": InterestSubscribe})
	require.NoError(t, err)
	require.Equal(t, 1, broker.SubscriberCount())

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() took too long")
	}

	assert.Equal(t, 0, broker.SubscriberCount())
	assert.Equal(t, 0, hub.ClientCount())
}

func TestSocketClientSendTimeoutClosesConnection(t *testing.T) {
	server, peer := net.Pipe()
	defer peer.Close()

	client := &socketClient{id: "stalled", conn: server, writeTimeout: 50 * time.Millisecond}

	// Nobody reads from peer, so the write runs into its deadline.
	start := time.Now()
	err := client.Send(Document{"event": "x"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The peer sees the stream end instead of the rest of a frame.
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	_, err = peer.Read(make([]byte, 16))
	assert.ErrorIs(t, err, io.EOF)

	err = client.Send(Document{"event": "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestDialNotRunning(t *testing.T) {
	_, err := Dial(testSocketPath(t), 100*time.Millisecond)
	assert.Error(t, err)
}
