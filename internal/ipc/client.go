package ipc

// Client is the server-side handle of one connected caller. Handles are
// owned by the transport that created them; other components only keep
// references until the disconnect notification.
type Client interface {
	// ID is unique for the lifetime of the process.
	ID() string
	// Send pushes a document to the caller outside of the request/response cycle.
	Send(doc Document) error
}

// DisconnectNotifier is implemented by transports. fn runs exactly once per
// client when it goes away. The returned func detaches fn.
type DisconnectNotifier interface {
	OnClientDisconnected(fn func(Client)) (detach func())
}
