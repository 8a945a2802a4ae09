package ipc

import (
	"errors"
	"sync"
)

// fakeClient records pushed documents. Setting fail makes every Send fail.
type fakeClient struct {
	id    string
	fail  error
	order *deliveryLog

	mu       sync.Mutex
	received []Document
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id}
}

func (c *fakeClient) ID() string {
	return c.id
}

func (c *fakeClient) Send(doc Document) error {
	if c.order != nil {
		c.order.add(c.id)
	}
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, doc)
	return nil
}

func (c *fakeClient) Received() []Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Document, len(c.received))
	copy(out, c.received)
	return out
}

// deliveryLog records the order in which clients were sent to.
type deliveryLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *deliveryLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *deliveryLog) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

var errClosing = errors.New("transport closing")
