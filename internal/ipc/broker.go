package ipc

import (
	"fmt"
	"sync"

	"github.com/bnema/wfplug/internal/logger"
	"github.com/charmbracelet/log"
)

// Request types accepted by a Broker method.
const (
	InterestOneshot   = "oneshot"
	InterestSubscribe = "subscribe"
)

// SubscribersChangedEvent tags documents pushed to subscribers.
const SubscribersChangedEvent = "nr-subscribers-changed"

// Broker serves one topic method. Callers either ask for a snapshot
// ("oneshot") or join the subscriber list ("subscribe") and get every
// subsequent broadcast pushed to them until they disconnect.
type Broker struct {
	mu          sync.Mutex
	subscribers []Client

	binding *Binding
	detach  func()
	log     *log.Logger
}

// NewBroker registers method in registry and starts listening for client
// disconnects on notifier. Close undoes both.
func NewBroker(method string, registry *Registry, notifier DisconnectNotifier) (*Broker, error) {
	b := &Broker{
		log: logger.With("broker").With("method", method),
	}

	binding, err := registry.Bind(method, b.HandleRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to register broker method: %w", err)
	}
	b.binding = binding

	if notifier != nil {
		b.detach = notifier.OnClientDisconnected(b.ClientDisconnected)
	}
	return b, nil
}

// Method returns the registered method name.
func (b *Broker) Method() string {
	return b.binding.Name()
}

// HandleRequest is the IPC handler of the topic method.
func (b *Broker) HandleRequest(client Client, request Document) Document {
	if err := ExpectField(request, "type", KindString); err != nil {
		return Error(err.Error())
	}
	// Optional arguments may be omitted, but must have the right type when given.
	if err := OptionalField(request, "optional", KindInteger); err != nil {
		return Error(err.Error())
	}

	kind, _ := request.String("type")
	switch kind {
	case InterestOneshot:
		resp := OK()
		resp["nr-subscribers"] = b.SubscriberCount()
		return resp

	case InterestSubscribe:
		// Internal callers have no client, so there is nothing to subscribe.
		if client != nil {
			b.add(client)
		}
		return b.Broadcast()

	default:
		return Error("Invalid interest type!")
	}
}

func (b *Broker) add(client Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.subscribers {
		if c.ID() == client.ID() {
			return
		}
	}
	b.subscribers = append(b.subscribers, client)
	b.log.Debug("client subscribed", "client", client.ID(), "subscribers", len(b.subscribers))
}

// ClientDisconnected drops client from the subscriber list. Unknown clients are ignored.
func (b *Broker) ClientDisconnected(client Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.subscribers {
		if c.ID() == client.ID() {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			b.log.Debug("subscriber removed", "client", client.ID(), "subscribers", len(b.subscribers))
			return
		}
	}
}

// Broadcast pushes the current subscriber count to every subscriber in
// subscription order and returns the pushed document. A failed delivery is
// logged and does not stop delivery to the others.
func (b *Broker) Broadcast() Document {
	b.mu.Lock()
	subs := make([]Client, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	resp := OK()
	resp["event"] = SubscribersChangedEvent
	resp["nr-subscribers"] = len(subs)

	for _, sub := range subs {
		if err := sub.Send(resp.Clone()); err != nil {
			b.log.Warn("failed to notify subscriber", "client", sub.ID(), "err", err)
		}
	}
	return resp
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Subscribers returns the subscribers in subscription order.
func (b *Broker) Subscribers() []Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Client, len(b.subscribers))
	copy(out, b.subscribers)
	return out
}

// Close unregisters the topic method and stops tracking disconnects. Current
// subscribers are dropped without a notification.
func (b *Broker) Close() error {
	if b.detach != nil {
		b.detach()
		b.detach = nil
	}

	b.mu.Lock()
	b.subscribers = nil
	b.mu.Unlock()

	return b.binding.Close()
}
