package ipc

import (
	"errors"
	"sort"
	"sync"

	"github.com/bnema/wfplug/internal/logger"
	"github.com/charmbracelet/log"
)

// Hub is shared by all transports. It serializes dispatches and client
// lifecycle events so that calls, registrations seen by calls, and
// disconnects are totally ordered, and it tells listeners about disconnects.
type Hub struct {
	loop     sync.Mutex
	registry *Registry
	clients  map[string]Client

	listenersMu sync.Mutex
	listeners   map[int]func(Client)
	nextID      int

	log *log.Logger
}

// NewHub creates a hub dispatching into registry
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry:  registry,
		clients:   make(map[string]Client),
		listeners: make(map[int]func(Client)),
		log:       logger.With("hub"),
	}
}

// Registry returns the registry requests are dispatched to.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect records a new client. Transports call it before the first request.
func (h *Hub) Connect(c Client) {
	h.loop.Lock()
	defer h.loop.Unlock()

	h.clients[c.ID()] = c
	h.log.Debug("client connected", "client", c.ID())
}

// Disconnect forgets c and notifies listeners. Repeated calls for the same
// client are ignored, so listeners see each client exactly once.
func (h *Hub) Disconnect(c Client) {
	h.loop.Lock()
	defer h.loop.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	delete(h.clients, c.ID())

	for _, fn := range h.snapshotListeners() {
		fn(c)
	}
	h.log.Debug("client disconnected", "client", c.ID())
}

// Handle dispatches one transport request. Unknown methods produce an error
// envelope for the remote caller instead of a Go error.
func (h *Hub) Handle(c Client, method string, data Document) Document {
	h.loop.Lock()
	defer h.loop.Unlock()

	resp, err := h.registry.Dispatch(c, method, data)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			return Error("No such method found!")
		}
		return Error(err.Error())
	}
	if resp == nil {
		return OK()
	}
	return resp
}

// OnClientDisconnected implements DisconnectNotifier.
func (h *Hub) OnClientDisconnected(fn func(Client)) func() {
	h.listenersMu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.listenersMu.Unlock()

	return func() {
		h.listenersMu.Lock()
		delete(h.listeners, id)
		h.listenersMu.Unlock()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.loop.Lock()
	defer h.loop.Unlock()
	return len(h.clients)
}

func (h *Hub) snapshotListeners() []func(Client) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()

	// Listener order follows registration order.
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(Client), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.listeners[id])
	}
	return fns
}
