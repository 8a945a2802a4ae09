package ipc

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/wfplug/internal/logger"
	"github.com/charmbracelet/log"
)

var (
	// ErrDuplicateMethod is returned by Register when the name is already bound.
	ErrDuplicateMethod = errors.New("method already registered")
	// ErrMethodNotFound is returned by Unregister, Call and Dispatch for unbound names.
	ErrMethodNotFound = errors.New("no such method")
)

// ListMethodsName is the built-in introspection method installed by WithIntrospection.
const ListMethodsName = "ipc/list-methods"

// Handler serves one IPC method. client is nil when the call did not come
// from a transport, e.g. when another plugin calls the method directly.
type Handler func(client Client, request Document) Document

// Registry maps method names to handlers.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Handler
	log     *log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIntrospection installs the ipc/list-methods method.
func WithIntrospection() RegistryOption {
	return func(r *Registry) {
		r.methods[ListMethodsName] = r.listMethods
	}
}

// NewRegistry creates an empty method registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		methods: make(map[string]Handler),
		log:     logger.With("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds name to handler. The method is callable as soon as Register returns.
func (r *Registry) Register(name string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("method %s: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
	}
	r.methods[name] = handler
	r.log.Debug("method registered", "method", name)
	return nil
}

// Unregister removes name. Every registrant must call it before it goes away.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; !exists {
		return fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	delete(r.methods, name)
	r.log.Debug("method unregistered", "method", name)
	return nil
}

// Call invokes name without a current client.
func (r *Registry) Call(name string, request Document) (Document, error) {
	return r.Dispatch(nil, name, request)
}

// Dispatch invokes name on behalf of client and returns the handler's
// response verbatim. The lock is released before the handler runs so
// handlers can call other methods.
func (r *Registry) Dispatch(client Client, name string, request Document) (Document, error) {
	r.mu.RLock()
	handler, exists := r.methods[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	if request == nil {
		request = Document{}
	}
	return handler(client, request), nil
}

// Has reports whether name is bound.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.methods[name]
	return exists
}

// Methods returns the bound method names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) listMethods(_ Client, _ Document) Document {
	names := r.Methods()
	list := make([]interface{}, len(names))
	for i, n := range names {
		list[i] = n
	}
	resp := OK()
	resp["methods"] = list
	return resp
}

// Binding is a registration that is released by Close.
type Binding struct {
	registry *Registry
	name     string
	once     sync.Once
	err      error
}

// Bind registers handler and returns a Binding that unregisters it on Close.
func (r *Registry) Bind(name string, handler Handler) (*Binding, error) {
	if err := r.Register(name, handler); err != nil {
		return nil, err
	}
	return &Binding{registry: r, name: name}, nil
}

// Name returns the bound method name.
func (b *Binding) Name() string {
	return b.name
}

// Close unregisters the method. Only the first call has an effect.
func (b *Binding) Close() error {
	b.once.Do(func() {
		b.err = b.registry.Unregister(b.name)
	})
	return b.err
}
