package activator

import (
	"fmt"
	"sync"

	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/options"
)

// NotHandledMessage is the error returned when the handler declines an IPC activation
const NotHandledMessage = "activator not handled"

// Handler runs for both binding and IPC activations
type Handler func(Data) bool

// Activator ties an activator option to an IPC method of the same name, so
// one handler serves key presses and socket calls alike.
type Activator struct {
	name     string
	bindings *Bindings
	handle   Handle
	method   *ipc.Binding

	mu      sync.RWMutex
	handler Handler
}

// New registers the binding callback and the IPC method for opt
func New(opt *options.Option[options.ActivatorBinding], bindings *Bindings, registry *ipc.Registry) (*Activator, error) {
	a := &Activator{
		name:     opt.Name(),
		bindings: bindings,
	}

	method, err := registry.Bind(a.name, a.handleIPC)
	if err != nil {
		return nil, fmt.Errorf("failed to register activator %s: %w", a.name, err)
	}
	a.method = method
	a.handle = bindings.Add(opt, a.Activate)
	return a, nil
}

// Name returns the option name, which is also the IPC method name
func (a *Activator) Name() string {
	return a.name
}

// SetHandler replaces the activation handler
func (a *Activator) SetHandler(h Handler) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

// Activate runs the handler. Without a handler nothing is consumed.
func (a *Activator) Activate(data Data) bool {
	a.mu.RLock()
	h := a.handler
	a.mu.RUnlock()

	if h == nil {
		return false
	}
	return h(data)
}

func (a *Activator) handleIPC(_ ipc.Client, request ipc.Document) ipc.Document {
	for _, field := range []string{"output_id", "view_id"} {
		if err := ipc.OptionalField(request, field, ipc.KindInteger); err != nil {
			return ipc.Error(err.Error())
		}
	}

	data := Data{Source: SourceIPC}
	if id, ok := request.Int("output_id"); ok {
		data.OutputID = id
	}
	if id, ok := request.Int("view_id"); ok {
		data.ViewID = id
	}

	if a.Activate(data) {
		return ipc.OK()
	}
	return ipc.Error(NotHandledMessage)
}

// Close removes the binding callback and the IPC method
func (a *Activator) Close() error {
	a.bindings.Remove(a.handle)
	return a.method.Close()
}
