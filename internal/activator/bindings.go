// Package activator dispatches activator bindings to plugin callbacks and
// exposes them as IPC methods.
package activator

import (
	"sync"

	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/bnema/wfplug/internal/options"
)

// TriggerMethodName is the IPC method that feeds a binding into Trigger
const TriggerMethodName = "bindings/trigger"

// Source tells a callback what activated it
type Source int

const (
	SourceKeybinding Source = iota
	SourceModifierbinding
	SourceButtonbinding
	SourceGesture
	SourceHotspot
	SourcePlugin
	SourceIPC
)

func (s Source) String() string {
	switch s {
	case SourceKeybinding:
		return "keybinding"
	case SourceModifierbinding:
		return "modifierbinding"
	case SourceButtonbinding:
		return "buttonbinding"
	case SourceGesture:
		return "gesture"
	case SourceHotspot:
		return "hotspot"
	case SourcePlugin:
		return "plugin"
	case SourceIPC:
		return "ipc"
	default:
		return "unknown"
	}
}

// SourceFor maps a binding kind to the source reported to callbacks
func SourceFor(kind options.BindingKind) Source {
	switch kind {
	case options.KindModifier:
		return SourceModifierbinding
	case options.KindButton:
		return SourceButtonbinding
	case options.KindGesture:
		return SourceGesture
	case options.KindHotspot:
		return SourceHotspot
	default:
		return SourceKeybinding
	}
}

// Data describes one activation
type Data struct {
	Source         Source
	ActivationData string // The binding that fired, in config syntax
	OutputID       int64  // 0 when not given
	ViewID         int64  // 0 when not given
}

// Callback handles an activation and reports whether it consumed it
type Callback func(Data) bool

// Handle identifies a registered callback
type Handle uint64

type entry struct {
	handle Handle
	option *options.Option[options.ActivatorBinding]
	cb     Callback
}

// Bindings holds the activator callbacks of all plugins. Each callback reads
// its option on every trigger, so config reloads apply without re-adding.
type Bindings struct {
	mu      sync.Mutex
	entries []entry
	next    Handle
}

// NewBindings creates an empty binding repository
func NewBindings() *Bindings {
	return &Bindings{}
}

// Add registers cb for the bindings held by opt
func (b *Bindings) Add(opt *options.Option[options.ActivatorBinding], cb Callback) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.entries = append(b.entries, entry{handle: b.next, option: opt, cb: cb})
	return b.next
}

// Remove drops the callback registered under h
func (b *Bindings) Remove(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.handle == h {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered callbacks
func (b *Bindings) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Trigger runs, in registration order, every callback whose option matches
// binding. It reports whether any callback consumed the activation.
func (b *Bindings) Trigger(binding options.Binding, data Data) bool {
	b.mu.Lock()
	matched := make([]entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.option.Value().Matches(binding) {
			matched = append(matched, e)
		}
	}
	b.mu.Unlock()

	if data.ActivationData == "" {
		data.ActivationData = binding.String()
	}

	handled := false
	for _, e := range matched {
		if e.cb(data) {
			handled = true
		}
	}

	logger.Debugf("Binding %q matched %d callbacks, handled=%v", data.ActivationData, len(matched), handled)
	return handled
}

// RegisterMethod exposes Trigger over IPC as bindings/trigger. The request
// carries "binding" and optional "output_id" and "view_id".
func (b *Bindings) RegisterMethod(registry *ipc.Registry) (*ipc.Binding, error) {
	return registry.Bind(TriggerMethodName, b.handleTrigger)
}

func (b *Bindings) handleTrigger(_ ipc.Client, request ipc.Document) ipc.Document {
	if err := ipc.ExpectField(request, "binding", ipc.KindString); err != nil {
		return ipc.Error(err.Error())
	}
	req, err := decodeRequest(request)
	if err != nil {
		return ipc.Error(err.Error())
	}

	binding, err := options.ParseBinding(req.Binding)
	if err != nil {
		return ipc.Error(err.Error())
	}

	handled := b.Trigger(binding, Data{
		Source:   SourceFor(binding.Kind),
		OutputID: req.OutputID,
		ViewID:   req.ViewID,
	})

	resp := ipc.OK()
	resp["handled"] = handled
	return resp
}

type triggerRequest struct {
	Binding  string `mapstructure:"binding"`
	OutputID int64  `mapstructure:"output_id"`
	ViewID   int64  `mapstructure:"view_id"`
}

func decodeRequest(request ipc.Document) (triggerRequest, error) {
	for _, field := range []string{"output_id", "view_id"} {
		if err := ipc.OptionalField(request, field, ipc.KindInteger); err != nil {
			return triggerRequest{}, err
		}
	}

	var req triggerRequest
	if err := ipc.Decode(request, &req); err != nil {
		return triggerRequest{}, err
	}
	return req, nil
}
