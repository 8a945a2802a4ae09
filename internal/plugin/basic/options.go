package basic

import (
	"github.com/bnema/wfplug/internal/activator"
	"github.com/bnema/wfplug/internal/options"
	"github.com/bnema/wfplug/internal/plugin"
	"github.com/charmbracelet/log"
)

// optionHandler reads the plugin options and owns the activator binding
type optionHandler struct {
	log      *log.Logger
	bindings *activator.Bindings
	handle   activator.Handle

	intOpt       *options.Option[int]
	doubleOpt    *options.Option[float64]
	boolOpt      *options.Option[bool]
	stringOpt    *options.Option[string]
	activatorOpt *options.Option[options.ActivatorBinding]
	listOpt      *options.Option[[]options.ListEntry]
}

func newOptionHandler(host *plugin.Host) (*optionHandler, error) {
	h := &optionHandler{
		log:      host.Logger.With("component", "options"),
		bindings: host.Bindings,
	}

	var err error
	if h.intOpt, err = host.Options.Int(Name + "/int_option"); err != nil {
		return nil, err
	}
	if h.doubleOpt, err = host.Options.Double(Name + "/double_option"); err != nil {
		return nil, err
	}
	if h.boolOpt, err = host.Options.Bool(Name + "/bool_option"); err != nil {
		return nil, err
	}
	if h.stringOpt, err = host.Options.String(Name + "/string_option"); err != nil {
		return nil, err
	}
	if h.activatorOpt, err = host.Options.Activator(ActivatorName); err != nil {
		return nil, err
	}
	if h.listOpt, err = host.Options.List(Name + "/list_opt"); err != nil {
		return nil, err
	}

	if h.intOpt.Value() == 5 {
		h.log.Info("basic-example/int_option is 5!")
	} else {
		h.log.Info("basic-example/int_option is not 5!")
	}

	for _, e := range h.listOpt.Value() {
		h.log.Info("List entry", "name", e.Name, "binding", e.Binding, "command", e.Command, "type", e.Type)
	}

	h.handle = h.bindings.Add(h.activatorOpt, h.onActivatorTriggered)

	// Pin bool_option so config reloads cannot turn it off again
	h.boolOpt.SetLocked()
	h.boolOpt.SetValue(true)

	return h, nil
}

func (h *optionHandler) onActivatorTriggered(data activator.Data) bool {
	switch data.Source {
	case activator.SourceKeybinding:
		h.log.Info("Plugin activated with key", "binding", data.ActivationData)
	case activator.SourceModifierbinding:
		h.log.Info("Plugin activated with modifier", "binding", data.ActivationData)
	case activator.SourceButtonbinding:
		h.log.Info("Plugin activated with button", "binding", data.ActivationData)
	}

	// Consume the input event
	return true
}

func (h *optionHandler) close() {
	h.bindings.Remove(h.handle)
	h.boolOpt.Unlock()
}
