package basic

import (
	"github.com/bnema/wfplug/internal/activator"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/plugin"
	"github.com/charmbracelet/log"
)

// ipcExample owns the client-interest topic and the activator method
type ipcExample struct {
	log       *log.Logger
	registry  *ipc.Registry
	broker    *ipc.Broker
	activator *activator.Activator
}

func newIPCExample(host *plugin.Host) (*ipcExample, error) {
	e := &ipcExample{
		log:      host.Logger.With("component", "ipc"),
		registry: host.Registry,
	}

	broker, err := ipc.NewBroker(ClientInterestMethod, host.Registry, host.Transport)
	if err != nil {
		return nil, err
	}
	e.broker = broker

	opt, err := host.Options.Activator(ActivatorName)
	if err != nil {
		_ = broker.Close()
		return nil, err
	}

	act, err := activator.New(opt, host.Bindings, host.Registry)
	if err != nil {
		_ = broker.Close()
		return nil, err
	}
	act.SetHandler(e.onActivator)
	e.activator = act

	return e, nil
}

func (e *ipcExample) onActivator(data activator.Data) bool {
	e.log.Debug("Activator triggered", "source", data.Source, "output", data.OutputID, "view", data.ViewID)

	// Other plugins' methods are reachable through the same registry
	if e.registry.Has(ScaleToggleMethod) && data.OutputID != 0 {
		resp, err := e.registry.Call(ScaleToggleMethod, ipc.Document{"output_id": data.OutputID})
		if err != nil || resp.IsError() {
			e.log.Warn("Failed to toggle scale", "err", err, "response", resp.ErrorMessage())
		}
	}

	return true
}

func (e *ipcExample) close() {
	if err := e.activator.Close(); err != nil {
		e.log.Warn("Failed to close activator", "err", err)
	}
	if err := e.broker.Close(); err != nil {
		e.log.Warn("Failed to close broker", "err", err)
	}
}
