// Package basic is the basic-example plugin: it reads its options, binds an
// activator and publishes a client-interest topic over IPC.
package basic

import (
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/plugin"
)

const (
	// Name of the plugin and the config section of its options
	Name = "basic-example"

	// ClientInterestMethod answers oneshot queries and manages subscribers
	ClientInterestMethod = Name + "/client-interest"

	// ActivatorName is both the activator option and its IPC method
	ActivatorName = Name + "/activator_option"

	// ScaleToggleMethod is called on activation when another plugin provides it
	ScaleToggleMethod = "scale/toggle"
)

// Plugin implements plugin.Plugin
type Plugin struct {
	options *optionHandler
	ipc     *ipcExample
}

// New creates the plugin; nothing is registered until Init
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string {
	return Name
}

func (p *Plugin) Init(host *plugin.Host) error {
	opts, err := newOptionHandler(host)
	if err != nil {
		return err
	}

	ipcExample, err := newIPCExample(host)
	if err != nil {
		opts.close()
		return err
	}

	p.options = opts
	p.ipc = ipcExample
	return nil
}

// Fini releases in reverse order of Init
func (p *Plugin) Fini() {
	if p.ipc != nil {
		p.ipc.close()
		p.ipc = nil
	}
	if p.options != nil {
		p.options.close()
		p.options = nil
	}
}

// Broker exposes the client-interest topic so the host can publish changes
func (p *Plugin) Broker() *ipc.Broker {
	if p.ipc == nil {
		return nil
	}
	return p.ipc.broker
}
