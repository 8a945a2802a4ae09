// Package plugin loads plugins into the wfplug host and tears them down again.
package plugin

import (
	"fmt"
	"sync"

	"github.com/bnema/wfplug/internal/activator"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/bnema/wfplug/internal/options"
	"github.com/charmbracelet/log"
)

// Plugin is a unit of functionality with an explicit lifecycle. Fini must
// release everything Init acquired.
type Plugin interface {
	Name() string
	Init(host *Host) error
	Fini()
}

// Host is what the process hands to each plugin
type Host struct {
	Registry  *ipc.Registry
	Transport ipc.DisconnectNotifier
	Options   *options.Store
	Bindings  *activator.Bindings
	Logger    *log.Logger
}

// NewHost builds a host around hub
func NewHost(hub *ipc.Hub, store *options.Store, bindings *activator.Bindings) *Host {
	return &Host{
		Registry:  hub.Registry(),
		Transport: hub,
		Options:   store,
		Bindings:  bindings,
		Logger:    logger.With("plugin"),
	}
}

// Manager tracks loaded plugins in load order
type Manager struct {
	host *Host

	mu      sync.Mutex
	plugins []Plugin
}

// NewManager creates a manager that initializes plugins with host
func NewManager(host *Host) *Manager {
	return &Manager{host: host}
}

// Load initializes p. A failed Init leaves nothing loaded.
func (m *Manager) Load(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, loaded := range m.plugins {
		if loaded.Name() == p.Name() {
			return fmt.Errorf("plugin %s is already loaded", p.Name())
		}
	}

	if err := p.Init(m.host); err != nil {
		return fmt.Errorf("failed to init plugin %s: %w", p.Name(), err)
	}

	m.plugins = append(m.plugins, p)
	logger.Infof("Loaded plugin %s", p.Name())
	return nil
}

// Unload runs Fini for the named plugin
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.plugins {
		if p.Name() == name {
			p.Fini()
			m.plugins = append(m.plugins[:i], m.plugins[i+1:]...)
			logger.Infof("Unloaded plugin %s", name)
			return nil
		}
	}
	return fmt.Errorf("plugin %s is not loaded", name)
}

// UnloadAll runs Fini for every plugin, newest first
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.plugins) - 1; i >= 0; i-- {
		m.plugins[i].Fini()
		logger.Infof("Unloaded plugin %s", m.plugins[i].Name())
	}
	m.plugins = nil
}

// Loaded returns the names of loaded plugins in load order
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.plugins))
	for i, p := range m.plugins {
		names[i] = p.Name()
	}
	return names
}
