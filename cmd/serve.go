package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/wfplug/internal/activator"
	"github.com/bnema/wfplug/internal/config"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/bnema/wfplug/internal/network"
	"github.com/bnema/wfplug/internal/options"
	"github.com/bnema/wfplug/internal/plugin"
	"github.com/bnema/wfplug/internal/plugin/basic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	servePort      int
	serveEnableSSH bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the plugin host and its IPC socket",
	Long: `Run the plugin host. Plugins register their IPC methods, which are served on
the unix socket and, when enabled, over SSH.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveEnableSSH, "ssh-enabled", false, "Also serve IPC over SSH")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "SSH port to listen on")

	// Bind flags to viper
	_ = viper.BindPFlag("ssh.enabled", serveCmd.Flags().Lookup("ssh-enabled"))
	_ = viper.BindPFlag("ssh.port", serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
}

// daemon is the running process: registry, transports and plugins
type daemon struct {
	hub      *ipc.Hub
	store    *options.Store
	bindings *activator.Bindings
	manager  *plugin.Manager
	trigger  *ipc.Binding
	socket   *ipc.SocketServer
	ssh      *network.SSHServer
}

// newDaemon wires the registry and loads the built-in plugins
func newDaemon(cfg *config.Config, socket string) (*daemon, error) {
	d := &daemon{
		hub:      ipc.NewHub(ipc.NewRegistry(ipc.WithIntrospection())),
		store:    options.NewViperStore(),
		bindings: activator.NewBindings(),
	}

	trigger, err := d.bindings.RegisterMethod(d.hub.Registry())
	if err != nil {
		return nil, err
	}
	d.trigger = trigger

	d.manager = plugin.NewManager(plugin.NewHost(d.hub, d.store, d.bindings))
	if err := d.manager.Load(basic.New()); err != nil {
		_ = d.trigger.Close()
		return nil, err
	}

	d.socket = ipc.NewSocketServer(socket, d.hub,
		ipc.WithMaxMessageSize(cfg.IPC.MaxMessageSize),
		ipc.WithWriteTimeout(time.Duration(cfg.IPC.WriteTimeoutMs)*time.Millisecond),
	)

	if cfg.SSH.Enabled {
		d.ssh = network.NewSSHServer(cfg.SSH.Port, cfg.SSH.HostKeyPath, cfg.SSH.AuthorizedKeysPath, d.hub)
		d.ssh.SetMaxMessageSize(cfg.IPC.MaxMessageSize)
		d.ssh.SetWriteTimeout(time.Duration(cfg.IPC.WriteTimeoutMs) * time.Millisecond)
		d.ssh.OnClientConnected = func(addr, fingerprint string) {
			logger.Infof("SSH client connected addr=%s key=%s", addr, fingerprint)
		}
		d.ssh.OnClientDisconnected = func(addr string) {
			logger.Infof("SSH client disconnected addr=%s", addr)
		}
	}
	return d, nil
}

// start opens the transports
func (d *daemon) start(ctx context.Context) error {
	if err := d.socket.Start(); err != nil {
		return err
	}
	if d.ssh != nil {
		if err := d.ssh.Start(ctx); err != nil {
			d.socket.Stop()
			return err
		}
	}
	return nil
}

// reload re-reads plugin options after a config change
func (d *daemon) reload() {
	logger.Info("Configuration changed, reloading options")
	if err := d.store.Reload(); err != nil {
		logger.Warnf("Some options could not be reloaded: %v", err)
	}
	if level := config.Get().Logging.LogLevel; level != "" {
		logger.SetLevel(level)
	}
}

// stop closes transports first so every client is disconnected before
// plugins release their methods
func (d *daemon) stop() {
	if d.ssh != nil {
		d.ssh.Stop()
	}
	d.socket.Stop()
	d.manager.UnloadAll()
	_ = d.trigger.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := *config.Get()
	if servePort != 0 {
		cfg.SSH.Port = servePort
	}
	if serveEnableSSH {
		cfg.SSH.Enabled = true
	}

	d, err := newDaemon(&cfg, resolveSocketPath())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.start(ctx); err != nil {
		d.manager.UnloadAll()
		_ = d.trigger.Close()
		return fmt.Errorf("failed to start: %w", err)
	}
	defer d.stop()

	config.Watch(d.reload)

	logger.Infof("wfplug %s listening on %s", Version, d.socket.SocketPath())
	if d.ssh != nil {
		logger.Infof("SSH IPC enabled on port %d", d.ssh.Port())
	}
	for _, m := range d.hub.Registry().Methods() {
		logger.Debugf("Method available: %s", m)
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	return nil
}
