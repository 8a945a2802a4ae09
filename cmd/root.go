package cmd

import (
	"fmt"
	"time"

	"github.com/bnema/wfplug/internal/config"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/bnema/wfplug/internal/network"
	"github.com/spf13/cobra"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configFile   string
	socketPath   string
	sshAddr      string
	identityFile string
	callTimeout  time.Duration

	rootCmd = &cobra.Command{
		Use:   "wfplug",
		Short: "wfplug - plugin host with a pub/sub IPC method registry",
		Long: `wfplug hosts plugins that publish named IPC methods. Clients call them over a
unix socket (or SSH), either for one-shot answers or to subscribe to events.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $XDG_CONFIG_HOME/wfplug/wfplug.toml)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "IPC socket path")
	rootCmd.PersistentFlags().StringVar(&sshAddr, "ssh", "", "Reach a remote wfplug over SSH at host:port instead of the local socket")
	rootCmd.PersistentFlags().StringVarP(&identityFile, "identity", "i", "", "SSH private key (default ~/.ssh/id_ed25519 or ~/.ssh/id_rsa)")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 5*time.Second, "Connect and call timeout")
}

func initConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		config.SetConfigPath(configFile)
	}
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	if level := config.Get().Logging.LogLevel; level != "" {
		logger.SetLevel(level)
	}
	return nil
}

// resolveSocketPath prefers the flag over the config file
func resolveSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return config.SocketPath()
}

// dial opens a connection to the running wfplug, locally or over SSH
func dial() (*ipc.Conn, string, error) {
	if sshAddr != "" {
		conn, err := network.DialSSH(sshAddr, identityFile, callTimeout)
		return conn, sshAddr, err
	}

	path := resolveSocketPath()
	conn, err := ipc.Dial(path, callTimeout)
	return conn, path, err
}
