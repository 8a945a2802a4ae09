package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/bnema/wfplug/internal/config"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage wfplug configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Config file: %s\n\n", config.GetConfigPath())

		fmt.Fprintln(out, "[ipc]")
		fmt.Fprintf(out, "  Socket: %s\n", config.SocketPath())
		fmt.Fprintf(out, "  Max Message Size: %d bytes\n", cfg.IPC.MaxMessageSize)
		fmt.Fprintf(out, "  Write Timeout: %d ms\n", cfg.IPC.WriteTimeoutMs)

		fmt.Fprintln(out, "\n[ssh]")
		fmt.Fprintf(out, "  Enabled: %v\n", cfg.SSH.Enabled)
		fmt.Fprintf(out, "  Port: %d\n", cfg.SSH.Port)
		fmt.Fprintf(out, "  Host Key: %s\n", cfg.SSH.HostKeyPath)
		fmt.Fprintf(out, "  Authorized Keys: %s\n", cfg.SSH.AuthorizedKeysPath)

		fmt.Fprintln(out, "\n[logging]")
		fmt.Fprintf(out, "  Level: %s\n", cfg.Logging.LogLevel)

		// Plugin sections are whatever is left in viper
		sections := viper.AllSettings()
		names := make([]string, 0, len(sections))
		for name := range sections {
			switch name {
			case "ipc", "ssh", "logging":
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			opts, ok := sections[name].(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Fprintf(out, "\n[%s]\n", name)

			keys := make([]string, 0, len(opts))
			for k := range opts {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, k := range keys {
				if _, err := fmt.Fprintf(w, "  %s\t%v\n", k, opts[k]); err != nil {
					logger.Errorf("Failed to write option: %v", err)
				}
			}
			if err := w.Flush(); err != nil {
				logger.Errorf("Failed to flush writer: %v", err)
			}
		}
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save current configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite existing configuration")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
