// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// IPC socket configuration
	IPC IPCConfig `mapstructure:"ipc"`

	// Remote IPC over SSH
	SSH SSHConfig `mapstructure:"ssh"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// IPCConfig contains settings of the local unix socket transport
type IPCConfig struct {
	SocketPath     string `mapstructure:"socket_path"`      // Empty means $XDG_RUNTIME_DIR/wfplug.sock
	MaxMessageSize int    `mapstructure:"max_message_size"` // Upper bound for a single frame, in bytes
	WriteTimeoutMs int    `mapstructure:"write_timeout_ms"` // Per-client write deadline for pushed events
}

// SSHConfig contains settings of the SSH transport
type SSHConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Port               int    `mapstructure:"port"`
	HostKeyPath        string `mapstructure:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		IPC: IPCConfig{
			SocketPath:     "",
			MaxMessageSize: 1 << 20,
			WriteTimeoutMs: 500,
		},
		SSH: SSHConfig{
			Enabled:            false,
			Port:               52600,
			HostKeyPath:        filepath.Join(configDir(), "host_key"),
			AuthorizedKeysPath: filepath.Join(configDir(), "authorized_keys"),
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Plugin option defaults, keyed by their viper path
	optionDefaults = map[string]interface{}{
		"basic-example.int_option":       5,
		"basic-example.double_option":    0.5,
		"basic-example.bool_option":      false,
		"basic-example.string_option":    "hello",
		"basic-example.activator_option": "<super> <shift> KEY_E",
		"basic-example.list_opt":         []map[string]interface{}{},
	}

	// Global config instance
	cfg *Config
	mu  sync.RWMutex

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	// Set config name and type
	viper.SetConfigName("wfplug")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("ipc.socket_path", DefaultConfig.IPC.SocketPath)
	viper.SetDefault("ipc.max_message_size", DefaultConfig.IPC.MaxMessageSize)
	viper.SetDefault("ipc.write_timeout_ms", DefaultConfig.IPC.WriteTimeoutMs)

	viper.SetDefault("ssh.enabled", DefaultConfig.SSH.Enabled)
	viper.SetDefault("ssh.port", DefaultConfig.SSH.Port)
	viper.SetDefault("ssh.host_key_path", DefaultConfig.SSH.HostKeyPath)
	viper.SetDefault("ssh.authorized_keys_path", DefaultConfig.SSH.AuthorizedKeysPath)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	for key, value := range optionDefaults {
		viper.SetDefault(key, value)
	}

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	return reload()
}

func reload() error {
	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	mu.Lock()
	cfg = c
	mu.Unlock()
	return nil
}

// Watch re-reads the config file whenever it changes on disk and calls
// onChange after the new values are visible through Get and viper.
func Watch(onChange func()) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if err := reload(); err != nil {
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	viper.WatchConfig()
}

// Get returns the current configuration
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	mu.Lock()
	cfg = c
	mu.Unlock()
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config
	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	// If override is set, use that
	if configPathOverride != "" {
		return configPathOverride
	}

	// Check if config file is already loaded
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	return filepath.Join(configDir(), "wfplug.toml")
}

// SocketPath returns the unix socket path, resolving the empty default
func SocketPath() string {
	if p := Get().IPC.SocketPath; p != "" {
		return p
	}

	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "wfplug.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("wfplug-%d.sock", os.Getuid()))
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wfplug")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/etc", "wfplug")
	}
	return filepath.Join(home, ".config", "wfplug")
}
