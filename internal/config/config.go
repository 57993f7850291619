// Package config handles configuration management for changefeed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Logging LoggingConfig `mapstructure:"logging"`
	Pairing PairingConfig `mapstructure:"pairing"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	ExternalURL        string `mapstructure:"external_url"` // Optional: public URL advertised to clients (e.g., behind a tunnel)
	RequestTimeoutSecs int    `mapstructure:"request_timeout_secs"`
}

// WatchConfig holds the watched root and watcher tuning.
type WatchConfig struct {
	Root             string   `mapstructure:"root"`
	IgnorePatterns   []string `mapstructure:"ignore_patterns"`
	NotifyDebounceMS int      `mapstructure:"notify_debounce_ms"`
}

// LedgerConfig holds change ledger configuration.
type LedgerConfig struct {
	WarnEntries int `mapstructure:"warn_entries"`
}

// LimitsConfig holds request limits.
type LimitsConfig struct {
	RateLimitPerMinute int  `mapstructure:"rate_limit_per_minute"` // 0 disables rate limiting
	TrustProxy         bool `mapstructure:"trust_proxy"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"` // Optional: also write JSON logs to this rotating file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// PairingConfig holds QR code pairing configuration.
type PairingConfig struct {
	ShowQRInTerminal bool `mapstructure:"show_qr_in_terminal"`
}

// SyncConfig holds settings for the sync client command.
type SyncConfig struct {
	Server       string `mapstructure:"server"`
	Dest         string `mapstructure:"dest"`
	IntervalSecs int    `mapstructure:"interval_secs"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.changefeed")
		v.AddConfigPath("/etc/changefeed")
	}

	// Environment variable prefix
	v.SetEnvPrefix("CHANGEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := PostProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.external_url", "")
	v.SetDefault("server.request_timeout_secs", 30)

	// Watch defaults
	v.SetDefault("watch.root", "")
	v.SetDefault("watch.ignore_patterns", DefaultIgnorePatterns)
	v.SetDefault("watch.notify_debounce_ms", 250)

	// Ledger defaults
	v.SetDefault("ledger.warn_entries", 10000)

	// Limits defaults
	v.SetDefault("limits.rate_limit_per_minute", 120)
	v.SetDefault("limits.trust_proxy", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)

	// Pairing defaults
	v.SetDefault("pairing.show_qr_in_terminal", false)

	// Sync client defaults
	v.SetDefault("sync.server", fmt.Sprintf("http://127.0.0.1:%d", DefaultPort))
	v.SetDefault("sync.dest", "")
	v.SetDefault("sync.interval_secs", 30)
	v.SetDefault("sync.concurrency", 4)
}

// PostProcess resolves paths in the configuration. It must run again after
// command-line overrides are applied.
func PostProcess(cfg *Config) error {
	// If the watched root is empty, use current directory
	if cfg.Watch.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		cfg.Watch.Root = cwd
	}

	absPath, err := filepath.Abs(cfg.Watch.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	cfg.Watch.Root = absPath

	if cfg.Sync.Dest != "" {
		absDest, err := filepath.Abs(cfg.Sync.Dest)
		if err != nil {
			return fmt.Errorf("failed to resolve sync destination: %w", err)
		}
		cfg.Sync.Dest = absDest
	}

	return nil
}

// GetConfigDir returns the user config directory for changefeed.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".changefeed"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
