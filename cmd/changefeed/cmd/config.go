package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brianly1003/changefeed/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configInitLocal bool
	configInitForce bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage changefeed configuration.

Without subcommands, shows the current effective configuration.

Examples:
  changefeed config              # Show current config
  changefeed config init         # Create config file with defaults
  changefeed config path         # Show config file location
  changefeed config get <key>    # Get a config value
  changefeed config set <key> <value>  # Set a config value`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings and documentation.

By default, creates ~/.changefeed/config.yaml.
Use --local to create ./config.yaml in the current directory.

Examples:
  changefeed config init          # Create ~/.changefeed/config.yaml
  changefeed config init --local  # Create ./config.yaml
  changefeed config init --force  # Overwrite existing file`,
	RunE: runConfigInit,
}

// configPathCmd shows config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	RunE:  runConfigPath,
}

// configGetCmd gets a config value.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by key.

Keys use dot notation to access nested values.

Examples:
  changefeed config get server.port
  changefeed config get watch.root
  changefeed config get sync.server`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a config value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by key in ~/.changefeed/config.yaml.

Creates the config file if it doesn't exist.

Examples:
  changefeed config set server.port 9000
  changefeed config set logging.level debug
  changefeed config set limits.trust_proxy true`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory instead of ~/.changefeed/")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var configPath string

	if configInitLocal {
		configPath = "config.yaml"
	} else {
		configDir, err := config.EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
	}

	if err := writeDefaultConfig(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config dir: %w", err)
	}

	out := cmd.OutOrStdout()
	locations := []string{
		"./config.yaml",
		filepath.Join(configDir, "config.yaml"),
		"/etc/changefeed/config.yaml",
	}

	fmt.Fprintln(out, "Config search paths (in order):")
	for i, loc := range locations {
		exists := "not found"
		if _, err := os.Stat(loc); err == nil {
			exists = "exists"
		}
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, loc, exists)
	}

	fmt.Fprintf(out, "\nConfig directory: %s\n", configDir)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	value, err := getConfigValue(cfg, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configDir, err := config.EnsureConfigDir()
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if err := setConfigFileValue(configPath, key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, configPath)
	return nil
}

// setConfigFileValue rewrites one key in the YAML file at path, creating the
// file when it does not exist.
func setConfigFileValue(path, key, value string) error {
	var data map[string]interface{}

	if content, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(content, &data); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	}
	if data == nil {
		data = make(map[string]interface{})
	}

	if err := setNestedValue(data, key, value); err != nil {
		return err
	}

	content, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func getConfigValue(cfg *config.Config, key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid key: %s", key)
	}

	switch parts[0] {
	case "server":
		switch parts[1] {
		case "host":
			return cfg.Server.Host, nil
		case "port":
			return cfg.Server.Port, nil
		case "external_url":
			return cfg.Server.ExternalURL, nil
		case "request_timeout_secs":
			return cfg.Server.RequestTimeoutSecs, nil
		}
	case "watch":
		switch parts[1] {
		case "root":
			return cfg.Watch.Root, nil
		case "ignore_patterns":
			return strings.Join(cfg.Watch.IgnorePatterns, ","), nil
		case "notify_debounce_ms":
			return cfg.Watch.NotifyDebounceMS, nil
		}
	case "ledger":
		switch parts[1] {
		case "warn_entries":
			return cfg.Ledger.WarnEntries, nil
		}
	case "limits":
		switch parts[1] {
		case "rate_limit_per_minute":
			return cfg.Limits.RateLimitPerMinute, nil
		case "trust_proxy":
			return cfg.Limits.TrustProxy, nil
		}
	case "logging":
		switch parts[1] {
		case "level":
			return cfg.Logging.Level, nil
		case "format":
			return cfg.Logging.Format, nil
		case "file":
			return cfg.Logging.File, nil
		case "max_size_mb":
			return cfg.Logging.MaxSizeMB, nil
		case "max_backups":
			return cfg.Logging.MaxBackups, nil
		}
	case "pairing":
		switch parts[1] {
		case "show_qr_in_terminal":
			return cfg.Pairing.ShowQRInTerminal, nil
		}
	case "sync":
		switch parts[1] {
		case "server":
			return cfg.Sync.Server, nil
		case "dest":
			return cfg.Sync.Dest, nil
		case "interval_secs":
			return cfg.Sync.IntervalSecs, nil
		case "concurrency":
			return cfg.Sync.Concurrency, nil
		}
	}

	return nil, fmt.Errorf("unknown config key: %s", key)
}

func setNestedValue(data map[string]interface{}, key string, value string) error {
	parts := strings.Split(key, ".")

	current := data
	for i := 0; i < len(parts)-1; i++ {
		if _, ok := current[parts[i]]; !ok {
			current[parts[i]] = make(map[string]interface{})
		}
		nested, ok := current[parts[i]].(map[string]interface{})
		if !ok {
			return fmt.Errorf("cannot set nested value: %s is not a map", parts[i])
		}
		current = nested
	}

	current[parts[len(parts)-1]] = parseValue(key, value)
	return nil
}

func parseValue(key string, value string) interface{} {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	if key == "watch.ignore_patterns" {
		var patterns []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		return patterns
	}

	intKeys := []string{"port", "_secs", "_ms", "_entries", "_per_minute", "_mb", "max_backups", "concurrency"}
	for _, k := range intKeys {
		if strings.HasSuffix(key, k) {
			if i, err := strconv.Atoi(value); err == nil {
				return i
			}
		}
	}

	return value
}

func writeDefaultConfig(path string) error {
	var b strings.Builder
	b.WriteString(`# changefeed configuration
# Copy this file to ~/.changefeed/config.yaml and modify as needed.
# Every key can also be set from the environment, e.g. CHANGEFEED_SERVER_PORT.

server:
  # Bind address (use 127.0.0.1 to only accept local connections)
  host: "0.0.0.0"
`)
	fmt.Fprintf(&b, "  port: %d\n", config.DefaultPort)
	b.WriteString(`
  # Public base URL advertised in the pairing QR code (tunnels, port forwards)
  # external_url: "https://your-tunnel.example.com"

  # Requests other than downloads and WebSocket upgrades are cut off after this
  request_timeout_secs: 30

watch:
  # Directory to watch (default: the directory changefeed is started in)
  # root: "/srv/drop"

  # Delay before a changes_available hint is pushed to WebSocket clients
  notify_debounce_ms: 250

  # Glob patterns matched against base names and relative paths
  ignore_patterns:
`)
	for _, p := range config.SuggestedIgnorePatterns {
		fmt.Fprintf(&b, "    - %q\n", p)
	}
	b.WriteString(`
ledger:
  # Log a warning when more than this many changes are waiting to be drained
  warn_entries: 10000

limits:
  # Requests per minute per client (0 disables rate limiting)
  rate_limit_per_minute: 120

  # Use X-Forwarded-For / X-Real-IP as the client key
  trust_proxy: false

logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log format: console (human-readable) or json
  format: "console"

  # Also write logs to a rotating file
  # file: "/var/log/changefeed.log"
  max_size_mb: 50
  max_backups: 3

pairing:
  show_qr_in_terminal: false

sync:
  server: "http://127.0.0.1:5000"
  # dest: "./mirror"
  interval_secs: 30
  concurrency: 4
`)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "Watch Root:      %s\n", cfg.Watch.Root)
	fmt.Fprintf(w, "Ignore Patterns: %s\n", strings.Join(cfg.Watch.IgnorePatterns, ", "))
	fmt.Fprintf(w, "Host:            %s\n", cfg.Server.Host)
	fmt.Fprintf(w, "Port:            %d\n", cfg.Server.Port)
	if cfg.Server.ExternalURL != "" {
		fmt.Fprintf(w, "External URL:    %s\n", cfg.Server.ExternalURL)
	}
	fmt.Fprintf(w, "Rate Limit:      %d/min\n", cfg.Limits.RateLimitPerMinute)
	fmt.Fprintf(w, "Log Level:       %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "Log Format:      %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "Sync Server:     %s\n", cfg.Sync.Server)
}
