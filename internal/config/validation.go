package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateWatch(&cfg.Watch); err != nil {
		return err
	}
	if err := validateLimits(&cfg.Limits, &cfg.Ledger); err != nil {
		return err
	}
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateSync(&cfg.Sync); err != nil {
		return err
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	if cfg.RequestTimeoutSecs < 1 {
		return fmt.Errorf("server.request_timeout_secs must be at least 1")
	}

	// Validate external URL if provided
	if cfg.ExternalURL != "" {
		if err := validateExternalURL(cfg.ExternalURL, "server.external_url", []string{"http", "https"}); err != nil {
			return err
		}
	}

	return nil
}

// validateExternalURL validates that a URL is well-formed and uses an allowed scheme.
func validateExternalURL(rawURL, fieldName string, allowedSchemes []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	for _, scheme := range allowedSchemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of these schemes: %s", fieldName, strings.Join(allowedSchemes, ", "))
}

func validateWatch(cfg *WatchConfig) error {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("watch.root does not exist: %s", cfg.Root)
		}
		return fmt.Errorf("error accessing watch.root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch.root is not a directory: %s", cfg.Root)
	}

	for _, pattern := range cfg.IgnorePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("watch.ignore_patterns has invalid pattern %q: %w", pattern, err)
		}
	}

	if cfg.NotifyDebounceMS < 0 {
		return fmt.Errorf("watch.notify_debounce_ms cannot be negative")
	}
	if cfg.NotifyDebounceMS > 10000 {
		return fmt.Errorf("watch.notify_debounce_ms cannot exceed 10000ms")
	}
	return nil
}

func validateLimits(cfg *LimitsConfig, ledger *LedgerConfig) error {
	if cfg.RateLimitPerMinute < 0 {
		return fmt.Errorf("limits.rate_limit_per_minute cannot be negative")
	}
	if ledger.WarnEntries < 0 {
		return fmt.Errorf("ledger.warn_entries cannot be negative")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}
	if cfg.File != "" && cfg.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be at least 1")
	}
	return nil
}

func validateSync(cfg *SyncConfig) error {
	if cfg.Server != "" {
		if err := validateExternalURL(cfg.Server, "sync.server", []string{"http", "https"}); err != nil {
			return err
		}
	}
	if cfg.IntervalSecs < 1 {
		return fmt.Errorf("sync.interval_secs must be at least 1")
	}
	if cfg.Concurrency < 1 || cfg.Concurrency > 64 {
		return fmt.Errorf("sync.concurrency must be between 1 and 64")
	}
	return nil
}
