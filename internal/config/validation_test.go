package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr string
	}{
		{
			name:    "valid config",
			cfg:     ServerConfig{Port: 5000, Host: "127.0.0.1", RequestTimeoutSecs: 30},
			wantErr: "",
		},
		{
			name:    "port too low",
			cfg:     ServerConfig{Port: 0, Host: "127.0.0.1", RequestTimeoutSecs: 30},
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name:    "port too high",
			cfg:     ServerConfig{Port: 70000, Host: "127.0.0.1", RequestTimeoutSecs: 30},
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name:    "empty host",
			cfg:     ServerConfig{Port: 5000, Host: "", RequestTimeoutSecs: 30},
			wantErr: "host cannot be empty",
		},
		{
			name:    "zero timeout",
			cfg:     ServerConfig{Port: 5000, Host: "127.0.0.1"},
			wantErr: "request_timeout_secs",
		},
		{
			name:    "valid external url",
			cfg:     ServerConfig{Port: 5000, Host: "0.0.0.0", RequestTimeoutSecs: 30, ExternalURL: "https://feed.example.com"},
			wantErr: "",
		},
		{
			name:    "external url bad scheme",
			cfg:     ServerConfig{Port: 5000, Host: "0.0.0.0", RequestTimeoutSecs: 30, ExternalURL: "ftp://feed.example.com"},
			wantErr: "must use one of these schemes",
		},
		{
			name:    "external url without host",
			cfg:     ServerConfig{Port: 5000, Host: "0.0.0.0", RequestTimeoutSecs: 30, ExternalURL: "http://"},
			wantErr: "must include a host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, validateServer(&tt.cfg), tt.wantErr)
		})
	}
}

func TestValidateWatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     WatchConfig
		wantErr string
	}{
		{"valid", WatchConfig{Root: dir, NotifyDebounceMS: 250}, ""},
		{"missing root", WatchConfig{Root: filepath.Join(dir, "missing")}, "does not exist"},
		{"root is file", WatchConfig{Root: file}, "not a directory"},
		{"bad pattern", WatchConfig{Root: dir, IgnorePatterns: []string{"[abc"}}, "invalid pattern"},
		{"negative debounce", WatchConfig{Root: dir, NotifyDebounceMS: -1}, "cannot be negative"},
		{"huge debounce", WatchConfig{Root: dir, NotifyDebounceMS: 20000}, "cannot exceed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, validateWatch(&tt.cfg), tt.wantErr)
		})
	}
}

func TestValidateLimitsAndLogging(t *testing.T) {
	checkErr(t, validateLimits(&LimitsConfig{RateLimitPerMinute: -1}, &LedgerConfig{}), "cannot be negative")
	checkErr(t, validateLimits(&LimitsConfig{}, &LedgerConfig{WarnEntries: -5}), "ledger.warn_entries")
	checkErr(t, validateLimits(&LimitsConfig{RateLimitPerMinute: 0}, &LedgerConfig{}), "")

	checkErr(t, validateLogging(&LoggingConfig{Format: "console"}), "")
	checkErr(t, validateLogging(&LoggingConfig{Format: "xml"}), "console or json")
	checkErr(t, validateLogging(&LoggingConfig{Format: "json", File: "out.log"}), "max_size_mb")
}

func TestValidateSync(t *testing.T) {
	checkErr(t, validateSync(&SyncConfig{Server: "http://localhost:5000", IntervalSecs: 30, Concurrency: 4}), "")
	checkErr(t, validateSync(&SyncConfig{Server: "localhost:5000", IntervalSecs: 30, Concurrency: 4}), "sync.server")
	checkErr(t, validateSync(&SyncConfig{IntervalSecs: 0, Concurrency: 4}), "interval_secs")
	checkErr(t, validateSync(&SyncConfig{IntervalSecs: 1, Concurrency: 0}), "concurrency")
}

func checkErr(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Errorf("expected error containing %q, got nil", want)
		return
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want containing %q", err.Error(), want)
	}
}
