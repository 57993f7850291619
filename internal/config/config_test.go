package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.RequestTimeoutSecs != 30 {
		t.Errorf("RequestTimeoutSecs = %d, want 30", cfg.Server.RequestTimeoutSecs)
	}
	if cfg.Watch.NotifyDebounceMS != 250 {
		t.Errorf("NotifyDebounceMS = %d, want 250", cfg.Watch.NotifyDebounceMS)
	}
	if len(cfg.Watch.IgnorePatterns) != 0 {
		t.Errorf("IgnorePatterns = %v, want empty", cfg.Watch.IgnorePatterns)
	}
	if cfg.Ledger.WarnEntries != 10000 {
		t.Errorf("WarnEntries = %d, want 10000", cfg.Ledger.WarnEntries)
	}
	if cfg.Limits.RateLimitPerMinute != 120 {
		t.Errorf("RateLimitPerMinute = %d, want 120", cfg.Limits.RateLimitPerMinute)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Sync.Concurrency != 4 {
		t.Errorf("Sync.Concurrency = %d, want 4", cfg.Sync.Concurrency)
	}

	cwd, _ := os.Getwd()
	if cfg.Watch.Root != cwd {
		t.Errorf("Watch.Root = %s, want %s", cfg.Watch.Root, cwd)
	}
}

func TestLoad_FromFile(t *testing.T) {
	isolateHome(t)
	tempDir := t.TempDir()
	root := filepath.Join(tempDir, "shared")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatal(err)
	}

	configContent := `
server:
  port: 9000
  host: "127.0.0.1"
watch:
  root: "` + root + `"
  ignore_patterns:
    - "*.tmp"
  notify_debounce_ms: 100
limits:
  rate_limit_per_minute: 0
logging:
  level: debug
  format: json
`
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Watch.Root != root {
		t.Errorf("Watch.Root = %s, want %s", cfg.Watch.Root, root)
	}
	if len(cfg.Watch.IgnorePatterns) != 1 || cfg.Watch.IgnorePatterns[0] != "*.tmp" {
		t.Errorf("IgnorePatterns = %v, want [*.tmp]", cfg.Watch.IgnorePatterns)
	}
	if cfg.Watch.NotifyDebounceMS != 100 {
		t.Errorf("NotifyDebounceMS = %d, want 100", cfg.Watch.NotifyDebounceMS)
	}
	if cfg.Limits.RateLimitPerMinute != 0 {
		t.Errorf("RateLimitPerMinute = %d, want 0", cfg.Limits.RateLimitPerMinute)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", cfg.Logging.Format)
	}
}

func TestLoad_EnvOverrides_ServerPort(t *testing.T) {
	isolateHome(t)
	t.Setenv("CHANGEFEED_SERVER_PORT", "9123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9123 {
		t.Fatalf("Server.Port = %d, want 9123", cfg.Server.Port)
	}
}

func TestLoad_EnvOverrides_WatchRoot(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	t.Setenv("CHANGEFEED_WATCH_ROOT", root)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Watch.Root != root {
		t.Fatalf("Watch.Root = %s, want %s", cfg.Watch.Root, root)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	isolateHome(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestLoad_MissingRoot(t *testing.T) {
	isolateHome(t)
	t.Setenv("CHANGEFEED_WATCH_ROOT", filepath.Join(t.TempDir(), "nope"))

	if _, err := Load(""); err == nil {
		t.Fatal("Load() should fail when watch.root does not exist")
	}
}

func TestPostProcess_RelativePaths(t *testing.T) {
	cfg := &Config{
		Watch: WatchConfig{Root: "."},
		Sync:  SyncConfig{Dest: "out"},
	}
	if err := PostProcess(cfg); err != nil {
		t.Fatalf("PostProcess() error = %v", err)
	}
	if !filepath.IsAbs(cfg.Watch.Root) {
		t.Errorf("Watch.Root = %s, want absolute", cfg.Watch.Root)
	}
	if !filepath.IsAbs(cfg.Sync.Dest) {
		t.Errorf("Sync.Dest = %s, want absolute", cfg.Sync.Dest)
	}
}

func TestGetConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join(home, ".changefeed") {
		t.Errorf("GetConfigDir() = %s", dir)
	}

	created, err := EnsureConfigDir()
	if err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if info, err := os.Stat(created); err != nil || !info.IsDir() {
		t.Errorf("EnsureConfigDir() did not create %s", created)
	}
}
