package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()

	if cfg.Engine.HistoryLimit != 500 {
		t.Errorf("expected Engine.HistoryLimit = 500, got %d", cfg.Engine.HistoryLimit)
	}
	if cfg.Engine.ShutdownTimeout != 5*time.Second {
		t.Errorf("expected Engine.ShutdownTimeout = 5s, got %v", cfg.Engine.ShutdownTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected Logging.Level = warn, got %q", cfg.Logging.Level)
	}
	if cfg.Script.Timeout != 2*time.Second {
		t.Errorf("expected Script.Timeout = 2s, got %v", cfg.Script.Timeout)
	}
	if cfg.Output.Format != "cli" || cfg.Output.Color != "auto" {
		t.Errorf("unexpected output defaults: %+v", cfg.Output)
	}
	if cfg.Storage.InMemory {
		t.Error("expected Storage.InMemory = false")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CMDSTACK_ENGINE_HISTORY_LIMIT", "42")
	t.Setenv("CMDSTACK_ENGINE_SHUTDOWN_TIMEOUT", "250ms")
	t.Setenv("CMDSTACK_STORAGE_IN_MEMORY", "true")
	t.Setenv("CMDSTACK_LOG_LEVEL", "debug")

	cfg := DefaultRuntimeConfig()
	if err := cfg.ReloadFromEnv(); err != nil {
		t.Fatalf("ReloadFromEnv: %v", err)
	}

	if cfg.Engine.HistoryLimit != 42 {
		t.Errorf("expected HistoryLimit = 42, got %d", cfg.Engine.HistoryLimit)
	}
	if cfg.Engine.ShutdownTimeout != 250*time.Millisecond {
		t.Errorf("expected ShutdownTimeout = 250ms, got %v", cfg.Engine.ShutdownTimeout)
	}
	if !cfg.Storage.InMemory {
		t.Error("expected InMemory = true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected Level = debug, got %q", cfg.Logging.Level)
	}
	// Untouched values keep their defaults.
	if cfg.Script.Timeout != 2*time.Second {
		t.Errorf("expected Script.Timeout default, got %v", cfg.Script.Timeout)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("CMDSTACK_ENGINE_HISTORY_LIMIT", "many")

	cfg := DefaultRuntimeConfig()
	if err := cfg.ReloadFromEnv(); err == nil {
		t.Error("expected an error for a non-numeric history limit")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `engine:
  history_limit: 10
  shutdown_timeout: 1s
storage:
  path: /tmp/cmdstack-test
script:
  dir: ""
output:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CMDSTACK_OUTPUT_FORMAT", "plain")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.HistoryLimit != 10 {
		t.Errorf("expected HistoryLimit = 10, got %d", cfg.Engine.HistoryLimit)
	}
	if cfg.Engine.ShutdownTimeout != time.Second {
		t.Errorf("expected ShutdownTimeout = 1s, got %v", cfg.Engine.ShutdownTimeout)
	}
	if cfg.Storage.Path != "/tmp/cmdstack-test" {
		t.Errorf("unexpected Storage.Path %q", cfg.Storage.Path)
	}
	if cfg.Script.Dir != "" {
		t.Errorf("expected empty Script.Dir, got %q", cfg.Script.Dir)
	}
	// Environment wins over the file.
	if cfg.Output.Format != "plain" {
		t.Errorf("expected Output.Format = plain, got %q", cfg.Output.Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.HistoryLimit != 500 {
		t.Errorf("expected defaults, got HistoryLimit = %d", cfg.Engine.HistoryLimit)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("engine: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestReset(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Engine.HistoryLimit = 1
	cfg.Reset()
	if cfg.Engine.HistoryLimit != 500 {
		t.Errorf("expected reset HistoryLimit = 500, got %d", cfg.Engine.HistoryLimit)
	}
}
