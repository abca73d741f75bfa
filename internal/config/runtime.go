// Package config provides centralized runtime configuration for cmdstack.
//
// Values come from three layers, later layers winning: built-in defaults, an
// optional YAML file, and CMDSTACK_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "CMDSTACK_"

// RuntimeConfig holds all runtime configuration values.
type RuntimeConfig struct {
	Engine  EngineConfig  `yaml:"engine" envPrefix:"ENGINE_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Script  ScriptConfig  `yaml:"script" envPrefix:"SCRIPT_"`
	Output  OutputConfig  `yaml:"output" envPrefix:"OUTPUT_"`
}

// EngineConfig holds command manager configuration.
type EngineConfig struct {
	// HistoryLimit caps the number of history entries; 0 means unlimited.
	// Default: 500
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`

	// ShutdownTimeout bounds how long Close waits for the worker to drain.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage-related configuration.
type StorageConfig struct {
	// Path is the badger directory. Empty means the XDG data directory.
	Path string `yaml:"path" env:"PATH"`

	// InMemory keeps the workspace in memory only.
	InMemory bool `yaml:"in_memory" env:"IN_MEMORY"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: warn
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// ScriptConfig holds Lua command configuration.
type ScriptConfig struct {
	// Dir is scanned for *.lua command definitions. Empty disables scripting.
	Dir string `yaml:"dir" env:"DIR"`

	// Timeout bounds a single script execution.
	// Default: 2s
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// OutputConfig holds CLI output defaults.
type OutputConfig struct {
	Format string `yaml:"format" env:"FORMAT"`
	Color  string `yaml:"color" env:"COLOR"`
}

// DefaultRuntimeConfig returns the default runtime configuration.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Engine: EngineConfig{
			HistoryLimit:    500,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Script: ScriptConfig{
			Dir:     filepath.Join(xdg.ConfigHome, "cmdstack", "scripts"),
			Timeout: 2 * time.Second,
		},
		Output: OutputConfig{
			Format: "cli",
			Color:  "auto",
		},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "cmdstack", "config.yaml")
}

// Global holds the global runtime configuration instance.
// It is initialized with defaults and environment overrides.
var Global = initGlobal()

func initGlobal() *RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	_ = cfg.loadFromEnv()
	return cfg
}

// Load builds a configuration from defaults, the YAML file at path and the
// environment. A missing file is not an error; an empty path uses DefaultPath.
func Load(path string) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	if path == "" {
		path = DefaultPath()
	}
	if err := cfg.loadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RuntimeConfig) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewSystemErrorWithOp("load config", "cannot read "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewUserErrorWithField("config", path,
			"Invalid configuration file",
			"Check the YAML syntax; durations use Go syntax such as '5s'").WithCause(err)
	}
	return nil
}

func (c *RuntimeConfig) loadFromEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(err, "parse environment")
	}
	return nil
}

// ReloadFromEnv reapplies environment overrides on top of the current values.
func (c *RuntimeConfig) ReloadFromEnv() error {
	return c.loadFromEnv()
}

// Reset resets the configuration to defaults.
func (c *RuntimeConfig) Reset() {
	*c = *DefaultRuntimeConfig()
}
