// Package config loads and validates the Nika TOML configuration file,
// modeled on the teacher-adjacent cortex config loader: decode with
// BurntSushi/toml, apply defaults, apply environment overrides, then
// validate, returning a single *Config a caller can pass straight into
// the engine and provider constructors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nikahq/nika/internal/nikaerr"
)

// Config is the decoded `nika/config.toml` document (spec §6 "Persisted
// state").
type Config struct {
	General   General                   `toml:"general"`
	Providers map[string]ProviderConfig `toml:"providers"`
	Temporal  TemporalConfig            `toml:"temporal"`
	EventLog  EventLogConfig            `toml:"event_log"`
}

// General holds process-wide defaults every engine backend reads.
type General struct {
	Concurrency     int    `toml:"concurrency"`
	DefaultProvider string `toml:"default_provider"`
	DefaultModel    string `toml:"default_model"`
	LogFormat       string `toml:"log_format"` // "text" or "json"
	LogLevel        string `toml:"log_level"`  // "debug", "info", "warn", "error"
}

// ProviderConfig holds per-provider credentials and defaults.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model,omitempty"`
}

// TemporalConfig configures the internal/engine/temporal backend. Address
// and Namespace are only consulted when the CLI is asked to run against
// Temporal rather than the default in-process engine.
type TemporalConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	TaskQueue string `toml:"task_queue"`
}

// EventLogConfig configures the optional fan-out sinks in
// internal/eventlog/redisfanout and internal/eventlog/mongostore.
type EventLogConfig struct {
	Redis *RedisConfig `toml:"redis,omitempty"`
	Mongo *MongoConfig `toml:"mongo,omitempty"`
}

// RedisConfig is the redisfanout sink's connection settings.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
	Channel  string `toml:"channel"`
}

// MongoConfig is the mongostore sink's connection settings.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

const (
	defaultConcurrency = 8
	defaultLogFormat   = "text"
	defaultLogLevel    = "info"
	defaultTaskQueue   = "nika-tasks"
)

// DefaultPath returns the platform configuration directory's
// nika/config.toml, e.g. ~/.config/nika/config.toml on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%s: resolve config directory: %w", nikaerr.ConfigInvalid, err)
	}
	return filepath.Join(dir, "nika", "config.toml"), nil
}

// Load decodes path as TOML, applies defaults and environment overrides,
// and validates the result. A missing file is treated as an empty
// configuration so Nika runs with built-in defaults and environment
// variables alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: decode %s: %w", nikaerr.ConfigInvalid, path, err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.Concurrency <= 0 {
		cfg.General.Concurrency = defaultConcurrency
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = defaultLogFormat
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = defaultLogLevel
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = defaultTaskQueue
	}
}

// applyEnvOverrides applies the spec's "Environment" rule: provider API
// keys and a handful of process settings override file values after
// load, never the other way around.
func applyEnvOverrides(cfg *Config) {
	setAPIKey(cfg, "anthropic", "ANTHROPIC_API_KEY")
	setAPIKey(cfg, "openai", "OPENAI_API_KEY")
	setAPIKey(cfg, "bedrock", "AWS_BEDROCK_API_KEY")

	if v := os.Getenv("NIKA_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.General.Concurrency = n
		}
	}
	if v := os.Getenv("NIKA_LOG_FORMAT"); v != "" {
		cfg.General.LogFormat = v
	}
	if v := os.Getenv("NIKA_LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv("NIKA_DEFAULT_PROVIDER"); v != "" {
		cfg.General.DefaultProvider = v
	}
	if v := os.Getenv("NIKA_DEFAULT_MODEL"); v != "" {
		cfg.General.DefaultModel = v
	}
	if v := os.Getenv("NIKA_TEMPORAL_ADDRESS"); v != "" {
		cfg.Temporal.Address = v
	}
}

func setAPIKey(cfg *Config, provider, envVar string) {
	v := os.Getenv(envVar)
	if v == "" {
		return
	}
	pc := cfg.Providers[provider]
	pc.APIKey = v
	cfg.Providers[provider] = pc
}

func validate(cfg *Config) error {
	if cfg.General.Concurrency <= 0 {
		return fmt.Errorf("%s: general.concurrency must be positive", nikaerr.ConfigInvalid)
	}
	switch strings.ToLower(cfg.General.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%s: general.log_format must be \"text\" or \"json\", got %q", nikaerr.ConfigInvalid, cfg.General.LogFormat)
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s: general.log_level must be one of debug/info/warn/error, got %q", nikaerr.ConfigInvalid, cfg.General.LogLevel)
	}
	if r := cfg.EventLog.Redis; r != nil && r.Addr == "" {
		return fmt.Errorf("%s: event_log.redis.addr is required when the redis sink is configured", nikaerr.ConfigInvalid)
	}
	if m := cfg.EventLog.Mongo; m != nil && (m.URI == "" || m.Database == "") {
		return fmt.Errorf("%s: event_log.mongo.uri and .database are required when the mongo sink is configured", nikaerr.ConfigInvalid)
	}
	return nil
}

// ProviderAPIKey returns the configured API key for name, if any.
func (c *Config) ProviderAPIKey(name string) string {
	return c.Providers[name].APIKey
}
