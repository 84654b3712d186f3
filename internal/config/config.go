// Package config provides configuration management for the market-state
// engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Default tuning values, mirrored from session.DefaultConfig so a config
// file that omits a key gets the same behavior as the zero-config path.
const (
	defaultHeartbeatStaleAfter  = 2 * time.Second
	defaultMaxDeferredPerTick   = 2
	defaultMaxBookLoadsPerTick  = 2
	defaultExchangeLimit        = 200
	defaultDelaySeconds         = 0.25
	defaultStatusServerPort     = 9847
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Session     SessionConfig     `yaml:"session"`
	Status      StatusConfig      `yaml:"status"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ExchangeConfig defines the REST and websocket transport settings for
// the exchange the engine reconciles against (spec.md §6).
type ExchangeConfig struct {
	APIBase       string  `yaml:"api_base"`
	WebsocketBase string  `yaml:"websocket_base"`
	LegacyAPIBase string  `yaml:"legacy_api_base"`
	APIKey        string  `yaml:"api_key"`
	VerifySSL     bool    `yaml:"verify_ssl"`
	DefaultLimit  int     `yaml:"default_limit"`
	DelaySeconds  float64 `yaml:"delay_seconds"`
}

// SessionConfig tunes session.Controller maintenance (spec.md §4.5/§4.7).
type SessionConfig struct {
	HeartbeatStaleAfter  time.Duration `yaml:"heartbeat_stale_after"`
	MaxDeferredPerTick   int           `yaml:"max_deferred_per_tick"`
	MaxBookLoadsPerTick  int           `yaml:"max_book_loads_per_tick"`
}

// StatusConfig defines the read-only introspection server settings.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Normalize fills in defaults for every field a config file may omit,
// matching the teacher's Normalize three-step pattern (Load then
// Normalize then Validate).
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Exchange.DefaultLimit == 0 {
		c.Exchange.DefaultLimit = defaultExchangeLimit
	}
	if c.Exchange.DelaySeconds == 0 {
		c.Exchange.DelaySeconds = defaultDelaySeconds
	}
	if c.Session.HeartbeatStaleAfter == 0 {
		c.Session.HeartbeatStaleAfter = defaultHeartbeatStaleAfter
	}
	if c.Session.MaxDeferredPerTick == 0 {
		c.Session.MaxDeferredPerTick = defaultMaxDeferredPerTick
	}
	if c.Session.MaxBookLoadsPerTick == 0 {
		c.Session.MaxBookLoadsPerTick = defaultMaxBookLoadsPerTick
	}
	if c.Status.Port == 0 {
		c.Status.Port = defaultStatusServerPort
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Exchange.APIBase) == "" {
		return fmt.Errorf("exchange.api_base is required")
	}
	if strings.TrimSpace(c.Exchange.WebsocketBase) == "" {
		return fmt.Errorf("exchange.websocket_base is required")
	}
	if strings.TrimSpace(c.Exchange.APIKey) == "" {
		return fmt.Errorf("exchange.api_key is required")
	}
	if c.Exchange.DefaultLimit <= 0 {
		return fmt.Errorf("exchange.default_limit must be > 0")
	}
	if c.Exchange.DelaySeconds < 0 {
		return fmt.Errorf("exchange.delay_seconds must be >= 0")
	}

	if c.Session.HeartbeatStaleAfter <= 0 {
		return fmt.Errorf("session.heartbeat_stale_after must be > 0")
	}
	if c.Session.MaxDeferredPerTick <= 0 {
		return fmt.Errorf("session.max_deferred_per_tick must be > 0")
	}
	if c.Session.MaxBookLoadsPerTick <= 0 {
		return fmt.Errorf("session.max_book_loads_per_tick must be > 0")
	}

	if c.Status.Enabled {
		if c.Status.Port <= 0 || c.Status.Port > 65535 {
			return fmt.Errorf("status.port must be between 1 and 65535")
		}
	}

	return nil
}
