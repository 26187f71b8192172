// Package config loads the daemon configuration from YAML, with
// environment-variable expansion and defaulting for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names which engine provider to construct.
type Backend string

const (
	BackendPlaywright Backend = "playwright"
	BackendMock       Backend = "mock"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	Sessions SessionsConfig `yaml:"sessions"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds status-server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// BrowserConfig selects and shapes the engine backend. The backend is
// chosen once at construction; call sites never branch on it.
type BrowserConfig struct {
	Backend        Backend `yaml:"backend"`
	Headless       bool    `yaml:"headless"`
	ViewportWidth  int     `yaml:"viewport_width"`
	ViewportHeight int     `yaml:"viewport_height"`
}

// SessionsConfig bounds the session registry and reaper. Durations are
// millisecond integers to match the external configuration surface.
type SessionsConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
	SessionTimeoutMS      int `yaml:"session_timeout_ms"`
	MaxRequestsPerSession int `yaml:"max_requests_per_session"`
	IdleReaperIntervalMS  int `yaml:"idle_reaper_interval_ms"`
	OperationTimeoutMS    int `yaml:"operation_timeout_ms"`
	ReleaseTimeoutMS      int `yaml:"release_timeout_ms"`
}

// SessionTimeout returns the idle timeout as a duration.
func (c SessionsConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMS) * time.Millisecond
}

// IdleReaperInterval returns the sweep interval as a duration.
func (c SessionsConfig) IdleReaperInterval() time.Duration {
	return time.Duration(c.IdleReaperIntervalMS) * time.Millisecond
}

// OperationTimeout returns the per-operation deadline as a duration.
func (c SessionsConfig) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutMS) * time.Millisecond
}

// ReleaseTimeout returns the handle-release bound as a duration.
func (c SessionsConfig) ReleaseTimeout() time.Duration {
	return time.Duration(c.ReleaseTimeoutMS) * time.Millisecond
}

// RetryConfig bounds launch retries.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// BaseDelay returns the backoff seed as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Browser.Backend == "" {
		c.Browser.Backend = BackendPlaywright
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = 720
	}
	if c.Sessions.MaxConcurrentSessions == 0 {
		c.Sessions.MaxConcurrentSessions = 5
	}
	if c.Sessions.SessionTimeoutMS == 0 {
		c.Sessions.SessionTimeoutMS = 300000
	}
	if c.Sessions.MaxRequestsPerSession == 0 {
		c.Sessions.MaxRequestsPerSession = 20
	}
	if c.Sessions.IdleReaperIntervalMS == 0 {
		c.Sessions.IdleReaperIntervalMS = 60000
	}
	if c.Sessions.OperationTimeoutMS == 0 {
		c.Sessions.OperationTimeoutMS = 30000
	}
	if c.Sessions.ReleaseTimeoutMS == 0 {
		c.Sessions.ReleaseTimeoutMS = 10000
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMS == 0 {
		c.Retry.BaseDelayMS = 1000
	}
	if c.Retry.MaxDelayMS == 0 {
		c.Retry.MaxDelayMS = 30000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case BackendPlaywright, BackendMock:
	default:
		return fmt.Errorf("unknown browser backend %q", c.Browser.Backend)
	}
	if c.Sessions.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be positive, got %d", c.Sessions.MaxConcurrentSessions)
	}
	if c.Sessions.MaxRequestsPerSession < 1 {
		return fmt.Errorf("max_requests_per_session must be positive, got %d", c.Sessions.MaxRequestsPerSession)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts must not be negative, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// Load reads configuration from a YAML file. Environment variables in the
// file body are expanded before parsing, and defaults fill any field left
// unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
