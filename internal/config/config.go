// ABOUTME: Configuration loading and parsing for the messenger client core.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete messenger configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Socket  SocketConfig  `yaml:"socket"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig locates the conversation/message store REST API.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// SocketConfig locates the live transport and tunes reconnection.
type SocketConfig struct {
	URL                  string `yaml:"url"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`

	HandshakeTimeout   time.Duration `yaml:"-"`
	ReconnectBaseDelay time.Duration `yaml:"-"`
	ReconnectMaxDelay  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HandshakeTimeoutRaw   string `yaml:"handshake_timeout"`
	ReconnectBaseDelayRaw string `yaml:"reconnect_base_delay"`
	ReconnectMaxDelayRaw  string `yaml:"reconnect_max_delay"`
}

// SessionConfig carries the bearer token supplied by the session layer.
// Usually set via ${MESSENGER_TOKEN} expansion rather than inline.
type SessionConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a
// parsed Config. Environment variables in the format ${VAR_NAME} are
// expanded. Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Socket.URL == "" {
		return fmt.Errorf("socket.url is required")
	}
	if c.Socket.MaxReconnectAttempts < 0 {
		return fmt.Errorf("socket.max_reconnect_attempts must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Backend.RequestTimeoutRaw, "backend.request_timeout", &cfg.Backend.RequestTimeout},
		{cfg.Socket.HandshakeTimeoutRaw, "socket.handshake_timeout", &cfg.Socket.HandshakeTimeout},
		{cfg.Socket.ReconnectBaseDelayRaw, "socket.reconnect_base_delay", &cfg.Socket.ReconnectBaseDelay},
		{cfg.Socket.ReconnectMaxDelayRaw, "socket.reconnect_max_delay", &cfg.Socket.ReconnectMaxDelay},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
