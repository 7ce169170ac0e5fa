// ABOUTME: Configuration loading and parsing for radius-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when a field (or the whole config file) is absent.
const (
	DefaultHTTPAddr          = "localhost:8085"
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultQueueSize         = 64
	DefaultRunnerCommand     = "rad"
)

// Config represents the complete radius-gateway configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	SSE     SSEConfig     `yaml:"sse"`
	Runner  RunnerConfig  `yaml:"runner"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// SSEConfig holds streaming connection tuning
type SSEConfig struct {
	KeepAliveInterval time.Duration `yaml:"-"`
	QueueSize         int           `yaml:"queue_size"`

	// Raw string value for YAML unmarshaling
	KeepAliveIntervalRaw string `yaml:"keepalive_interval"`
}

// RunnerConfig holds Radius CLI runner configuration
type RunnerConfig struct {
	Command     string   `yaml:"command"`
	SearchPaths []string `yaml:"search_paths"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with every field set to its default value.
// Used when no config file exists on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.SSE.KeepAliveInterval == 0 {
		c.SSE.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.SSE.QueueSize == 0 {
		c.SSE.QueueSize = DefaultQueueSize
	}
	if c.Runner.Command == "" {
		c.Runner.Command = DefaultRunnerCommand
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields hold usable values.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.SSE.KeepAliveInterval < 0 {
		return fmt.Errorf("sse.keepalive_interval must not be negative")
	}
	if c.SSE.QueueSize < 0 {
		return fmt.Errorf("sse.queue_size must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.SSE.KeepAliveIntervalRaw != "" {
		cfg.SSE.KeepAliveInterval, err = time.ParseDuration(cfg.SSE.KeepAliveIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive_interval %q: %w", cfg.SSE.KeepAliveIntervalRaw, err)
		}
	}

	return nil
}
