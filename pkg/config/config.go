// Package config provides configuration structures and loading logic for
// outbound channels.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the channel tooling.
type Config struct {
	Channels []ChannelConfig `yaml:"channels" json:"channels"`

	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure" json:"insecure"`
	ServiceName  string `yaml:"service_name" json:"service_name"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and environment
// overrides, and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			ServiceName: "polis-channel",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("CHANNEL_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("CHANNEL_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("CHANNEL_SERVICE_NAME"); val != "" {
		cfg.Telemetry.ServiceName = val
	}

	if val := os.Getenv("CHANNEL_METRICS_ADDR"); val != "" {
		cfg.Metrics.Address = val
	}

	if val := os.Getenv("CHANNEL_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("CHANNEL_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}

// Channel returns the channel with the given name.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// Validate performs comprehensive validation of the entire configuration
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
		if seen[ch.Name] {
			return NewConfigValidationError("channels.name", ch.Name, "duplicate channel name").
				WithSuggestion("Give every channel a unique name")
		}
		seen[ch.Name] = true
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	if strings.TrimSpace(c.Format) == "" {
		c.Format = "json"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "json", "text":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: json, text", c.Format)
	}

	return nil
}
