package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultConnectTimeout = 10 * time.Second

// ChannelConfig describes one outbound RPC channel.
type ChannelConfig struct {
	Name           string               `yaml:"name" json:"name"`
	Target         string               `yaml:"target" json:"target"`
	ConnectTimeout time.Duration        `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
	TLS            *ClientTLSFileConfig `yaml:"tls,omitempty" json:"tls,omitempty"`
}

// Validate checks the channel and applies defaults.
func (c *ChannelConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewConfigMissingError("name").
			WithSuggestion("Name every channel so it can be referenced from the CLI")
	}
	if strings.TrimSpace(c.Target) == "" {
		return NewConfigMissingError("target").
			WithSuggestion("Provide a target URI such as https://backend.internal:443")
	}
	if _, err := c.TargetURL(); err != nil {
		return NewConfigValidationError("target", c.Target, err.Error()).
			WithSuggestion("Use an absolute URI with a scheme, e.g. https://10.0.0.5:8443")
	}

	if c.ConnectTimeout < 0 {
		return NewConfigValidationError("connect_timeout", c.ConnectTimeout, "must not be negative")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}

	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("channel %s tls: %w", c.Name, err)
		}
	}
	return nil
}

// TargetURL parses the channel target. A host is not required here; a
// hostless target is only an error when no domain_name is configured, and
// that is reported when a connector is resolved.
func (c *ChannelConfig) TargetURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(c.Target))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("target %q has no scheme", c.Target)
	}
	return u, nil
}
