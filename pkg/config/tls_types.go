package config

import (
	"fmt"
	"strings"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
)

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field       string
	Value       interface{}
	Reason      string
	Suggestions []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in field '%s': %s", e.Field, e.Reason)
}

func (e *ConfigError) WithSuggestion(suggestion string) *ConfigError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

func NewConfigMissingError(field string) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf("required field '%s' is missing", field),
	}
}

func NewConfigValidationError(field string, value interface{}, reason string) *ConfigError {
	return &ConfigError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// ClientTLSFileConfig is the on-disk form of a channel's client TLS settings.
// Every field is optional; an empty block means system roots, no client
// certificate and a server name taken from the channel target.
type ClientTLSFileConfig struct {
	DomainName  string       `yaml:"domain_name,omitempty" json:"domain_name,omitempty"`
	CAFile      string       `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	TrustBundle *TrustBundle `yaml:"trust_bundle,omitempty" json:"trust_bundle,omitempty"`
	CertFile    string       `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile     string       `yaml:"key_file,omitempty" json:"key_file,omitempty"`
}

// Validate checks field combinations without reading any files.
func (c *ClientTLSFileConfig) Validate() error {
	if c == nil {
		return nil
	}

	if name := strings.TrimSpace(c.DomainName); name != "" {
		if _, err := tlspkg.ParseServerName(name); err != nil {
			return NewConfigValidationError("domain_name", c.DomainName, err.Error()).
				WithSuggestion("Use a DNS name such as api.example.com or an IP literal").
				WithSuggestion("Omit domain_name to validate against the target host")
		}
	}

	hasCAFile := strings.TrimSpace(c.CAFile) != ""
	if hasCAFile && c.TrustBundle != nil {
		return NewConfigValidationError("ca_file", c.CAFile, "ca_file and trust_bundle are mutually exclusive").
			WithSuggestion("Keep ca_file for a plain PEM file or trust_bundle for checksum pinning, not both")
	}
	if c.TrustBundle != nil {
		if err := c.TrustBundle.Validate(); err != nil {
			return err
		}
	}

	hasCert := strings.TrimSpace(c.CertFile) != ""
	hasKey := strings.TrimSpace(c.KeyFile) != ""
	if hasCert && !hasKey {
		return NewConfigMissingError("key_file").
			WithSuggestion("Provide the private key matching cert_file").
			WithSuggestion("Ensure the private key file is in PEM format")
	}
	if hasKey && !hasCert {
		return NewConfigMissingError("cert_file").
			WithSuggestion("Provide the client certificate matching key_file")
	}

	return nil
}

// MutualTLS reports whether a client identity is configured.
func (c *ClientTLSFileConfig) MutualTLS() bool {
	return c != nil && strings.TrimSpace(c.CertFile) != ""
}
