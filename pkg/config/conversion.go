package config

import (
	"fmt"
	"strings"
	"time"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
)

// ToClientTLSConfig loads the referenced files and builds the client TLS
// configuration. A nil receiver yields the default configuration.
func (c *ClientTLSFileConfig) ToClientTLSConfig() (tlspkg.ClientTLSConfig, error) {
	cfg := tlspkg.NewClientTLSConfig()
	if c == nil {
		return cfg, nil
	}

	if name := strings.TrimSpace(c.DomainName); name != "" {
		var err error
		cfg, err = cfg.WithDomainName(name)
		if err != nil {
			return tlspkg.ClientTLSConfig{}, err
		}
	}

	switch {
	case strings.TrimSpace(c.CAFile) != "":
		ca, err := tlspkg.LoadCertificate(c.CAFile)
		if err != nil {
			return tlspkg.ClientTLSConfig{}, fmt.Errorf("ca_file: %w", err)
		}
		cfg = cfg.WithCACertificate(ca)
	case c.TrustBundle != nil:
		ca, err := c.TrustBundle.Certificate()
		if err != nil {
			return tlspkg.ClientTLSConfig{}, fmt.Errorf("trust_bundle: %w", err)
		}
		cfg = cfg.WithCACertificate(ca)
	}

	if c.MutualTLS() {
		identity, err := tlspkg.LoadIdentity(c.CertFile, c.KeyFile)
		if err != nil {
			return tlspkg.ClientTLSConfig{}, fmt.Errorf("client identity: %w", err)
		}
		cfg = cfg.WithIdentity(identity)
	}

	return cfg, nil
}

// ToChannel resolves a validated channel configuration into its runtime form.
func (c *ChannelConfig) ToChannel() (Channel, error) {
	target, err := c.TargetURL()
	if err != nil {
		return Channel{}, fmt.Errorf("channel %s: target: %w", c.Name, err)
	}

	tlsConfig, err := c.TLS.ToClientTLSConfig()
	if err != nil {
		return Channel{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}

	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}

	return Channel{
		Name:           c.Name,
		Target:         target,
		ConnectTimeout: timeout,
		TLS:            tlsConfig,
	}, nil
}

// NewSnapshot converts every channel of cfg. It fails on the first channel
// whose certificate material cannot be loaded.
func NewSnapshot(cfg *Config, generation int64) (Snapshot, error) {
	snapshot := Snapshot{
		Generation: generation,
		LoadedAt:   time.Now(),
		Channels:   make(map[string]Channel, len(cfg.Channels)),
	}

	for i := range cfg.Channels {
		ch, err := cfg.Channels[i].ToChannel()
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Channels[ch.Name] = ch
	}

	return snapshot, nil
}
