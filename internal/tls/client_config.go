package tls

import (
	"fmt"
	"log/slog"
	"net/url"
)

// ClientTLSConfig holds the TLS policy for connections made through an
// endpoint. It is a value type: every With* method returns a modified copy and
// leaves the receiver untouched, so one config can be shared by any number of
// concurrent connection attempts.
type ClientTLSConfig struct {
	serverName *ServerName
	ca         *Certificate
	identity   *Identity
}

// NewClientTLSConfig returns a config with no server name override, the
// system trust store and no client identity.
func NewClientTLSConfig() ClientTLSConfig {
	return ClientTLSConfig{}
}

// WithServerName pins the name used to verify the server certificate. The
// value is used verbatim regardless of the host being dialed.
func (c ClientTLSConfig) WithServerName(name ServerName) ClientTLSConfig {
	c.serverName = &name
	return c
}

// WithDomainName parses name and pins it as the server name. On failure the
// receiver is returned unchanged together with an invalid_server_name error.
func (c ClientTLSConfig) WithDomainName(name string) (ClientTLSConfig, error) {
	serverName, err := ParseServerName(name)
	if err != nil {
		return c, err
	}
	return c.WithServerName(serverName), nil
}

// MustDomainName is like WithDomainName but panics if name does not parse.
func (c ClientTLSConfig) MustDomainName(name string) ClientTLSConfig {
	return c.WithServerName(MustParseServerName(name))
}

// WithCACertificate sets the certificate authority used to verify the server.
func (c ClientTLSConfig) WithCACertificate(cert Certificate) ClientTLSConfig {
	c.ca = &cert
	return c
}

// WithIdentity sets the client certificate and key offered for mutual TLS.
func (c ClientTLSConfig) WithIdentity(identity Identity) ClientTLSConfig {
	c.identity = &identity
	return c
}

// ServerName returns the pinned server name, if any.
func (c ClientTLSConfig) ServerName() (ServerName, bool) {
	if c.serverName == nil {
		return ServerName{}, false
	}
	return *c.serverName, true
}

// CACertificate returns the configured trust anchor, if any.
func (c ClientTLSConfig) CACertificate() (Certificate, bool) {
	if c.ca == nil {
		return Certificate{}, false
	}
	return *c.ca, true
}

// Identity returns the configured client identity, if any.
func (c ClientTLSConfig) Identity() (Identity, bool) {
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// Connector resolves the effective server name for target and builds a
// connector with the default factory.
func (c ClientTLSConfig) Connector(target *url.URL) (*Connector, error) {
	return c.ConnectorWith(DefaultConnectorFactory{}, target)
}

// ConnectorWith is Connector with an explicit factory.
//
// A pinned server name always wins; a zero ServerName override fails with
// invalid_server_name without consulting the factory. Otherwise the host of target is parsed;
// a target without a host fails with invalid_target_uri before the factory
// is consulted. Factory errors are returned unchanged.
func (c ClientTLSConfig) ConnectorWith(factory ConnectorFactory, target *url.URL) (*Connector, error) {
	serverName, _, err := c.effectiveServerName(target)
	if err != nil {
		return nil, err
	}
	return factory.NewConnector(c.ca, c.identity, serverName)
}

// nameSource labels where the effective server name came from.
type nameSource string

const (
	sourceOverride nameSource = "override"
	sourceTarget   nameSource = "target"
)

func (c ClientTLSConfig) effectiveServerName(target *url.URL) (ServerName, nameSource, error) {
	if c.serverName != nil {
		if c.serverName.IsZero() {
			return ServerName{}, sourceOverride, NewInvalidServerNameError("", fmt.Errorf("server name override is the zero value"))
		}
		return *c.serverName, sourceOverride, nil
	}

	if target == nil {
		return ServerName{}, sourceTarget, NewInvalidTargetURIError("")
	}
	host := target.Hostname()
	if host == "" {
		return ServerName{}, sourceTarget, NewInvalidTargetURIError(target.String())
	}

	serverName, err := ParseServerName(host)
	if err != nil {
		return ServerName{}, sourceTarget, err
	}
	return serverName, sourceTarget, nil
}

// LogValue renders the config for structured logs without key material.
func (c ClientTLSConfig) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	if c.serverName != nil {
		attrs = append(attrs, slog.String("server_name", c.serverName.String()))
	} else {
		attrs = append(attrs, slog.String("server_name", "<from target>"))
	}
	attrs = append(attrs, slog.Bool("ca_certificate", c.ca != nil))
	if c.identity != nil {
		attrs = append(attrs, slog.String("identity", c.identity.subject()))
	} else {
		attrs = append(attrs, slog.Bool("identity", false))
	}
	return slog.GroupValue(attrs...)
}
