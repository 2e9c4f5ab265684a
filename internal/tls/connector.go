package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"

	"google.golang.org/grpc/credentials"
)

// ConnectorFactory builds a connector from pass-through TLS material. A nil
// ca means the system trust store; a nil identity means no client
// certificate is offered.
type ConnectorFactory interface {
	NewConnector(ca *Certificate, identity *Identity, serverName ServerName) (*Connector, error)
}

// ConnectorFactoryFunc adapts a function to ConnectorFactory.
type ConnectorFactoryFunc func(ca *Certificate, identity *Identity, serverName ServerName) (*Connector, error)

// NewConnector calls f.
func (f ConnectorFactoryFunc) NewConnector(ca *Certificate, identity *Identity, serverName ServerName) (*Connector, error) {
	return f(ca, identity, serverName)
}

// Connector is the handshake configuration for one connection attempt.
type Connector struct {
	serverName ServerName
	config     *tls.Config
}

// NewConnectorFromConfig wraps an existing tls.Config. The ServerName field
// of a clone of cfg is set from serverName.
func NewConnectorFromConfig(serverName ServerName, cfg *tls.Config) *Connector {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	clone := cfg.Clone()
	clone.ServerName = serverName.String()
	return &Connector{serverName: serverName, config: clone}
}

// ServerName returns the name the peer certificate is verified against.
func (c *Connector) ServerName() ServerName {
	return c.serverName
}

// TLSConfig returns a copy of the client tls.Config.
func (c *Connector) TLSConfig() *tls.Config {
	return c.config.Clone()
}

// HasClientCertificate reports whether a client identity is presented.
func (c *Connector) HasClientCertificate() bool {
	return len(c.config.Certificates) > 0
}

// UsesSystemRoots reports whether verification falls back to the host trust store.
func (c *Connector) UsesSystemRoots() bool {
	return c.config.RootCAs == nil
}

// Client wraps conn in a TLS client connection. The handshake runs on first
// I/O or an explicit HandshakeContext call.
func (c *Connector) Client(conn net.Conn) *tls.Conn {
	return tls.Client(conn, c.TLSConfig())
}

// TransportCredentials returns gRPC credentials using this connector's
// configuration. The server name is already pinned and is not derived from
// the dial authority.
func (c *Connector) TransportCredentials() credentials.TransportCredentials {
	return credentials.NewTLS(c.TLSConfig())
}

// DefaultConnectorFactory builds connectors on crypto/tls.
type DefaultConnectorFactory struct {
	// NextProtos defaults to h2 when empty.
	NextProtos []string
}

// NewConnector parses the CA and identity and returns a TLS 1.2+ connector.
func (f DefaultConnectorFactory) NewConnector(ca *Certificate, identity *Identity, serverName ServerName) (*Connector, error) {
	if serverName.IsZero() {
		return nil, NewConnectorConstructionError("", fmt.Errorf("server name is required"))
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName.String(),
		NextProtos: f.NextProtos,
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"h2"}
	}

	if ca != nil {
		pool, err := certPoolFromPEM(ca.pem)
		if err != nil {
			return nil, NewConnectorConstructionError(serverName.String(), err)
		}
		cfg.RootCAs = pool
	}

	if identity != nil {
		certificate, err := tls.X509KeyPair(identity.cert, identity.key)
		if err != nil {
			return nil, NewConnectorConstructionError(serverName.String(), fmt.Errorf("load client identity: %w", err))
		}
		cfg.Certificates = []tls.Certificate{certificate}
	}

	return &Connector{serverName: serverName, config: cfg}, nil
}

func certPoolFromPEM(data []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	added := 0
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, NewCertificateParsingError("ca_certificate", err)
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return nil, NewCertificateParsingError("ca_certificate", fmt.Errorf("no certificates found"))
	}
	return pool, nil
}
