package tls

import (
	"bytes"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Certificate is PEM encoded certificate authority material used as a trust
// anchor. It is treated as an opaque blob and parsed only when a connector is
// built.
type Certificate struct {
	pem []byte
}

// NewCertificateFromPEM wraps PEM data. The input is copied.
func NewCertificateFromPEM(data []byte) Certificate {
	return Certificate{pem: bytes.Clone(data)}
}

// LoadCertificate reads a PEM file from disk.
func LoadCertificate(path string) (Certificate, error) {
	data, err := readPEMFile(path)
	if err != nil {
		return Certificate{}, err
	}
	return Certificate{pem: data}, nil
}

// PEM returns a copy of the encoded certificate.
func (c Certificate) PEM() []byte {
	return bytes.Clone(c.pem)
}

// IsZero reports whether the certificate holds no data.
func (c Certificate) IsZero() bool {
	return len(c.pem) == 0
}

// Identity is a client certificate chain and its private key, both PEM
// encoded, presented to the server for mutual TLS.
type Identity struct {
	cert []byte
	key  []byte
}

// NewIdentityFromPEM wraps a PEM certificate chain and key. The inputs are copied.
func NewIdentityFromPEM(certPEM, keyPEM []byte) Identity {
	return Identity{cert: bytes.Clone(certPEM), key: bytes.Clone(keyPEM)}
}

// LoadIdentity reads a certificate chain and private key from disk.
func LoadIdentity(certFile, keyFile string) (Identity, error) {
	certPEM, err := readPEMFile(certFile)
	if err != nil {
		return Identity{}, err
	}
	keyPEM, err := readPEMFile(keyFile)
	if err != nil {
		return Identity{}, err
	}
	return Identity{cert: certPEM, key: keyPEM}, nil
}

// CertificatePEM returns a copy of the certificate chain.
func (i Identity) CertificatePEM() []byte {
	return bytes.Clone(i.cert)
}

// KeyPEM returns a copy of the private key.
func (i Identity) KeyPEM() []byte {
	return bytes.Clone(i.key)
}

// IsZero reports whether the identity holds no data.
func (i Identity) IsZero() bool {
	return len(i.cert) == 0 && len(i.key) == 0
}

// subject returns the subject of the leaf certificate for log output, or an
// empty string when the chain cannot be decoded.
func (i Identity) subject() string {
	info, err := parseLeaf(i.cert)
	if err != nil {
		return ""
	}
	return info.Subject.String()
}

func readPEMFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- paths come from operator configuration
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewFileNotFoundError(cleanPath)
		}
		return nil, fmt.Errorf("read %s: %w", cleanPath, err)
	}
	if block, _ := pem.Decode(data); block == nil {
		return nil, NewCertificateParsingError(cleanPath, fmt.Errorf("no PEM block found"))
	}
	return data, nil
}
