package config

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
)

// TrustBundle holds CA bundle configuration with lazy loading and checksum
// verification.
type TrustBundle struct {
	Name   string `json:"name" yaml:"name"`
	Path   string `json:"path" yaml:"path"`
	Inline string `json:"inline" yaml:"inline"`
	SHA256 string `json:"sha256" yaml:"sha256"`
	cached []byte
	poolMu sync.Mutex
	pool   *x509.CertPool
}

// Validate checks that exactly one source is set and the checksum is well formed.
func (b *TrustBundle) Validate() error {
	hasInline := strings.TrimSpace(b.Inline) != ""
	hasPath := strings.TrimSpace(b.Path) != ""
	switch {
	case hasInline && hasPath:
		return NewConfigValidationError("trust_bundle", b.Name, "path and inline are mutually exclusive")
	case !hasInline && !hasPath:
		return NewConfigMissingError("trust_bundle.path").
			WithSuggestion("Set path to a PEM bundle or inline to embed the certificates")
	}

	if b.SHA256 != "" {
		digest := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(b.SHA256)), "sha256:")
		if _, err := hex.DecodeString(digest); err != nil || len(digest) != sha256.Size*2 {
			return NewConfigValidationError("trust_bundle.sha256", b.SHA256, "must be a hex encoded SHA-256 digest").
				WithSuggestion("Compute it with: sha256sum bundle.pem")
		}
	}
	return nil
}

// Materialise returns the PEM-encoded contents for the bundle.
func (b *TrustBundle) Materialise() ([]byte, error) {
	if len(b.cached) > 0 {
		return append([]byte(nil), b.cached...), nil
	}

	var data []byte
	var err error
	switch {
	case strings.TrimSpace(b.Inline) != "":
		data = []byte(b.Inline)
	case strings.TrimSpace(b.Path) != "":
		path := filepath.Clean(b.Path)
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("trust bundle %s: read: %w", b.Name, err)
		}
	default:
		return nil, fmt.Errorf("trust bundle %s: no path or inline data provided", b.Name)
	}

	if err := b.verifyChecksum(data); err != nil {
		return nil, err
	}

	b.cached = append([]byte(nil), data...)
	return append([]byte(nil), data...), nil
}

func (b *TrustBundle) verifyChecksum(data []byte) error {
	if b.SHA256 == "" {
		return nil
	}

	expected := strings.TrimSpace(strings.ToLower(b.SHA256))
	expected = strings.TrimPrefix(expected, "sha256:")
	digest := sha256.Sum256(data)
	actual := hex.EncodeToString(digest[:])
	if actual != expected {
		return fmt.Errorf("trust bundle %s: checksum mismatch", b.Name)
	}
	return nil
}

// CertPool parses the bundle into an x509.CertPool (cached per instance).
func (b *TrustBundle) CertPool() (*x509.CertPool, error) {
	b.poolMu.Lock()
	defer b.poolMu.Unlock()
	if b.pool != nil {
		return b.pool, nil
	}

	data, err := b.Materialise()
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("trust bundle %s: no certificates found", b.Name)
	}
	b.pool = pool
	return pool, nil
}

// Certificate returns the verified bundle as a trust anchor for a client
// TLS configuration.
func (b *TrustBundle) Certificate() (tlspkg.Certificate, error) {
	if _, err := b.CertPool(); err != nil {
		return tlspkg.Certificate{}, err
	}

	b.poolMu.Lock()
	defer b.poolMu.Unlock()
	return tlspkg.NewCertificateFromPEM(b.cached), nil
}
