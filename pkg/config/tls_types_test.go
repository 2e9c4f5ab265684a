package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTLSFileConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *ClientTLSFileConfig
		wantErr bool
		field   string
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name:   "empty config",
			config: &ClientTLSFileConfig{},
		},
		{
			name:   "ip domain name",
			config: &ClientTLSFileConfig{DomainName: "10.1.1.1"},
		},
		{
			name:    "ca file and trust bundle",
			config:  &ClientTLSFileConfig{CAFile: "/ca.pem", TrustBundle: &TrustBundle{Inline: "x"}},
			wantErr: true,
			field:   "ca_file",
		},
		{
			name:    "key without cert",
			config:  &ClientTLSFileConfig{KeyFile: "/k.pem"},
			wantErr: true,
			field:   "cert_file",
		},
		{
			name:    "trust bundle without source",
			config:  &ClientTLSFileConfig{TrustBundle: &TrustBundle{Name: "empty"}},
			wantErr: true,
			field:   "trust_bundle.path",
		},
		{
			name:    "trust bundle with both sources",
			config:  &ClientTLSFileConfig{TrustBundle: &TrustBundle{Path: "/a", Inline: "b"}},
			wantErr: true,
			field:   "trust_bundle",
		},
		{
			name:    "malformed checksum",
			config:  &ClientTLSFileConfig{TrustBundle: &TrustBundle{Path: "/a", SHA256: "sha256:zz"}},
			wantErr: true,
			field:   "trust_bundle.sha256",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			cfgErr, ok := err.(*ConfigError)
			require.True(t, ok, "expected *ConfigError, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestToClientTLSConfig(t *testing.T) {
	set, err := tlspkg.GenerateTestCertificates(t.TempDir(), "billing.internal")
	require.NoError(t, err)

	fileCfg := &ClientTLSFileConfig{
		DomainName: "Billing.Internal.",
		CAFile:     set.CAFile,
		CertFile:   set.ClientCertFile,
		KeyFile:    set.ClientKeyFile,
	}

	cfg, err := fileCfg.ToClientTLSConfig()
	require.NoError(t, err)

	name, ok := cfg.ServerName()
	require.True(t, ok)
	assert.Equal(t, "billing.internal", name.String())

	ca, ok := cfg.CACertificate()
	require.True(t, ok)
	caPEM, err := os.ReadFile(set.CAFile)
	require.NoError(t, err)
	assert.Equal(t, caPEM, ca.PEM())

	_, ok = cfg.Identity()
	assert.True(t, ok)

	connector, err := cfg.Connector(nil)
	require.NoError(t, err)
	assert.True(t, connector.HasClientCertificate())
	assert.False(t, connector.UsesSystemRoots())
}

func TestToClientTLSConfig_NilIsDefault(t *testing.T) {
	var fileCfg *ClientTLSFileConfig

	cfg, err := fileCfg.ToClientTLSConfig()
	require.NoError(t, err)

	assert.Equal(t, tlspkg.NewClientTLSConfig(), cfg)
}

func TestToClientTLSConfig_MissingFiles(t *testing.T) {
	_, err := (&ClientTLSFileConfig{CAFile: filepath.Join(t.TempDir(), "ca.pem")}).ToClientTLSConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ca_file")
}

func TestTrustBundleChecksumPinning(t *testing.T) {
	set, err := tlspkg.GenerateTestCertificates(t.TempDir())
	require.NoError(t, err)
	caPEM, err := os.ReadFile(set.CAFile)
	require.NoError(t, err)
	digest := sha256.Sum256(caPEM)

	t.Run("matching digest", func(t *testing.T) {
		bundle := &TrustBundle{Name: "corp", Path: set.CAFile, SHA256: "sha256:" + hex.EncodeToString(digest[:])}
		cfg, err := (&ClientTLSFileConfig{TrustBundle: bundle}).ToClientTLSConfig()
		require.NoError(t, err)

		ca, ok := cfg.CACertificate()
		require.True(t, ok)
		assert.Equal(t, caPEM, ca.PEM())
	})

	t.Run("mismatched digest", func(t *testing.T) {
		bundle := &TrustBundle{Name: "corp", Inline: string(caPEM), SHA256: hex.EncodeToString(make([]byte, sha256.Size))}
		_, err := (&ClientTLSFileConfig{TrustBundle: bundle}).ToClientTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "checksum mismatch")
	})

	t.Run("no certificates", func(t *testing.T) {
		bundle := &TrustBundle{Name: "junk", Inline: "-----BEGIN NOTHING-----\n-----END NOTHING-----\n"}
		_, err := bundle.Certificate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no certificates found")
	})
}
