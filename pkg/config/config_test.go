package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadChannels(t *testing.T) {
	configContent := `
channels:
  - name: billing
    target: https://10.0.0.5:8443
    connect_timeout: 3s
    tls:
      domain_name: billing.internal
      ca_file: /etc/polis/ca.pem
      cert_file: /etc/polis/client.pem
      key_file: /etc/polis/client.key
  - name: public
    target: https://api.example.com

telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true

metrics:
  address: ":9464"

logging:
  level: "DEBUG"
  format: text
`

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Channels, 2)
	billing, ok := cfg.Channel("billing")
	require.True(t, ok)
	assert.Equal(t, "https://10.0.0.5:8443", billing.Target)
	assert.Equal(t, 3*time.Second, billing.ConnectTimeout)
	require.NotNil(t, billing.TLS)
	assert.Equal(t, "billing.internal", billing.TLS.DomainName)
	assert.True(t, billing.TLS.MutualTLS())

	public, ok := cfg.Channel("public")
	require.True(t, ok)
	assert.Nil(t, public.TLS)
	assert.Equal(t, defaultConnectTimeout, public.ConnectTimeout)

	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "polis-channel", cfg.Telemetry.ServiceName)
	assert.Equal(t, ":9464", cfg.Metrics.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	_, ok = cfg.Channel("missing")
	assert.False(t, ok)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Channels)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHANNEL_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("CHANNEL_OTLP_INSECURE", "true")
	t.Setenv("CHANNEL_SERVICE_NAME", "edge")
	t.Setenv("CHANNEL_METRICS_ADDR", ":9999")
	t.Setenv("CHANNEL_LOG_LEVEL", "warn")
	t.Setenv("CHANNEL_LOG_FORMAT", "text")

	cfg, err := Parse([]byte("logging:\n  level: error\n"))
	require.NoError(t, err)

	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "edge", cfg.Telemetry.ServiceName)
	assert.Equal(t, ":9999", cfg.Metrics.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "missing name",
			yaml:  "channels:\n  - target: https://a.example\n",
			field: "name",
		},
		{
			name:  "missing target",
			yaml:  "channels:\n  - name: a\n",
			field: "target",
		},
		{
			name:  "target without scheme",
			yaml:  "channels:\n  - name: a\n    target: //a.example:443\n",
			field: "target",
		},
		{
			name:  "duplicate names",
			yaml:  "channels:\n  - name: a\n    target: https://a.example\n  - name: a\n    target: https://b.example\n",
			field: "channels.name",
		},
		{
			name:  "negative timeout",
			yaml:  "channels:\n  - name: a\n    target: https://a.example\n    connect_timeout: -1s\n",
			field: "connect_timeout",
		},
		{
			name:  "invalid domain name",
			yaml:  "channels:\n  - name: a\n    target: https://a.example\n    tls:\n      domain_name: not a host\n",
			field: "domain_name",
		},
		{
			name:  "cert without key",
			yaml:  "channels:\n  - name: a\n    target: https://a.example\n    tls:\n      cert_file: /c.pem\n",
			field: "key_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseInvalidLogging(t *testing.T) {
	_, err := Parse([]byte("logging:\n  level: verbose\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = Parse([]byte("logging:\n  format: xml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestHostlessTargetIsAccepted(t *testing.T) {
	cfg, err := Parse([]byte("channels:\n  - name: sock\n    target: unix:///run/backend.sock\n    tls:\n      domain_name: backend.internal\n"))
	require.NoError(t, err)

	ch, ok := cfg.Channel("sock")
	require.True(t, ok)
	u, err := ch.TargetURL()
	require.NoError(t, err)
	assert.Empty(t, u.Hostname())
}
