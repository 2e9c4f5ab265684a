package tls

import (
	"context"
	"log/slog"
	"time"
)

// TLSLogger provides structured logging for TLS events
type TLSLogger struct {
	logger *slog.Logger
}

// NewTLSLogger creates a new TLS logger
func NewTLSLogger(logger *slog.Logger) *TLSLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &TLSLogger{
		logger: logger.With("component", "tls"),
	}
}

// LogConnectorResolved logs the connector chosen for a connection attempt
func (l *TLSLogger) LogConnectorResolved(ctx context.Context, target, source string, connector *Connector) {
	if connector == nil {
		return
	}

	l.logger.LogAttrs(ctx, slog.LevelDebug, "TLS connector resolved",
		slog.String("event", "connector_resolved"),
		slog.String("target", target),
		slog.String("server_name", connector.ServerName().String()),
		slog.String("server_name_source", source),
		slog.Bool("system_roots", connector.UsesSystemRoots()),
		slog.Bool("client_auth", connector.HasClientCertificate()),
		slog.Time("timestamp", time.Now()),
	)
}

// LogCertificateLoad logs certificate loading events
func (l *TLSLogger) LogCertificateLoad(ctx context.Context, kind, path string, err error) {
	level := slog.LevelInfo
	message := "Certificate loaded successfully"

	attrs := []slog.Attr{
		slog.String("event", "certificate_load"),
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Bool("success", err == nil),
		slog.Time("timestamp", time.Now()),
	}

	if err != nil {
		level = slog.LevelError
		message = "Certificate loading failed"
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.logger.LogAttrs(ctx, level, message, attrs...)
}

// LogConfigurationChange logs TLS configuration changes
func (l *TLSLogger) LogConfigurationChange(ctx context.Context, channel string, cfg ClientTLSConfig, err error) {
	level := slog.LevelInfo
	message := "TLS configuration changed"

	attrs := []slog.Attr{
		slog.String("event", "configuration_change"),
		slog.String("channel", channel),
		slog.Any("tls", cfg),
		slog.Bool("success", err == nil),
		slog.Time("timestamp", time.Now()),
	}

	if err != nil {
		level = slog.LevelError
		message = "TLS configuration change failed"
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.logger.LogAttrs(ctx, level, message, attrs...)
}
