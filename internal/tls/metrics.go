package tls

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	metricsInitErr error
	tlsMetricsInst *TLSMetricsCollector
)

// TLSMetricsCollector handles connector resolution metrics
type TLSMetricsCollector struct {
	resolutions        metric.Int64Counter
	resolutionErrors   metric.Int64Counter
	resolutionDuration metric.Float64Histogram
	configReloads      metric.Int64Counter
	certificateExpiry  metric.Float64Gauge

	logger *slog.Logger
}

// GetTLSMetricsCollector returns the singleton TLS metrics collector
func GetTLSMetricsCollector(logger *slog.Logger) (*TLSMetricsCollector, error) {
	metricsOnce.Do(func() {
		tlsMetricsInst, metricsInitErr = NewTLSMetricsCollector(otel.GetMeterProvider(), logger)
	})
	return tlsMetricsInst, metricsInitErr
}

// NewTLSMetricsCollector creates a collector on the given meter provider.
func NewTLSMetricsCollector(provider metric.MeterProvider, logger *slog.Logger) (*TLSMetricsCollector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	meter := provider.Meter("channel.tls")

	collector := &TLSMetricsCollector{
		logger: logger,
	}

	var err error

	collector.resolutions, err = meter.Int64Counter(
		"tls_connector_resolutions_total",
		metric.WithDescription("Total number of TLS connector resolutions"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	collector.resolutionErrors, err = meter.Int64Counter(
		"tls_connector_resolution_errors_total",
		metric.WithDescription("Total number of failed TLS connector resolutions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	collector.resolutionDuration, err = meter.Float64Histogram(
		"tls_connector_resolution_duration_seconds",
		metric.WithDescription("Time spent resolving a TLS connector"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	collector.configReloads, err = meter.Int64Counter(
		"tls_config_reloads_total",
		metric.WithDescription("Total number of client TLS configuration reloads"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}

	collector.certificateExpiry, err = meter.Float64Gauge(
		"tls_certificate_expiry_seconds",
		metric.WithDescription("Seconds until a channel certificate expires"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return collector, nil
}

// RecordResolution records one connector resolution
func (c *TLSMetricsCollector) RecordResolution(ctx context.Context, source string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	}

	c.resolutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.resolutionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		errType := "unknown"
		if t, ok := errorType(err); ok {
			errType = string(t)
		}
		c.resolutionErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("error_type", errType),
		))
	}
}

// RecordConfigReload records a configuration reload
func (c *TLSMetricsCollector) RecordConfigReload(ctx context.Context, channel string, success bool) {
	c.configReloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("success", success),
	))

	c.logger.Debug("TLS configuration reload recorded",
		"channel", channel,
		"success", success)
}

// RecordCertificateExpiry records the time left before a channel certificate expires
func (c *TLSMetricsCollector) RecordCertificateExpiry(ctx context.Context, channel, kind string, notAfter time.Time) {
	c.certificateExpiry.Record(ctx, time.Until(notAfter).Seconds(), metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("kind", kind),
	))
}
