package transport

import (
	"errors"
	"net/http"
	"time"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for outbound channels
type Metrics struct {
	connectAttempts    *prometheus.CounterVec
	connectDuration    *prometheus.HistogramVec
	resolutionFailures *prometheus.CounterVec
	handshakes         *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance on its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_connect_attempts_total",
				Help: "Total number of channel connection attempts by outcome",
			},
			[]string{"channel", "outcome"},
		),

		connectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_connect_duration_seconds",
				Help:    "Time from connector resolution to a ready channel",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		resolutionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_tls_resolution_failures_total",
				Help: "Total number of TLS connector resolution failures",
			},
			[]string{"channel", "error_type"},
		),

		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_tls_handshakes_total",
				Help: "Total number of direct TLS handshakes by negotiated version",
			},
			[]string{"channel", "version"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.connectAttempts,
		m.connectDuration,
		m.resolutionFailures,
		m.handshakes,
	)

	return m
}

// RecordConnect records a finished connection attempt
func (m *Metrics) RecordConnect(channel, outcome string, duration time.Duration) {
	m.connectAttempts.WithLabelValues(channel, outcome).Inc()
	m.connectDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordResolutionFailure records a connector that could not be resolved
func (m *Metrics) RecordResolutionFailure(channel string, err error) {
	errType := "unknown"
	var tlsErr *tlspkg.TLSError
	if errors.As(err, &tlsErr) {
		errType = string(tlsErr.Type)
	}
	m.resolutionFailures.WithLabelValues(channel, errType).Inc()
}

// RecordHandshake records a completed direct handshake
func (m *Metrics) RecordHandshake(channel, version string) {
	m.handshakes.WithLabelValues(channel, version).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
