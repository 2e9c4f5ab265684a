package tls

import (
	"context"
	"log/slog"
	"net/url"
	"time"
)

// Resolver resolves connectors with an injected factory and records
// resolution telemetry. Failures are returned to the caller and never logged
// here; the transport decides what to do with them.
type Resolver struct {
	factory ConnectorFactory
	logger  *TLSLogger
	metrics *TLSMetricsCollector
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithConnectorFactory replaces the default crypto/tls factory.
func WithConnectorFactory(factory ConnectorFactory) ResolverOption {
	return func(r *Resolver) {
		if factory != nil {
			r.factory = factory
		}
	}
}

// WithMetrics records resolutions on collector.
func WithMetrics(collector *TLSMetricsCollector) ResolverOption {
	return func(r *Resolver) {
		r.metrics = collector
	}
}

// NewResolver creates a resolver logging through logger (slog.Default when nil).
func NewResolver(logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		factory: DefaultConnectorFactory{},
		logger:  NewTLSLogger(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the connector for one connection attempt to target.
func (r *Resolver) Resolve(ctx context.Context, cfg ClientTLSConfig, target *url.URL) (*Connector, error) {
	start := time.Now()

	serverName, source, err := cfg.effectiveServerName(target)
	if err != nil {
		r.record(ctx, source, err, time.Since(start))
		return nil, err
	}

	connector, err := r.factory.NewConnector(cfg.ca, cfg.identity, serverName)
	r.record(ctx, source, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	r.logger.LogConnectorResolved(ctx, targetString(target), string(source), connector)
	return connector, nil
}

func (r *Resolver) record(ctx context.Context, source nameSource, err error, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordResolution(ctx, string(source), err, elapsed)
}

func targetString(target *url.URL) string {
	if target == nil {
		return ""
	}
	return target.String()
}
