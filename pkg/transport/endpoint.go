// Package transport dials outbound RPC channels, resolving a fresh client TLS
// connector for every connection attempt.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	tlspkg "github.com/polisai/polis-channel/internal/tls"
	"github.com/polisai/polis-channel/pkg/config"
	"github.com/polisai/polis-channel/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultConnectTimeout = 10 * time.Second

// Endpoint is a connection target plus the client TLS settings used to
// reach it. It is immutable once built and safe for concurrent use.
type Endpoint struct {
	name           string
	target         *url.URL
	tls            *tlspkg.ClientTLSConfig
	connectTimeout time.Duration
	resolver       *tlspkg.Resolver
	logger         *slog.Logger
	metrics        *Metrics
	dialOptions    []grpc.DialOption
}

// Option customizes an Endpoint.
type Option func(*Endpoint)

// WithName labels logs, spans and metrics for the endpoint.
func WithName(name string) Option {
	return func(e *Endpoint) {
		e.name = name
	}
}

// WithTLS secures the endpoint with cfg. Without it the channel is plaintext.
func WithTLS(cfg tlspkg.ClientTLSConfig) Option {
	return func(e *Endpoint) {
		e.tls = &cfg
	}
}

// WithConnectTimeout bounds how long Connect waits for a ready channel.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(e *Endpoint) {
		if timeout > 0 {
			e.connectTimeout = timeout
		}
	}
}

// WithResolver replaces the connector resolver.
func WithResolver(resolver *tlspkg.Resolver) Option {
	return func(e *Endpoint) {
		if resolver != nil {
			e.resolver = resolver
		}
	}
}

// WithLogger sets the endpoint logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records connection attempts on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Endpoint) {
		e.metrics = m
	}
}

// WithDialOptions appends gRPC dial options. Transport credentials are
// always derived from the TLS settings and must not be passed here.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(e *Endpoint) {
		e.dialOptions = append(e.dialOptions, opts...)
	}
}

// NewEndpoint parses target and applies opts.
func NewEndpoint(target string, opts ...Option) (*Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint target %q: %w", target, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("endpoint target %q has no scheme", target)
	}

	e := &Endpoint{
		name:           u.Host,
		target:         u,
		connectTimeout: defaultConnectTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = tlspkg.NewResolver(e.logger)
	}
	return e, nil
}

// FromChannel builds an endpoint for a configured channel. The channel's TLS
// settings always apply; opts may add logging, metrics or a resolver.
func FromChannel(ch config.Channel, opts ...Option) (*Endpoint, error) {
	if ch.Target == nil {
		return nil, fmt.Errorf("channel %s has no target", ch.Name)
	}
	base := []Option{
		WithName(ch.Name),
		WithTLS(ch.TLS),
		WithConnectTimeout(ch.ConnectTimeout),
	}
	return NewEndpoint(ch.Target.String(), append(base, opts...)...)
}

// Name returns the endpoint label.
func (e *Endpoint) Name() string {
	return e.name
}

// Target returns a copy of the endpoint URI.
func (e *Endpoint) Target() *url.URL {
	u := *e.target
	return &u
}

// TLSConfig returns the client TLS settings, if any.
func (e *Endpoint) TLSConfig() (tlspkg.ClientTLSConfig, bool) {
	if e.tls == nil {
		return tlspkg.ClientTLSConfig{}, false
	}
	return *e.tls, true
}

// ResolveConnector resolves the TLS connector this endpoint would use for a
// new connection attempt.
func (e *Endpoint) ResolveConnector(ctx context.Context) (*tlspkg.Connector, error) {
	if e.tls == nil {
		return nil, fmt.Errorf("endpoint %s is not configured for TLS", e.name)
	}
	connector, err := e.resolver.Resolve(ctx, *e.tls, e.target)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordResolutionFailure(e.name, err)
		}
		return nil, fmt.Errorf("resolve TLS connector for %s: %w", e.target, err)
	}
	return connector, nil
}

// Connect resolves a connector, dials the endpoint and waits until the
// channel is ready or the connect timeout expires.
func (e *Endpoint) Connect(ctx context.Context) (*grpc.ClientConn, error) {
	attemptID := uuid.NewString()
	start := time.Now()

	ctx, span := telemetry.Tracer().Start(ctx, "channel.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("channel.name", e.name),
			attribute.String("channel.target", e.target.String()),
			attribute.String("channel.attempt_id", attemptID),
			attribute.Bool("channel.tls", e.tls != nil),
		))
	defer span.End()

	logger := e.logger.With("channel", e.name, "attempt_id", attemptID)

	conn, err := e.connect(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.recordConnect("error", start)
		logger.Warn("channel connect failed", "target", e.target.String(), "error", err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	e.recordConnect("success", start)
	logger.Info("channel connected", "target", e.target.String(), "duration", time.Since(start))
	return conn, nil
}

func (e *Endpoint) connect(ctx context.Context, span trace.Span) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if e.tls != nil {
		connector, err := e.ResolveConnector(ctx)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("tls.server_name", connector.ServerName().String()))
		creds = connector.TransportCredentials()
	}

	conn, err := e.newClient(creds)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()
	if err := waitForReady(waitCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect to %s: %w", e.target, err)
	}
	return conn, nil
}

func (e *Endpoint) newClient(creds credentials.TransportCredentials) (*grpc.ClientConn, error) {
	opts := make([]grpc.DialOption, 0, len(e.dialOptions)+1)
	opts = append(opts, grpc.WithTransportCredentials(creds))
	opts = append(opts, e.dialOptions...)

	conn, err := grpc.NewClient(dialTarget(e.target), opts...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", e.target, err)
	}
	return conn, nil
}

// Handshake dials the endpoint over TCP and completes a TLS handshake
// without speaking RPC. It is a diagnostic for certificate problems.
func (e *Endpoint) Handshake(ctx context.Context) (tls.ConnectionState, error) {
	connector, err := e.ResolveConnector(ctx)
	if err != nil {
		return tls.ConnectionState{}, err
	}

	addr, err := tcpAddress(e.target)
	if err != nil {
		return tls.ConnectionState{}, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	var dialer net.Dialer
	raw, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return tls.ConnectionState{}, fmt.Errorf("dial %s: %w", addr, err)
	}

	conn := connector.Client(raw)
	defer conn.Close()

	if err := conn.HandshakeContext(dialCtx); err != nil {
		return tls.ConnectionState{}, fmt.Errorf("TLS handshake with %s as %s: %w", addr, connector.ServerName(), err)
	}

	state := conn.ConnectionState()
	if e.metrics != nil {
		e.metrics.RecordHandshake(e.name, tls.VersionName(state.Version))
	}
	return state, nil
}

func (e *Endpoint) recordConnect(outcome string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordConnect(e.name, outcome, time.Since(start))
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("client connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("channel not ready (last state %s): %w", state, ctx.Err())
		}
	}
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http", "grpc":
		return "80"
	default:
		return "443"
	}
}

// tcpAddress returns host:port for network schemes.
func tcpAddress(target *url.URL) (string, error) {
	host := target.Hostname()
	if host == "" {
		return "", fmt.Errorf("target %s has no host to dial", target)
	}
	port := target.Port()
	if port == "" {
		port = defaultPort(target.Scheme)
	}
	return net.JoinHostPort(host, port), nil
}

// dialTarget maps the endpoint URI onto a gRPC target string. Network
// schemes become host:port for the default resolver; anything else, such as
// unix:// or dns:///, is handed to gRPC unchanged.
func dialTarget(target *url.URL) string {
	switch target.Scheme {
	case "http", "https", "grpc", "grpcs":
		if addr, err := tcpAddress(target); err == nil {
			return addr
		}
	}
	return target.String()
}
