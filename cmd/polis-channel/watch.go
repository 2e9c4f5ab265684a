package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
	"github.com/polisai/polis-channel/pkg/config"
	"github.com/polisai/polis-channel/pkg/telemetry"
	"github.com/polisai/polis-channel/pkg/transport"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func newWatchCmd(a *app) *cobra.Command {
	var metricsAddr string
	var handshake bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the configuration file and re-resolve channels on change",
		Long: `Watch the channel configuration file. Every revision is loaded, each
channel's connector is resolved and, with --handshake, a TLS handshake is
attempted. Prometheus metrics are served on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.configPath == "" {
				return fmt.Errorf("watch requires --config")
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.newWatchService(ctx, handshake)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := svc.close(closeCtx); err != nil {
					a.logger.Warn("watch shutdown", "error", err)
				}
			}()

			if metricsAddr != "" {
				server := newMetricsServer(metricsAddr, svc.handler())
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}()
				a.logger.Info("serving metrics", "addr", metricsAddr)
			}

			svc.run(ctx)
			a.logger.Info("watch stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the /metrics endpoint (defaults to metrics.address)")
	cmd.Flags().BoolVar(&handshake, "handshake", false, "Perform a TLS handshake with every channel on each revision")

	return cmd
}

// watchService follows the configuration file and verifies each revision.
// TLS metrics recorded through OpenTelemetry are exported into the same
// Prometheus registry as the transport metrics.
type watchService struct {
	app       *app
	metrics   *transport.Metrics
	meters    *sdkmetric.MeterProvider
	provider  *config.FileConfigProvider
	resolver  *tlspkg.Resolver
	expiry    *tlspkg.ExpiryChecker
	handshake bool
}

func (a *app) newWatchService(ctx context.Context, handshake bool) (*watchService, error) {
	metrics := transport.NewMetrics()
	meters, err := telemetry.NewMeterProvider(ctx, telemetry.Config{ServiceName: a.cfg.Telemetry.ServiceName}, metrics.Registry())
	if err != nil {
		return nil, fmt.Errorf("setup metrics: %w", err)
	}

	collector, err := tlspkg.NewTLSMetricsCollector(meters, a.logger)
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}

	provider, err := config.NewFileConfigProvider(a.configPath,
		config.WithLogger(a.logger),
		config.WithReloadMetrics(collector),
	)
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}

	return &watchService{
		app:       a,
		metrics:   metrics,
		meters:    meters,
		provider:  provider,
		resolver:  tlspkg.NewResolver(a.logger, tlspkg.WithMetrics(collector)),
		expiry:    tlspkg.NewExpiryChecker(collector, a.logger),
		handshake: handshake,
	}, nil
}

// run probes every published snapshot until ctx is done
func (w *watchService) run(ctx context.Context) {
	updates := w.provider.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-updates:
			w.probeSnapshot(ctx, snapshot)
		}
	}
}

func (w *watchService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(w.metrics.Handler(), "channel.metrics",
		otelhttp.WithMeterProvider(w.meters)))
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	return mux
}

func (w *watchService) close(ctx context.Context) error {
	return errors.Join(w.provider.Close(), w.meters.Shutdown(ctx))
}

// probeSnapshot resolves every channel of a snapshot and logs the outcome
func (w *watchService) probeSnapshot(ctx context.Context, snapshot config.Snapshot) {
	logger := w.app.logger
	logger.Info("channel configuration revision",
		"generation", snapshot.Generation,
		"channels", len(snapshot.Channels))

	for _, name := range snapshot.Names() {
		ch := snapshot.Channels[name]
		endpoint, err := transport.FromChannel(ch,
			transport.WithLogger(logger),
			transport.WithResolver(w.resolver),
			transport.WithMetrics(w.metrics),
		)
		if err != nil {
			logger.Error("invalid channel", "channel", name, "error", err)
			continue
		}

		connector, err := endpoint.ResolveConnector(ctx)
		if err != nil {
			logger.Error("channel TLS resolution failed", "channel", name, "error", err)
			continue
		}
		w.expiry.Check(ctx, name, ch.TLS)

		if !w.handshake {
			logger.Info("channel resolved", "channel", name, "server_name", connector.ServerName().String())
			continue
		}

		state, err := endpoint.Handshake(ctx)
		if err != nil {
			logger.Warn("channel handshake failed", "channel", name, "error", err)
			continue
		}
		logger.Info("channel handshake succeeded",
			"channel", name,
			"server_name", state.ServerName,
			"tls_version", tls.VersionName(state.Version))
	}
}

func newMetricsServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
