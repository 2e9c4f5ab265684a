// Package main is the entry point for the polis-channel binary.
// It resolves, checks and watches outbound RPC channel TLS settings.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/polisai/polis-channel/pkg/config"
	"github.com/polisai/polis-channel/pkg/logging"
	"github.com/polisai/polis-channel/pkg/telemetry"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries state shared by all subcommands
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-channel
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "polis-channel",
		Short: "Client TLS tooling for outbound RPC channels",
		Long: `Inspect and verify the client TLS settings used to reach RPC backends.

Channels are read from a YAML file or given inline with --target and the TLS
flags. The effective server name is the configured domain_name when present,
otherwise the host of the target URI.

Example:
  polis-channel resolve --target https://10.0.0.5:8443 --domain-name billing.internal
  polis-channel check billing --config channels.yaml`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to channel configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format (json, text)")

	rootCmd.AddCommand(
		newResolveCmd(a),
		newCheckCmd(a),
		newWatchCmd(a),
		newCertCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

// setup loads configuration and initialises logging and tracing
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Logging.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logging.SetupLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})

	shutdown, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "polis-channel %s\n", version)
			return err
		},
	}
}
