package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/polisai/polis-channel/pkg/transport"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkReport is the printed result of check
type checkReport struct {
	Channel     string   `json:"channel" yaml:"channel"`
	Target      string   `json:"target" yaml:"target"`
	ServerName  string   `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	TLSVersion  string   `json:"tls_version,omitempty" yaml:"tls_version,omitempty"`
	CipherSuite string   `json:"cipher_suite,omitempty" yaml:"cipher_suite,omitempty"`
	PeerSubject string   `json:"peer_subject,omitempty" yaml:"peer_subject,omitempty"`
	PeerDNS     []string `json:"peer_dns_names,omitempty" yaml:"peer_dns_names,omitempty"`
	Health      string   `json:"health,omitempty" yaml:"health,omitempty"`
}

func newCheckCmd(a *app) *cobra.Command {
	var flags channelFlags
	var output string
	var service string
	var handshakeOnly bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check [channel]",
		Short: "Connect to a channel and query its gRPC health service",
		Long: `Connect to a channel with its client TLS settings.

By default the gRPC health service is queried over the channel. With
--handshake-only a bare TLS handshake is performed instead, which also works
against backends that do not expose the health service.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := a.channel(args, &flags)
			if err != nil {
				return err
			}

			opts := []transport.Option{transport.WithLogger(a.logger)}
			if timeout > 0 {
				opts = append(opts, transport.WithConnectTimeout(timeout))
			}
			endpoint, err := transport.FromChannel(ch, opts...)
			if err != nil {
				return err
			}

			report := checkReport{Channel: endpoint.Name(), Target: endpoint.Target().String()}

			state, err := endpoint.Handshake(cmd.Context())
			if err != nil {
				return err
			}
			report.ServerName = state.ServerName
			report.TLSVersion = tls.VersionName(state.Version)
			report.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
			if len(state.PeerCertificates) > 0 {
				report.PeerSubject = state.PeerCertificates[0].Subject.String()
				report.PeerDNS = state.PeerCertificates[0].DNSNames
			}

			if !handshakeOnly {
				status, err := checkHealth(cmd.Context(), endpoint, service)
				if err != nil {
					return err
				}
				report.Health = status
			}

			if err := writeOutput(cmd.OutOrStdout(), output, report); err != nil {
				return err
			}
			if report.Health != "" && report.Health != healthpb.HealthCheckResponse_SERVING.String() {
				return fmt.Errorf("channel %s is %s", report.Channel, report.Health)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	cmd.Flags().StringVar(&service, "service", "", "Health service name to query (empty means the server)")
	cmd.Flags().BoolVar(&handshakeOnly, "handshake-only", false, "Only perform the TLS handshake")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Connect timeout (defaults to the channel setting)")

	return cmd
}

func checkHealth(ctx context.Context, endpoint *transport.Endpoint, service string) (string, error) {
	conn, err := endpoint.Connect(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus().String(), nil
}
