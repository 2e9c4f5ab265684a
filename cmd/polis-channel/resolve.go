package main

import (
	tlspkg "github.com/polisai/polis-channel/internal/tls"
	"github.com/spf13/cobra"
)

// resolveReport is the printed result of resolve
type resolveReport struct {
	Channel           string `json:"channel" yaml:"channel"`
	Target            string `json:"target" yaml:"target"`
	ServerName        string `json:"server_name" yaml:"server_name"`
	ServerNameSource  string `json:"server_name_source" yaml:"server_name_source"`
	ServerNameIsIP    bool   `json:"server_name_is_ip" yaml:"server_name_is_ip"`
	SystemRoots       bool   `json:"system_roots" yaml:"system_roots"`
	ClientCertificate bool   `json:"client_certificate" yaml:"client_certificate"`

	Certificates []tlspkg.CertificateStatus `json:"certificates,omitempty" yaml:"certificates,omitempty"`
}

func newResolveCmd(a *app) *cobra.Command {
	var flags channelFlags
	var output string

	cmd := &cobra.Command{
		Use:   "resolve [channel]",
		Short: "Show the TLS settings a connection attempt would use",
		Long: `Resolve the client TLS connector for a channel without connecting.

The report names the server name the peer certificate will be validated
against and whether it came from domain_name or the target host.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := a.channel(args, &flags)
			if err != nil {
				return err
			}

			collector, err := tlspkg.GetTLSMetricsCollector(a.logger)
			if err != nil {
				return err
			}
			resolver := tlspkg.NewResolver(a.logger, tlspkg.WithMetrics(collector))

			connector, err := resolver.Resolve(cmd.Context(), ch.TLS, ch.Target)
			if err != nil {
				return err
			}

			source := "target"
			if _, ok := ch.TLS.ServerName(); ok {
				source = "override"
			}

			return writeOutput(cmd.OutOrStdout(), output, resolveReport{
				Channel:           ch.Name,
				Target:            ch.Target.String(),
				ServerName:        connector.ServerName().String(),
				ServerNameSource:  source,
				ServerNameIsIP:    connector.ServerName().IsIP(),
				SystemRoots:       connector.UsesSystemRoots(),
				ClientCertificate: connector.HasClientCertificate(),
				Certificates:      tlspkg.NewExpiryChecker(collector, a.logger).Check(cmd.Context(), ch.Name, ch.TLS),
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")

	return cmd
}
