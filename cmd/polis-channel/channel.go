package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/polisai/polis-channel/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// channelFlags describes a channel given on the command line instead of in
// the configuration file
type channelFlags struct {
	target     string
	domainName string
	caFile     string
	certFile   string
	keyFile    string
}

func (f *channelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.target, "target", "", "Target URI, e.g. https://10.0.0.5:8443")
	cmd.Flags().StringVar(&f.domainName, "domain-name", "", "Server name to validate instead of the target host")
	cmd.Flags().StringVar(&f.caFile, "ca-file", "", "PEM CA certificate to trust instead of the system roots")
	cmd.Flags().StringVar(&f.certFile, "cert-file", "", "PEM client certificate for mutual TLS")
	cmd.Flags().StringVar(&f.keyFile, "key-file", "", "PEM private key for --cert-file")
}

// channel returns the named channel from the configuration or, without a
// name, the channel described by the flags.
func (a *app) channel(args []string, flags *channelFlags) (config.Channel, error) {
	if len(args) > 0 {
		if flags.target != "" {
			return config.Channel{}, fmt.Errorf("give either a channel name or --target, not both")
		}
		chCfg, ok := a.cfg.Channel(args[0])
		if !ok {
			return config.Channel{}, fmt.Errorf("channel %q not found in configuration", args[0])
		}
		return chCfg.ToChannel()
	}

	if strings.TrimSpace(flags.target) == "" {
		return config.Channel{}, fmt.Errorf("a channel name or --target is required")
	}

	chCfg := config.ChannelConfig{
		Name:   "cli",
		Target: flags.target,
		TLS: &config.ClientTLSFileConfig{
			DomainName: flags.domainName,
			CAFile:     flags.caFile,
			CertFile:   flags.certFile,
			KeyFile:    flags.keyFile,
		},
	}
	if err := chCfg.Validate(); err != nil {
		return config.Channel{}, err
	}
	return chCfg.ToChannel()
}

// writeOutput encodes v as yaml or json
func writeOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q (use yaml or json)", format)
	}
}
