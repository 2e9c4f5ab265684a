package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
	"github.com/spf13/cobra"
)

func newCertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Generate and inspect certificates for channel testing",
	}

	cmd.AddCommand(newCertGenerateCmd(a), newCertInspectCmd())
	return cmd
}

func newCertGenerateCmd(a *app) *cobra.Command {
	var (
		outputDir   string
		serverNames []string
		selfSigned  bool
		commonName  string
		validFor    time.Duration
		keySize     int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a CA with server and client certificates",
		Long: `Generate a test CA plus a server certificate for --name and a client
certificate for mutual TLS. With --self-signed a single self-signed server
certificate is written instead.

Example:
  polis-channel cert generate --dir ./certs --name backend.internal --name 10.0.0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if selfSigned {
				return generateSelfSigned(cmd, outputDir, commonName, serverNames, validFor, keySize)
			}

			set, err := tlspkg.GenerateTestCertificates(outputDir, serverNames...)
			if err != nil {
				return err
			}
			a.logger.Info("generated test certificates", "dir", outputDir, "server_names", serverNames)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ca:          %s\n", set.CAFile)
			fmt.Fprintf(out, "server cert: %s\n", set.ServerCertFile)
			fmt.Fprintf(out, "server key:  %s\n", set.ServerKeyFile)
			fmt.Fprintf(out, "client cert: %s\n", set.ClientCertFile)
			fmt.Fprintf(out, "client key:  %s\n", set.ClientKeyFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "dir", "d", ".", "Output directory")
	cmd.Flags().StringSliceVarP(&serverNames, "name", "n", nil, "Server DNS name or IP (repeatable, default localhost,127.0.0.1)")
	cmd.Flags().BoolVar(&selfSigned, "self-signed", false, "Write one self-signed certificate instead of a CA set")
	cmd.Flags().StringVar(&commonName, "cn", "", "Common name for --self-signed (defaults to the first --name)")
	cmd.Flags().DurationVar(&validFor, "valid-for", 365*24*time.Hour, "Validity for --self-signed")
	cmd.Flags().IntVar(&keySize, "key-size", 2048, "RSA key size for --self-signed")

	return cmd
}

func generateSelfSigned(cmd *cobra.Command, dir, commonName string, names []string, validFor time.Duration, keySize int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	opts := tlspkg.CertificateOptions{
		CommonName: commonName,
		ValidFor:   validFor,
		KeySize:    keySize,
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if ip := net.ParseIP(name); ip != nil {
			opts.IPAddresses = append(opts.IPAddresses, ip)
			continue
		}
		opts.DNSNames = append(opts.DNSNames, name)
	}
	if opts.CommonName == "" && len(names) > 0 {
		opts.CommonName = names[0]
	}

	certPEM, keyPEM, err := tlspkg.GenerateCertificate(opts)
	if err != nil {
		return err
	}

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := tlspkg.WriteCertificateFiles(certPEM, keyPEM, certFile, keyFile); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cert: %s\nkey:  %s\n", certFile, keyFile)
	return nil
}

func newCertInspectCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the subject, validity and SANs of a PEM certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("read certificate: %w", err)
			}

			info, err := tlspkg.InspectCertificate(data)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, info)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}
