package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// CertificateRole selects the key usages of a generated certificate.
type CertificateRole int

const (
	RoleServer CertificateRole = iota
	RoleClient
	RoleCA
)

// CertificateOptions describes a certificate for GenerateCertificate. Zero
// values give a one year, 2048-bit RSA server certificate for localhost.
type CertificateOptions struct {
	CommonName  string
	DNSNames    []string
	IPAddresses []net.IP
	Role        CertificateRole
	ValidFor    time.Duration
	KeySize     int

	// IssuerPEM and IssuerKeyPEM sign the certificate. Without them it is
	// self-signed.
	IssuerPEM    []byte
	IssuerKeyPEM []byte
}

// GenerateCertificate creates a certificate and its PKCS#8 private key, both
// PEM encoded.
func GenerateCertificate(opts CertificateOptions) (certPEM, keyPEM []byte, err error) {
	if opts.ValidFor <= 0 {
		opts.ValidFor = 365 * 24 * time.Hour
	}
	if opts.KeySize == 0 {
		opts.KeySize = 2048
	}
	if opts.CommonName == "" {
		opts.CommonName = "localhost"
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.CommonName, Organization: []string{"Polis"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPAddresses,
	}

	switch opts.Role {
	case RoleCA:
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
	case RoleClient:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	default:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		if len(template.DNSNames) == 0 && len(template.IPAddresses) == 0 {
			template.DNSNames = []string{"localhost"}
			template.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
		}
	}

	parent, signer := template, any(key)
	if len(opts.IssuerPEM) > 0 {
		parent, signer, err = parseKeyPair(opts.IssuerPEM, opts.IssuerKeyPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load issuer: %w", err)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// WriteCertificateFiles writes a certificate and, readable only by the
// owner, its key.
func WriteCertificateFiles(certPEM, keyPEM []byte, certFile, keyFile string) error {
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// TestCertificateSet names the files written by GenerateTestCertificates.
type TestCertificateSet struct {
	CAFile         string
	ServerCertFile string
	ServerKeyFile  string
	ClientCertFile string
	ClientKeyFile  string
}

// GenerateTestCertificates writes a CA, a server certificate for serverNames
// and a client certificate into baseDir. Names that parse as IP addresses are
// placed in the IP SANs.
func GenerateTestCertificates(baseDir string, serverNames ...string) (*TestCertificateSet, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if len(serverNames) == 0 {
		serverNames = []string{"localhost", "127.0.0.1"}
	}

	caCertPEM, caKeyPEM, err := GenerateCertificate(CertificateOptions{
		CommonName: "Channel Test CA",
		Role:       RoleCA,
		ValidFor:   10 * 365 * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA certificate: %w", err)
	}

	set := &TestCertificateSet{
		CAFile:         filepath.Join(baseDir, "ca.crt"),
		ServerCertFile: filepath.Join(baseDir, "server.crt"),
		ServerKeyFile:  filepath.Join(baseDir, "server.key"),
		ClientCertFile: filepath.Join(baseDir, "client.crt"),
		ClientKeyFile:  filepath.Join(baseDir, "client.key"),
	}
	if err := WriteCertificateFiles(caCertPEM, caKeyPEM, set.CAFile, filepath.Join(baseDir, "ca.key")); err != nil {
		return nil, fmt.Errorf("failed to write CA certificate: %w", err)
	}

	dnsNames, ips := splitHosts(serverNames)
	issued := []struct {
		kind     string
		opts     CertificateOptions
		certFile string
		keyFile  string
	}{
		{"server", CertificateOptions{CommonName: serverNames[0], DNSNames: dnsNames, IPAddresses: ips}, set.ServerCertFile, set.ServerKeyFile},
		{"client", CertificateOptions{CommonName: "channel-client", Role: RoleClient}, set.ClientCertFile, set.ClientKeyFile},
	}
	for _, cert := range issued {
		cert.opts.IssuerPEM, cert.opts.IssuerKeyPEM = caCertPEM, caKeyPEM
		certPEM, keyPEM, err := GenerateCertificate(cert.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s certificate: %w", cert.kind, err)
		}
		if err := WriteCertificateFiles(certPEM, keyPEM, cert.certFile, cert.keyFile); err != nil {
			return nil, fmt.Errorf("failed to write %s certificate: %w", cert.kind, err)
		}
	}

	return set, nil
}

// splitHosts separates IP literals from DNS names.
func splitHosts(names []string) ([]string, []net.IP) {
	var dnsNames []string
	var ips []net.IP
	for _, name := range names {
		if ip := net.ParseIP(name); ip != nil {
			ips = append(ips, ip)
			continue
		}
		dnsNames = append(dnsNames, name)
	}
	return dnsNames, ips
}

// CertificateInfo summarizes the leaf certificate of a PEM chain
type CertificateInfo struct {
	Subject     string    `json:"subject" yaml:"subject"`
	Issuer      string    `json:"issuer" yaml:"issuer"`
	NotBefore   time.Time `json:"not_before" yaml:"not_before"`
	NotAfter    time.Time `json:"not_after" yaml:"not_after"`
	DNSNames    []string  `json:"dns_names,omitempty" yaml:"dns_names,omitempty"`
	IPAddresses []string  `json:"ip_addresses,omitempty" yaml:"ip_addresses,omitempty"`
	IsCA        bool      `json:"is_ca" yaml:"is_ca"`
}

// InspectCertificate extracts information from the first certificate in data
func InspectCertificate(data []byte) (*CertificateInfo, error) {
	cert, err := parseLeaf(data)
	if err != nil {
		return nil, err
	}

	info := &CertificateInfo{
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DNSNames:  cert.DNSNames,
		IsCA:      cert.IsCA,
	}
	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	return info, nil
}

func parseLeaf(data []byte) (*x509.Certificate, error) {
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, NewCertificateParsingError("certificate", err)
		}
		return cert, nil
	}
	return nil, NewCertificateParsingError("certificate", fmt.Errorf("no certificate PEM block found"))
}

func parseKeyPair(certPEM, keyPEM []byte) (*x509.Certificate, interface{}, error) {
	cert, err := parseLeaf(certPEM)
	if err != nil {
		return nil, nil, err
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, NewCertificateParsingError("private_key", fmt.Errorf("no PEM block found"))
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, NewCertificateParsingError("private_key", err)
	}
	return cert, key, nil
}
