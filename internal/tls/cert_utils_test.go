package tls

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseGenerated(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	cert, err := parseLeaf(certPEM)
	require.NoError(t, err)
	return cert
}

func TestGenerateCertificate_Roles(t *testing.T) {
	caPEM, caKeyPEM, err := GenerateCertificate(CertificateOptions{CommonName: "Roles CA", Role: RoleCA})
	require.NoError(t, err)
	ca := parseGenerated(t, caPEM)
	assert.True(t, ca.IsCA)
	assert.NotZero(t, ca.KeyUsage&x509.KeyUsageCertSign)

	clientPEM, _, err := GenerateCertificate(CertificateOptions{
		CommonName:   "roles-client",
		Role:         RoleClient,
		IssuerPEM:    caPEM,
		IssuerKeyPEM: caKeyPEM,
	})
	require.NoError(t, err)
	client := parseGenerated(t, clientPEM)
	assert.False(t, client.IsCA)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, client.ExtKeyUsage)
	assert.Equal(t, "CN=Roles CA,O=Polis", client.Issuer.String())

	pool := x509.NewCertPool()
	pool.AddCert(ca)
	_, err = client.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err)
}

func TestGenerateCertificate_ServerDefaults(t *testing.T) {
	certPEM, _, err := GenerateCertificate(CertificateOptions{})
	require.NoError(t, err)
	cert := parseGenerated(t, certPEM)

	assert.Equal(t, "CN=localhost,O=Polis", cert.Subject.String())
	assert.Equal(t, []string{"localhost"}, cert.DNSNames)
	assert.Len(t, cert.IPAddresses, 2)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, cert.ExtKeyUsage)
	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
}

func TestGenerateCertificate_SerialsDiffer(t *testing.T) {
	first, _, err := GenerateCertificate(CertificateOptions{KeySize: 1024})
	require.NoError(t, err)
	second, _, err := GenerateCertificate(CertificateOptions{KeySize: 1024})
	require.NoError(t, err)

	assert.NotEqual(t, parseGenerated(t, first).SerialNumber, parseGenerated(t, second).SerialNumber)
}

func TestGenerateCertificate_BadIssuer(t *testing.T) {
	_, _, err := GenerateCertificate(CertificateOptions{
		IssuerPEM:    []byte("not pem"),
		IssuerKeyPEM: []byte("not pem"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load issuer")
}

func TestGenerateTestCertificates_SplitsIPNames(t *testing.T) {
	set, err := GenerateTestCertificates(t.TempDir(), "svc.internal", "10.0.0.7")
	require.NoError(t, err)

	server, err := LoadCertificate(set.ServerCertFile)
	require.NoError(t, err)
	info, err := InspectCertificate(server.PEM())
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.internal"}, info.DNSNames)
	assert.Equal(t, []string{"10.0.0.7"}, info.IPAddresses)
	assert.Equal(t, "CN=Channel Test CA,O=Polis", info.Issuer)
}
