package tls

import (
	"errors"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recordingFactory captures the arguments of every NewConnector call.
type recordingFactory struct {
	calls      int
	ca         *Certificate
	identity   *Identity
	serverName ServerName
	err        error
}

func (f *recordingFactory) NewConnector(ca *Certificate, identity *Identity, serverName ServerName) (*Connector, error) {
	f.calls++
	f.ca = ca
	f.identity = identity
	f.serverName = serverName
	if f.err != nil {
		return nil, f.err
	}
	return NewConnectorFromConfig(serverName, nil), nil
}

func mustURL(t testing.TB, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

var dnsNameGen = rapid.StringMatching(`[a-z][a-z0-9]{0,8}(\.[a-z][a-z0-9]{0,8}){0,3}`)

func TestConnector_NoOverrideUsesTargetHost(t *testing.T) {
	factory := &recordingFactory{}

	connector, err := NewClientTLSConfig().ConnectorWith(factory, mustURL(t, "https://svc.internal:443/"))
	require.NoError(t, err)

	assert.Equal(t, 1, factory.calls)
	assert.Equal(t, MustParseServerName("svc.internal"), factory.serverName)
	assert.Nil(t, factory.ca, "trust anchor should be absent so the system store is used")
	assert.Nil(t, factory.identity)
	assert.Equal(t, "svc.internal", connector.ServerName().String())
}

func TestConnector_OverrideIgnoresTargetIP(t *testing.T) {
	factory := &recordingFactory{}
	cfg, err := NewClientTLSConfig().WithDomainName("override.example")
	require.NoError(t, err)

	_, err = cfg.ConnectorWith(factory, mustURL(t, "https://1.2.3.4:443/"))
	require.NoError(t, err)

	assert.Equal(t, "override.example", factory.serverName.String())
	assert.False(t, factory.serverName.IsIP())
}

func TestConnector_EmptyHostFails(t *testing.T) {
	factory := &recordingFactory{}

	_, err := NewClientTLSConfig().ConnectorWith(factory, mustURL(t, "https://:443/"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTargetURI)
	assert.True(t, IsResolutionError(err))
	assert.Zero(t, factory.calls, "factory must not be called without a server name")
}

func TestConnector_NilTargetFails(t *testing.T) {
	factory := &recordingFactory{}

	_, err := NewClientTLSConfig().ConnectorWith(factory, nil)

	assert.ErrorIs(t, err, ErrInvalidTargetURI)
	assert.Zero(t, factory.calls)
}

func TestConnector_UnparseableHostFails(t *testing.T) {
	factory := &recordingFactory{}

	_, err := NewClientTLSConfig().ConnectorWith(factory, mustURL(t, "https://bad_host!:443/"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidServerName)
	assert.Zero(t, factory.calls)
}

func TestConnector_UnderscoreHostResolves(t *testing.T) {
	factory := &recordingFactory{}

	connector, err := NewClientTLSConfig().ConnectorWith(factory, mustURL(t, "https://my_service:443/"))
	require.NoError(t, err)

	assert.Equal(t, 1, factory.calls)
	assert.Equal(t, "my_service", connector.ServerName().String())
}

func TestConnector_ZeroOverrideFails(t *testing.T) {
	factory := &recordingFactory{}
	cfg := NewClientTLSConfig().WithServerName(ServerName{})

	_, err := cfg.ConnectorWith(factory, mustURL(t, "https://svc.internal:443/"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidServerName)
	assert.Zero(t, factory.calls)
}

func TestConnector_IPTargetsParseAsIP(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"https://10.0.0.7:8443", "10.0.0.7"},
		{"https://[::1]:443/", "::1"},
		{"https://[2001:db8::1]/svc", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			factory := &recordingFactory{}
			_, err := NewClientTLSConfig().ConnectorWith(factory, mustURL(t, tt.target))
			require.NoError(t, err)
			assert.True(t, factory.serverName.IsIP())
			assert.Equal(t, tt.want, factory.serverName.String())
		})
	}
}

func TestConnector_FactoryErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("factory rejected material")
	factory := &recordingFactory{err: sentinel}

	_, err := NewClientTLSConfig().ConnectorWith(factory, mustURL(t, "https://example.com"))

	assert.Same(t, sentinel, err)
}

func TestConnector_PassesMaterialThrough(t *testing.T) {
	ca := NewCertificateFromPEM([]byte("ca"))
	identity := NewIdentityFromPEM([]byte("cert"), []byte("key"))
	factory := &recordingFactory{}

	cfg := NewClientTLSConfig().WithCACertificate(ca).WithIdentity(identity)
	_, err := cfg.ConnectorWith(factory, mustURL(t, "https://example.com"))
	require.NoError(t, err)

	require.NotNil(t, factory.ca)
	require.NotNil(t, factory.identity)
	assert.Equal(t, []byte("ca"), factory.ca.PEM())
	assert.Equal(t, []byte("cert"), factory.identity.CertificatePEM())
	assert.Equal(t, []byte("key"), factory.identity.KeyPEM())
}

func TestWithDomainName_InvalidKeepsReceiver(t *testing.T) {
	base := NewClientTLSConfig().MustDomainName("keep.example")

	cfg, err := base.WithDomainName("not a host")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidServerName)
	name, ok := cfg.ServerName()
	require.True(t, ok)
	assert.Equal(t, "keep.example", name.String())
}

func TestMustDomainName_Panics(t *testing.T) {
	assert.Panics(t, func() {
		NewClientTLSConfig().MustDomainName("")
	})
}

func TestBuilder_LastDomainNameWins(t *testing.T) {
	cfg := NewClientTLSConfig().MustDomainName("a.com").MustDomainName("b.com")
	factory := &recordingFactory{}

	_, err := cfg.ConnectorWith(factory, mustURL(t, "https://c.com"))
	require.NoError(t, err)

	assert.Equal(t, "b.com", factory.serverName.String())
}

func TestProperty_OverrideAlwaysWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		override := dnsNameGen.Draw(t, "override")
		targets := []string{
			"https://" + dnsNameGen.Draw(t, "host") + ":443/",
			"https://:443/",
			"unix:///var/run/channel.sock",
			"/relative/path",
		}
		target := rapid.SampledFrom(targets).Draw(t, "target")

		u, err := url.Parse(target)
		if err != nil {
			t.Fatalf("parse %q: %v", target, err)
		}

		factory := &recordingFactory{}
		cfg := NewClientTLSConfig().WithServerName(MustParseServerName(override))
		if _, err := cfg.ConnectorWith(factory, u); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := factory.serverName.String(); got != override {
			t.Fatalf("server name = %q, want %q", got, override)
		}
	})
}

func TestProperty_TargetHostDerivesServerName(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := dnsNameGen.Draw(t, "host")
		port := rapid.IntRange(1, 65535).Draw(t, "port")

		u, err := url.Parse("https://" + host + ":" + strconv.Itoa(port) + "/")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		factory := &recordingFactory{}
		if _, err := NewClientTLSConfig().ConnectorWith(factory, u); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want, _ := ParseServerName(host)
		if factory.serverName != want {
			t.Fatalf("server name = %v, want %v", factory.serverName, want)
		}
	})
}

func TestProperty_BuildersAreNonDestructive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		withIdentity := rapid.Bool().Draw(t, "with_identity")
		withName := rapid.Bool().Draw(t, "with_name")

		a := NewClientTLSConfig()
		if withIdentity {
			a = a.WithIdentity(NewIdentityFromPEM([]byte("cert"), []byte("key")))
		}
		if withName {
			a = a.MustDomainName(dnsNameGen.Draw(t, "name"))
		}
		before := a

		b := a.WithCACertificate(NewCertificateFromPEM([]byte(rapid.String().Draw(t, "ca"))))

		if a != before {
			t.Fatalf("receiver was modified")
		}
		if _, ok := a.CACertificate(); ok {
			t.Fatalf("receiver gained a CA certificate")
		}
		if _, ok := b.CACertificate(); !ok {
			t.Fatalf("new value lost its CA certificate")
		}
		if a.identity != b.identity {
			t.Fatalf("client identity not shared between siblings")
		}
		if a.serverName != b.serverName {
			t.Fatalf("server name not shared between siblings")
		}
	})
}

func TestProperty_LastBuilderCallWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfN(dnsNameGen, 1, 5).Draw(t, "names")

		cfg := NewClientTLSConfig()
		for _, name := range names {
			var err error
			cfg, err = cfg.WithDomainName(name)
			if err != nil {
				t.Fatalf("WithDomainName(%q): %v", name, err)
			}
		}

		got, ok := cfg.ServerName()
		if !ok {
			t.Fatalf("no server name set")
		}
		if want := names[len(names)-1]; got.String() != want {
			t.Fatalf("server name = %q, want %q", got, want)
		}
	})
}

func TestLogValue_HidesKeyMaterial(t *testing.T) {
	cfg := NewClientTLSConfig().
		MustDomainName("api.example.com").
		WithIdentity(NewIdentityFromPEM([]byte("cert"), []byte("SECRET-KEY")))

	rendered := cfg.LogValue().String()

	assert.Contains(t, rendered, "api.example.com")
	assert.NotContains(t, rendered, "SECRET-KEY")
}
