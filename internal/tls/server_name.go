package tls

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
)

// maxServerNameLength is the longest DNS name accepted in a TLS SNI extension.
const (
	maxServerNameLength = 253
	maxLabelLength      = 63
)

// Underscores are allowed in labels (service names such as my_service), so
// STD3 rules are off and the ASCII result is checked by validLabels.
var serverNameProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
	idna.ValidateLabels(true),
	idna.VerifyDNSLength(true),
	idna.BidiRule(),
)

// ServerName is the identity a client verifies the peer certificate against.
// It holds either a normalized DNS name or an IP address. The zero value is
// not a valid server name.
type ServerName struct {
	dns string
	ip  netip.Addr
}

// ParseServerName parses a host name or IP literal. IPv6 literals may be
// bracketed. DNS names are converted to their lower-case ASCII form.
func ParseServerName(host string) (ServerName, error) {
	raw := host
	host = strings.TrimSpace(host)
	if host == "" {
		return ServerName{}, NewInvalidServerNameError(raw, fmt.Errorf("server name is empty"))
	}

	bracketed := strings.HasPrefix(host, "[") || strings.HasSuffix(host, "]")
	literal := host
	if bracketed {
		if len(host) < 2 || host[0] != '[' || host[len(host)-1] != ']' {
			return ServerName{}, NewInvalidServerNameError(raw, fmt.Errorf("malformed IP literal"))
		}
		literal = host[1 : len(host)-1]
	}
	if addr, err := netip.ParseAddr(literal); err == nil {
		if addr.Zone() != "" {
			return ServerName{}, NewInvalidServerNameError(raw, fmt.Errorf("zoned address %q cannot be used for TLS", literal))
		}
		return ServerName{ip: addr.Unmap()}, nil
	}
	if bracketed {
		return ServerName{}, NewInvalidServerNameError(raw, fmt.Errorf("malformed IP literal"))
	}

	// A single trailing dot is the fully qualified form and names the same host.
	name := strings.TrimSuffix(host, ".")
	ascii, err := serverNameProfile.ToASCII(name)
	if err != nil {
		return ServerName{}, NewInvalidServerNameError(raw, err)
	}
	if len(ascii) > maxServerNameLength {
		return ServerName{}, NewInvalidServerNameError(raw, fmt.Errorf("server name too long (max %d characters)", maxServerNameLength))
	}
	ascii = strings.ToLower(ascii)
	if err := validLabels(ascii); err != nil {
		return ServerName{}, NewInvalidServerNameError(raw, err)
	}
	return ServerName{dns: ascii}, nil
}

// validLabels accepts letters, digits, hyphens and underscores. Labels may
// not be empty, exceed 63 bytes, or start or end with a hyphen.
func validLabels(name string) error {
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return fmt.Errorf("empty label")
		}
		if len(label) > maxLabelLength {
			return fmt.Errorf("label %q too long (max %d characters)", label, maxLabelLength)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("label %q starts or ends with a hyphen", label)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return fmt.Errorf("invalid character %q in label %q", c, label)
			}
		}
	}
	return nil
}

// MustParseServerName is like ParseServerName but panics on invalid input. It
// is intended for package-level literals.
func MustParseServerName(host string) ServerName {
	name, err := ParseServerName(host)
	if err != nil {
		panic(err)
	}
	return name
}

// IsIP reports whether the name is an IP address.
func (n ServerName) IsIP() bool {
	return n.ip.IsValid()
}

// IsZero reports whether n was never set.
func (n ServerName) IsZero() bool {
	return n.dns == "" && !n.ip.IsValid()
}

// IP returns the address when IsIP is true.
func (n ServerName) IP() (netip.Addr, bool) {
	return n.ip, n.ip.IsValid()
}

// String returns the value placed in tls.Config.ServerName.
func (n ServerName) String() string {
	if n.ip.IsValid() {
		return n.ip.String()
	}
	return n.dns
}
