package tls

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Certificate expiry states.
const (
	ExpiryOK       = "OK"
	ExpiryWarning  = "WARNING"
	ExpiryCritical = "CRITICAL"
	ExpiryExpired  = "EXPIRED"
)

// CertificateStatus describes the validity window of one certificate held by
// a client TLS configuration.
type CertificateStatus struct {
	Channel         string    `json:"channel" yaml:"channel"`
	Kind            string    `json:"kind" yaml:"kind"`
	Subject         string    `json:"subject" yaml:"subject"`
	Issuer          string    `json:"issuer" yaml:"issuer"`
	NotBefore       time.Time `json:"not_before" yaml:"not_before"`
	NotAfter        time.Time `json:"not_after" yaml:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry" yaml:"days_until_expiry"`
	Status          string    `json:"status" yaml:"status"`
}

// ExpiryChecker inspects the CA and identity certificates of client TLS
// configurations and warns as they approach expiry. Each certificate is
// warned about at most once per day.
type ExpiryChecker struct {
	metrics     *TLSMetricsCollector
	logger      *slog.Logger
	warningDays []int
	now         func() time.Time

	mu           sync.Mutex
	lastWarnings map[string]time.Time
}

// NewExpiryChecker creates a checker that warns 30, 7 and 1 days before expiry.
// metrics may be nil.
func NewExpiryChecker(metrics *TLSMetricsCollector, logger *slog.Logger) *ExpiryChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryChecker{
		metrics:      metrics,
		logger:       logger.With("component", "tls"),
		warningDays:  []int{30, 7, 1},
		now:          time.Now,
		lastWarnings: make(map[string]time.Time),
	}
}

// SetWarningDays sets the days before expiry to warn at
func (c *ExpiryChecker) SetWarningDays(days []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warningDays = append([]int(nil), days...)
}

// Check returns the status of the CA certificate and client certificate in
// cfg. Material that does not parse is skipped; connector resolution reports
// it.
func (c *ExpiryChecker) Check(ctx context.Context, channel string, cfg ClientTLSConfig) []CertificateStatus {
	var statuses []CertificateStatus

	if ca, ok := cfg.CACertificate(); ok {
		if status, ok := c.check(ctx, channel, "ca", ca.pem); ok {
			statuses = append(statuses, status)
		}
	}
	if identity, ok := cfg.Identity(); ok {
		if status, ok := c.check(ctx, channel, "identity", identity.cert); ok {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

func (c *ExpiryChecker) check(ctx context.Context, channel, kind string, data []byte) (CertificateStatus, bool) {
	cert, err := parseLeaf(data)
	if err != nil {
		c.logger.Debug("Skipping unparseable certificate", "channel", channel, "kind", kind, "error", err)
		return CertificateStatus{}, false
	}

	now := c.now()
	days := int(cert.NotAfter.Sub(now).Hours() / 24)

	status := CertificateStatus{
		Channel:         channel,
		Kind:            kind,
		Subject:         cert.Subject.String(),
		Issuer:          cert.Issuer.String(),
		NotBefore:       cert.NotBefore,
		NotAfter:        cert.NotAfter,
		DaysUntilExpiry: days,
		Status:          classifyExpiry(now, cert.NotAfter, days),
	}

	if c.metrics != nil {
		c.metrics.RecordCertificateExpiry(ctx, channel, kind, cert.NotAfter)
	}
	c.warn(ctx, status, now)
	return status, true
}

func classifyExpiry(now, notAfter time.Time, days int) string {
	switch {
	case !now.Before(notAfter):
		return ExpiryExpired
	case days <= 1:
		return ExpiryCritical
	case days <= 7:
		return ExpiryWarning
	default:
		return ExpiryOK
	}
}

func (c *ExpiryChecker) warn(ctx context.Context, status CertificateStatus, now time.Time) {
	key := status.Channel + "/" + status.Kind

	c.mu.Lock()
	due := false
	for _, day := range c.warningDays {
		if status.DaysUntilExpiry <= day {
			due = true
			break
		}
	}
	if status.Status == ExpiryExpired {
		due = true
	}
	if last, ok := c.lastWarnings[key]; due && ok && now.Sub(last) < 24*time.Hour {
		due = false
	}
	if due {
		c.lastWarnings[key] = now
	}
	c.mu.Unlock()

	if !due {
		return
	}

	attrs := []slog.Attr{
		slog.String("event", "certificate_expiry"),
		slog.String("channel", status.Channel),
		slog.String("kind", status.Kind),
		slog.String("subject", status.Subject),
		slog.Time("expires_on", status.NotAfter),
		slog.Int("days_remaining", status.DaysUntilExpiry),
		slog.String("status", status.Status),
	}

	switch status.Status {
	case ExpiryExpired:
		c.logger.LogAttrs(ctx, slog.LevelError, "Channel certificate has expired", attrs...)
	case ExpiryCritical:
		c.logger.LogAttrs(ctx, slog.LevelError, "Channel certificate expires within a day", attrs...)
	default:
		c.logger.LogAttrs(ctx, slog.LevelWarn, "Channel certificate expires soon", attrs...)
	}
}
