package config

import (
	"net/url"
	"sort"
	"time"

	tlspkg "github.com/polisai/polis-channel/internal/tls"
)

// Channel is a channel with its certificate material loaded.
type Channel struct {
	Name           string
	Target         *url.URL
	ConnectTimeout time.Duration
	TLS            tlspkg.ClientTLSConfig
}

// Snapshot is the immutable set of channels loaded from one configuration
// file revision. Consumers must not modify it.
type Snapshot struct {
	Generation int64
	LoadedAt   time.Time
	Channels   map[string]Channel
}

// Channel looks up a channel by name.
func (s Snapshot) Channel(name string) (Channel, bool) {
	ch, ok := s.Channels[name]
	return ch, ok
}

// Names returns the channel names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Channels))
	for name := range s.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
