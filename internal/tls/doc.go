// Package tls configures the client side of TLS for outbound RPC channels.
//
// A ClientTLSConfig is an immutable value built with chained With* calls. For
// every new connection attempt the transport asks it for a Connector, which
// pins the server name used for certificate verification (an explicit override
// or the host of the dialed target), the trust anchor and the client identity.
package tls
