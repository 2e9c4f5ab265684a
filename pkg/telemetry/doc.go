// Package telemetry wires OpenTelemetry tracing for channel tooling.
//
// It centralises tracer provider setup and names the tracer used for
// connection spans so operators can correlate connector resolution with
// the calls made over the resulting channel.
package telemetry
