// Package metrics provides Prometheus metrics for outbound HTTP traffic.
//
// Every provider client (Oura, the analyzer backends and the notifiers) sends
// its requests through a Transport, which records request counts, durations,
// in-flight requests and 429 responses labeled by service.
//
// All metrics are registered with the Prometheus default registry and exposed
// via the worker's /metrics endpoint.
//
// Example usage:
//
//	client := &http.Client{
//	    Transport: tracing.NewTransport("oura", metrics.NewTransport("oura", nil)),
//	}
package metrics
