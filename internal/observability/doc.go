// Package observability groups the worker's observability infrastructure:
// structured logging, Prometheus metrics, SLO tracking and OpenTelemetry tracing.
//
// Subpackages:
//   - logging: slog setup, tenant-scoped loggers and error sanitizing
//   - metrics: outbound HTTP client metrics
//   - slo: delivery SLO tracking over recent cycles
//   - tracing: OpenTelemetry provider setup and HTTP client spans
//
// Example usage:
//
//	import (
//	    "health-assistant/internal/observability/logging"
//	    "health-assistant/internal/observability/tracing"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    providers, _ := tracing.Setup(ctx, tracing.ConfigFromEnv())
//	    defer providers.Shutdown(ctx)
//	    logger.Info("worker started")
//	}
package observability
