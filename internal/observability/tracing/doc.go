// Package tracing provides OpenTelemetry tracing integration.
//
// Setup installs a global TracerProvider with a stdout or OTLP/HTTP exporter.
// Pipeline stages open spans through StartSpan, and outbound provider calls
// are wrapped with Transport so each HTTP request gets a client span.
//
//	providers, err := tracing.Setup(ctx, tracing.ConfigFromEnv())
//	if err != nil { ... }
//	defer providers.Shutdown(context.Background())
//
//	ctx, span := tracing.StartSpan(ctx, "pipeline.fetch")
//	defer span.End()
package tracing
