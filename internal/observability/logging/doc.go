// Package logging provides structured logging utilities with context propagation.
//
// Logs go to stdout and, when a file is configured, to a size-rotated log
// file managed by lumberjack (10 MB per file, 5 backups by default).
//
// Example usage:
//
//	logger, closer := logging.New(logging.Config{Level: "INFO", File: "health_assistant.log"})
//	defer closer.Close()
//	slog.SetDefault(logger)
//
//	logging.WithTenant(logger, tenant.ID).Warn("fetch failed",
//	    slog.String("error", logging.SanitizeError(err)))
package logging
