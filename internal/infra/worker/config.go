// Package worker holds the process-level pieces of the health-assistant
// worker: environment overrides, Prometheus metrics, the health endpoints
// and the construction of tenants from the YAML configuration.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	appconfig "health-assistant/internal/config"
	"health-assistant/internal/pkg/config"
)

// WorkerConfig holds the runtime settings of the worker process.
// The YAML file describes tenants and providers; these settings tune the
// process and may be overridden from the environment.
type WorkerConfig struct {
	// CronSchedule is the daily trigger in standard five-field cron format.
	// It is derived from the scheduler section unless CRON_SCHEDULE is set.
	CronSchedule string

	// Timezone is the IANA timezone the schedule and target date use.
	Timezone string

	// TenantConcurrency bounds how many tenant pipelines run at once.
	TenantConcurrency int

	// CycleTimeout bounds one whole cycle.
	CycleTimeout time.Duration

	// ShutdownGracePeriod is how long a running cycle may take to finish
	// after a shutdown signal before it is canceled.
	ShutdownGracePeriod time.Duration

	// HealthPort serves /health, /health/ready and /health/cycle.
	HealthPort int

	// MetricsPort serves /metrics.
	MetricsPort int
}

// DefaultConfig returns the built-in defaults: daily at 08:00 UTC, two
// tenants at a time.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:        "0 8 * * *",
		Timezone:            appconfig.DefaultTimezone,
		TenantConcurrency:   2,
		CycleTimeout:        30 * time.Minute,
		ShutdownGracePeriod: 30 * time.Second,
		HealthPort:          9091,
		MetricsPort:         9090,
	}
}

// ConfigFor returns the defaults with the schedule taken from the YAML
// scheduler section.
func ConfigFor(s appconfig.SchedulerConfig) WorkerConfig {
	cfg := DefaultConfig()
	cfg.CronSchedule = s.CronSpec()
	if s.Timezone != "" {
		cfg.Timezone = s.Timezone
	}
	return cfg
}

// Location loads the configured timezone.
func (c *WorkerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate checks every field and aggregates the failures.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.TenantConcurrency, 1, 32); err != nil {
		errs = append(errs, fmt.Errorf("tenant concurrency: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CycleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("cycle timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.ShutdownGracePeriod); err != nil {
		errs = append(errs, fmt.Errorf("shutdown grace period: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health port and metrics port must differ, both are %d", c.HealthPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv overlays environment variables on base.
//
// Loading is fail-open: an invalid value is logged, counted in metrics and
// replaced by the value from base. The returned config is never nil and the
// error is always nil.
//
// Environment variables:
//   - CRON_SCHEDULE: cron expression (default: from the scheduler section)
//   - WORKER_TIMEZONE: IANA timezone (default: scheduler.timezone)
//   - WORKER_TENANT_CONCURRENCY: integer 1-32 (default: 2)
//   - CYCLE_TIMEOUT: duration 1m-6h (default: 30m)
//   - SHUTDOWN_GRACE_PERIOD: duration 1s-10m (default: 30s)
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default: 9091)
//   - METRICS_PORT: integer 1024-65535 (default: 9090)
func LoadConfigFromEnv(base WorkerConfig, logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := base
	fallbackApplied := false

	apply := func(field, metricField string, outcome config.Outcome) {
		if !outcome.FallbackApplied {
			return
		}
		fallbackApplied = true
		metrics.RecordValidationError(metricField)
		metrics.RecordFallback(metricField, "default")
		for _, warning := range outcome.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	schedule := config.LoadEnvString("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = schedule.Value
	apply("CronSchedule", "cron_schedule", schedule.Outcome)

	timezone := config.LoadEnvString("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = timezone.Value
	apply("Timezone", "timezone", timezone.Outcome)

	concurrency := config.LoadEnvInt("WORKER_TENANT_CONCURRENCY", cfg.TenantConcurrency, func(v int) error {
		return config.ValidateIntRange(v, 1, 32)
	})
	cfg.TenantConcurrency = concurrency.Value
	apply("TenantConcurrency", "tenant_concurrency", concurrency.Outcome)

	cycleTimeout := config.LoadEnvDuration("CYCLE_TIMEOUT", cfg.CycleTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Minute, 6*time.Hour)
	})
	cfg.CycleTimeout = cycleTimeout.Value
	apply("CycleTimeout", "cycle_timeout", cycleTimeout.Outcome)

	grace := config.LoadEnvDuration("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 10*time.Minute)
	})
	cfg.ShutdownGracePeriod = grace.Value
	apply("ShutdownGracePeriod", "shutdown_grace_period", grace.Outcome)

	validPort := func(v int) error { return config.ValidateIntRange(v, 1024, 65535) }

	healthPort := config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, validPort)
	cfg.HealthPort = healthPort.Value
	apply("HealthPort", "health_port", healthPort.Outcome)

	metricsPort := config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, validPort)
	cfg.MetricsPort = metricsPort.Value
	apply("MetricsPort", "metrics_port", metricsPort.Outcome)

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
