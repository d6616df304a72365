package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"health-assistant/internal/config"
	"health-assistant/internal/domain/entity"
	"health-assistant/internal/infra/analyzer"
	"health-assistant/internal/infra/fetcher"
	workerPkg "health-assistant/internal/infra/worker"
	"health-assistant/internal/observability/logging"
	"health-assistant/internal/observability/tracing"
	"health-assistant/internal/usecase/orchestrator"
	"health-assistant/internal/usecase/pipeline"
	"health-assistant/pkg/ratelimit"
)

// Exit codes.
const (
	exitOK            = 0
	exitTenantFailure = 1
	exitConfigError   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultPath := os.Getenv("HEALTH_ASSISTANT_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	runNow := flag.Bool("now", false, "run one cycle immediately and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewLogger().Error("failed to load configuration",
			slog.String("path", *configPath),
			slog.String("error", logging.SanitizeError(err)))
		return exitConfigError
	}

	logger, closer := initLogger(cfg.Logging)
	defer func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()
	if len(cfg.MissingEnv) > 0 {
		logger.Warn("configuration references unset environment variables",
			slog.Any("variables", cfg.MissingEnv))
	}
	if cfg.Migrated {
		logger.Warn("legacy single-user configuration detected, running as one tenant",
			slog.String("tenant_id", config.LegacyUserID),
			slog.String("hint", "run migrate-config to convert the file"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := tracing.Setup(ctx, tracing.ConfigFromEnv())
	if err != nil {
		logger.Error("failed to set up tracing", slog.Any("error", err))
		return exitConfigError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracing", slog.Any("error", err))
		}
	}()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, _ := workerPkg.LoadConfigFromEnv(workerPkg.ConfigFor(cfg.Scheduler), logger, workerMetrics)
	if err := workerConfig.Validate(); err != nil {
		logger.Error("invalid worker configuration", slog.Any("error", err))
		return exitConfigError
	}
	loc, err := workerConfig.Location()
	if err != nil {
		logger.Error("invalid timezone", slog.String("timezone", workerConfig.Timezone), slog.Any("error", err))
		return exitConfigError
	}
	logger.Info("worker configuration loaded",
		slog.String("config", *configPath),
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("tenant_concurrency", workerConfig.TenantConcurrency),
		slog.Duration("cycle_timeout", workerConfig.CycleTimeout),
		slog.Int("users", len(cfg.Users)),
		slog.Int("enabled_users", len(cfg.EnabledUsers())),
		slog.String("analyzer", cfg.Analyzer.Provider))

	orch, err := setupOrchestrator(cfg, workerConfig, loc, logger, workerMetrics)
	if err != nil {
		logger.Error("failed to build pipeline", slog.String("error", logging.SanitizeError(err)))
		return exitConfigError
	}

	if *runNow {
		return runOnce(ctx, orch, workerConfig, logger)
	}
	return startCronWorker(ctx, orch, workerConfig, loc, logger, workerMetrics)
}

// initLogger builds the process logger from the logging section.
// LOG_LEVEL and LOG_FORMAT override the file.
func initLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	level := cfg.Level
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = v
	}
	format := cfg.Format
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		format = v
	}
	logger, closer := logging.New(logging.Config{
		Level:  level,
		File:   cfg.LogFile,
		Format: format,
	})
	slog.SetDefault(logger)
	return logger, closer
}

// setupOrchestrator wires the shared limiters, the analyzer, the pipeline and
// every configured tenant.
func setupOrchestrator(cfg *config.Config, wc *workerPkg.WorkerConfig, loc *time.Location, logger *slog.Logger, metrics *workerPkg.WorkerMetrics) (*orchestrator.Orchestrator, error) {
	limiterMetrics := ratelimit.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	fetchLimiter, err := ratelimit.NewTokenBucket(
		ratelimit.PerWindow("fetch", cfg.RateLimits.Fetch.Requests, cfg.RateLimits.Fetch.Period),
		ratelimit.WithMetrics(limiterMetrics))
	if err != nil {
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	sendLimiter, err := ratelimit.NewTokenBucket(
		ratelimit.PerWindow("send", cfg.RateLimits.Send.Requests, cfg.RateLimits.Send.Period),
		ratelimit.WithMetrics(limiterMetrics))
	if err != nil {
		return nil, fmt.Errorf("send rate limit: %w", err)
	}

	ouraConfig, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("invalid Oura client settings, using defaults", slog.Any("error", err))
		ouraConfig = fetcher.DefaultConfig()
	}

	tenants, err := workerPkg.BuildTenants(cfg, workerPkg.TenantOptions{
		Oura:            ouraConfig,
		TelegramBaseURL: os.Getenv("TELEGRAM_API_BASE_URL"),
		LimiterMetrics:  limiterMetrics,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	a, err := analyzer.New(workerPkg.AnalyzerConfig(cfg), analyzer.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Info("analyzer initialized", slog.String("provider", cfg.Analyzer.Provider))

	p := pipeline.New(a, pipeline.Config{
		FetchLimiter: fetchLimiter,
		SendLimiter:  sendLimiter,
		FetchPolicy:  cfg.Retry.FetchPolicy(),
		SendPolicy:   cfg.Retry.SendPolicy(),
		Logger:       logger,
		Metrics:      metrics,
	})

	return orchestrator.New(p, tenants, orchestrator.Config{
		Concurrency: wc.TenantConcurrency,
		Location:    loc,
		Logger:      logger,
		Metrics:     metrics,
	}), nil
}

// runOnce executes a single cycle and maps its result to an exit code.
func runOnce(ctx context.Context, orch *orchestrator.Orchestrator, wc *workerPkg.WorkerConfig, logger *slog.Logger) int {
	ctx, cancel := context.WithTimeout(ctx, wc.CycleTimeout)
	defer cancel()

	cycle, err := runCycle(ctx, orch)
	if err != nil {
		logger.Error("cycle failed to start", slog.Any("error", err))
		return exitTenantFailure
	}
	if !cycle.AllSucceeded() {
		return exitTenantFailure
	}
	return exitOK
}

func runCycle(ctx context.Context, orch *orchestrator.Orchestrator) (*entity.Cycle, error) {
	ctx, span := tracing.StartSpan(ctx, "worker.cycle")
	defer span.End()

	cycle, err := orch.RunCycle(ctx, time.Now())
	if err != nil {
		tracing.EndWithError(span, err)
	}
	return cycle, err
}

// startCronWorker installs the daily trigger and blocks until ctx ends, then
// gives a running cycle the grace period to finish.
func startCronWorker(ctx context.Context, orch *orchestrator.Orchestrator, wc *workerPkg.WorkerConfig, loc *time.Location, logger *slog.Logger, metrics *workerPkg.WorkerMetrics) int {
	startMetricsServer(ctx, logger, wc.MetricsPort, metrics.SLO)

	healthAddr := fmt.Sprintf(":%d", wc.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, orch, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger})),
	)
	id, err := c.AddFunc(wc.CronSchedule, func() {
		runScheduledCycle(orch, wc.CycleTimeout, logger)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		return exitConfigError
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", wc.CronSchedule),
		slog.String("timezone", wc.Timezone),
		slog.Time("next_run", c.Entry(id).Next))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)

	jobsDone := c.Stop()
	graceCtx, cancel := context.WithTimeout(context.Background(), wc.ShutdownGracePeriod)
	defer cancel()
	if err := orch.Stop(graceCtx); err != nil {
		logger.Warn("cycle interrupted during shutdown", slog.Any("error", err))
	}
	select {
	case <-jobsDone.Done():
	case <-graceCtx.Done():
	}
	logger.Info("worker stopped")
	return exitOK
}

// runScheduledCycle runs on the cron goroutine. The cycle does not inherit the
// signal context; shutdown goes through Orchestrator.Stop and its grace period.
func runScheduledCycle(orch *orchestrator.Orchestrator, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := runCycle(ctx, orch)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrCycleInProgress):
		// already logged and counted by the orchestrator
	case errors.Is(err, orchestrator.ErrStopped):
		logger.Info("trigger ignored, worker is stopping")
	default:
		logger.Error("cycle failed to start", slog.Any("error", err))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
