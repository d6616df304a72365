package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/observability/logging"
	"health-assistant/internal/observability/tracing"
	"health-assistant/internal/resilience/retry"
)

// DefaultNoticeTimeout bounds the best-effort failure notice.
const DefaultNoticeTimeout = 15 * time.Second

// errEmptySummary is returned when an analyzer succeeds with no text.
var errEmptySummary = errors.New("analyzer returned an empty summary")

// Metrics records per-stage pipeline activity.
type Metrics interface {
	ObserveStage(stage entity.Stage, status entity.OutcomeStatus, duration time.Duration)
	ObserveAttempts(stage entity.Stage, attempts int)
	RecordFailureNotice(sent bool)
}

// Config holds the pipeline's shared collaborators and policies.
// Zero values fall back to defaults: no limiters, FetchPolicy, SendPolicy,
// real sleeps, slog.Default and no metrics.
type Config struct {
	// FetchLimiter and SendLimiter are shared by every tenant.
	FetchLimiter Limiter
	SendLimiter  Limiter

	FetchPolicy retry.Policy
	SendPolicy  retry.Policy

	// Sleeper overrides backoff sleeps, mainly for tests.
	Sleeper retry.Sleeper

	NoticeTimeout time.Duration

	Logger  *slog.Logger
	Metrics Metrics

	// Now is used to measure durations.
	Now func() time.Time
}

// Pipeline executes the per-tenant stages. It holds no per-run state and is
// safe to share between concurrently running tenants.
type Pipeline struct {
	analyzer Analyzer
	cfg      Config
}

// New creates a Pipeline around the shared analyzer.
func New(analyzer Analyzer, cfg Config) *Pipeline {
	if cfg.FetchPolicy.MaxAttempts == 0 {
		cfg.FetchPolicy = retry.FetchPolicy()
	}
	if cfg.SendPolicy.MaxAttempts == 0 {
		cfg.SendPolicy = retry.SendPolicy()
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = retry.SleepContext
	}
	if cfg.NoticeTimeout <= 0 {
		cfg.NoticeTimeout = DefaultNoticeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{analyzer: analyzer, cfg: cfg}
}

// Execute runs fetch, analyze and notify for tenant and targetDate.
// It always returns an outcome; a failure stops the remaining stages.
func (p *Pipeline) Execute(ctx context.Context, tenant Tenant, targetDate time.Time) entity.TenantOutcome {
	start := p.cfg.Now()
	logger := logging.WithTenant(logging.FromContext(ctx, p.cfg.Logger), tenant.ID)
	ctx = logging.WithLogger(ctx, logger)
	var attempts entity.StageAttempts

	ctx, span := tracing.StartSpan(ctx, "pipeline.execute",
		attribute.String("tenant.id", tenant.ID),
		attribute.String("target_date", targetDate.Format(entity.DateLayout)),
	)
	defer span.End()

	logger.Info("health check started",
		slog.String("tenant_name", tenant.DisplayName()),
		slog.String("target_date", targetDate.Format(entity.DateLayout)))

	record, n, err := p.fetch(ctx, tenant, targetDate)
	attempts.Fetch = n
	if err != nil {
		tracing.EndWithError(span, err)
		return p.fail(ctx, logger, tenant, targetDate, entity.StageFetch, err, attempts, start)
	}
	if record.IsEmpty() {
		logger.Warn("no health data recorded for target date",
			slog.String("target_date", targetDate.Format(entity.DateLayout)))
	}

	summary, err := p.analyze(ctx, record)
	attempts.Analyze = 1
	if err != nil {
		tracing.EndWithError(span, err)
		return p.fail(ctx, logger, tenant, targetDate, entity.StageAnalyze, err, attempts, start)
	}

	n, err = p.notify(ctx, tenant, SummaryMessage(targetDate, summary))
	attempts.Notify = n
	if err != nil {
		tracing.EndWithError(span, err)
		return p.fail(ctx, logger, tenant, targetDate, entity.StageNotify, err, attempts, start)
	}

	duration := p.cfg.Now().Sub(start)
	logger.Info("health check completed",
		slog.Int("fetch_attempts", attempts.Fetch),
		slog.Int("notify_attempts", attempts.Notify),
		slog.Duration("duration", duration))
	return entity.NewSuccessOutcome(tenant.ID, attempts, duration)
}

func (p *Pipeline) fetch(ctx context.Context, tenant Tenant, targetDate time.Time) (*entity.HealthRecord, int, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.fetch")
	defer span.End()
	stageStart := p.cfg.Now()

	if err := acquire(ctx, p.cfg.FetchLimiter); err != nil {
		p.observe(entity.StageFetch, err, stageStart, 0)
		return nil, 0, err
	}

	record, n, err := retry.Do(ctx, p.cfg.FetchPolicy, ClassifyFetchError,
		func(ctx context.Context) (*entity.HealthRecord, error) {
			return tenant.Fetcher.FetchDailyData(ctx, targetDate)
		},
		retry.WithSleeper(p.cfg.Sleeper),
		retry.WithLogger(logging.FromContext(ctx, p.cfg.Logger)),
		retry.WithName("fetch"),
	)
	if err == nil && record == nil {
		record = &entity.HealthRecord{Date: targetDate}
	}

	span.SetAttributes(attribute.Int("attempts", n))
	tracing.EndWithError(span, err)
	p.observe(entity.StageFetch, err, stageStart, n)
	return record, n, err
}

func (p *Pipeline) analyze(ctx context.Context, record *entity.HealthRecord) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.analyze")
	defer span.End()
	stageStart := p.cfg.Now()

	summary, err := p.analyzer.Analyze(ctx, record)
	if err == nil && strings.TrimSpace(summary) == "" {
		err = entity.NewAnalysisError(entity.AnalysisTransient, errEmptySummary)
	}

	tracing.EndWithError(span, err)
	p.observe(entity.StageAnalyze, err, stageStart, 1)
	return summary, err
}

func (p *Pipeline) notify(ctx context.Context, tenant Tenant, msg entity.Message) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.notify")
	defer span.End()
	stageStart := p.cfg.Now()

	if err := acquire(ctx, p.cfg.SendLimiter); err != nil {
		p.observe(entity.StageNotify, err, stageStart, 0)
		return 0, err
	}

	_, n, err := retry.Do(ctx, p.cfg.SendPolicy, ClassifyDeliveryError,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, tenant.Notifier.Send(ctx, msg)
		},
		retry.WithSleeper(p.cfg.Sleeper),
		retry.WithLogger(logging.FromContext(ctx, p.cfg.Logger)),
		retry.WithName("notify"),
	)

	span.SetAttributes(attribute.Int("attempts", n))
	tracing.EndWithError(span, err)
	p.observe(entity.StageNotify, err, stageStart, n)
	return n, err
}

// fail logs the failure and, when fetch or analysis failed, sends one notice.
// The run counts as canceled only when ctx itself is done.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, tenant Tenant, targetDate time.Time,
	stage entity.Stage, err error, attempts entity.StageAttempts, start time.Time) entity.TenantOutcome {
	newOutcome := entity.NewFailedOutcome
	if ctx.Err() != nil {
		newOutcome = entity.NewCanceledOutcome
	}
	outcome := newOutcome(tenant.ID, stage, err, attempts, p.cfg.Now().Sub(start))

	logger.Error("health check failed",
		slog.String("stage", string(stage)),
		slog.String("error_kind", string(outcome.ErrorKind)),
		slog.String("error", logging.SanitizeError(err)),
		slog.Int("fetch_attempts", attempts.Fetch),
		slog.Int("notify_attempts", attempts.Notify))

	if stage == entity.StageNotify || outcome.ErrorKind == entity.ErrorKindCanceled {
		return outcome
	}
	p.sendFailureNotice(ctx, logger, tenant, targetDate, outcome.ErrorKind)
	return outcome
}

// sendFailureNotice is not retried or rate limited, and its error is only logged.
func (p *Pipeline) sendFailureNotice(ctx context.Context, logger *slog.Logger, tenant Tenant, targetDate time.Time, kind entity.ErrorKind) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.NoticeTimeout)
	defer cancel()

	if err := tenant.Notifier.Send(ctx, FailureNotice(tenant, targetDate, kind)); err != nil {
		p.cfg.Metrics.RecordFailureNotice(false)
		logger.Error("failed to send failure notice",
			slog.String("error", logging.SanitizeError(err)))
		return
	}
	p.cfg.Metrics.RecordFailureNotice(true)
	logger.Info("failure notice sent", slog.String("error_kind", string(kind)))
}

func (p *Pipeline) observe(stage entity.Stage, err error, start time.Time, attempts int) {
	status := entity.StatusSuccess
	if err != nil {
		status = entity.StatusFailed
	}
	p.cfg.Metrics.ObserveStage(stage, status, p.cfg.Now().Sub(start))
	if attempts > 0 {
		p.cfg.Metrics.ObserveAttempts(stage, attempts)
	}
}

func acquire(ctx context.Context, limiter Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Acquire(ctx, 1)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStage(entity.Stage, entity.OutcomeStatus, time.Duration) {}
func (noopMetrics) ObserveAttempts(entity.Stage, int)                              {}
func (noopMetrics) RecordFailureNotice(bool)                                       {}
