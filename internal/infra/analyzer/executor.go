package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/observability/metrics"
	"health-assistant/internal/observability/tracing"
	"health-assistant/internal/resilience/circuitbreaker"
	"health-assistant/internal/resilience/retry"
	"health-assistant/internal/utils/text"
)

// completion is one provider answer.
type completion struct {
	text     string
	filtered bool
}

// completeFunc performs a single provider call.
type completeFunc func(ctx context.Context, system, prompt string) (completion, error)

// attemptError is a classified provider failure. retry decides whether the
// executor tries again within the same Analyze call.
type attemptError struct {
	err   *entity.AnalysisError
	retry bool
}

func (e *attemptError) Error() string { return e.err.Error() }

func (e *attemptError) Unwrap() error { return e.err }

func retryable(kind entity.AnalysisErrorKind, err error) *attemptError {
	return &attemptError{err: entity.NewAnalysisError(kind, err), retry: true}
}

func fatal(kind entity.AnalysisErrorKind, err error) *attemptError {
	return &attemptError{err: entity.NewAnalysisError(kind, err), retry: false}
}

// statusAttempt classifies a plain HTTP status from any provider.
// The status stays reachable through errors.As as a *retry.HTTPError.
func statusAttempt(status int, err error) *attemptError {
	httpErr := retry.NewHTTPError(status, err)
	if retry.IsRetryableStatus(status) {
		return retryable(entity.AnalysisTransient, httpErr)
	}
	return fatal(entity.AnalysisTransient, httpErr)
}

// Option configures an LLM analyzer.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    MetricsRecorder
	breaker    *circuitbreaker.CircuitBreaker
	sleep      retry.Sleeper
	httpClient *http.Client
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics overrides the Prometheus recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithCircuitBreaker overrides the provider circuit breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

// WithSleeper overrides the backoff sleep between retries.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func buildOptions(provider string, cfg Config, opts []Option, breakerCfg circuitbreaker.Config) options {
	o := options{
		logger:  slog.Default(),
		metrics: NewPrometheusMetrics(),
		sleep:   retry.SleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.breaker == nil {
		breakerCfg.IsSuccessful = breakerSuccess
		o.breaker = circuitbreaker.New(breakerCfg)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   cfg.Timeout + 5*time.Second,
			Transport: tracing.NewTransport(provider, metrics.NewTransport(provider, nil)),
		}
	}
	o.logger = o.logger.With(slog.String("analyzer", provider))
	return o
}

// breakerSuccess keeps caller-side failures from tripping the breaker.
// A classified transient failure counts even when it wraps a deadline.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ae *entity.AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind != entity.AnalysisTransient
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// executor runs a completeFunc under retry, circuit breaker, timeout and metrics.
type executor struct {
	provider string
	cfg      Config
	complete completeFunc
	classify func(error) *attemptError
	options
}

func (e *executor) analyze(ctx context.Context, record *entity.HealthRecord) (summary string, err error) {
	ctx, span := tracing.StartSpan(ctx, "analyzer.analyze",
		attribute.String("analyzer.provider", e.provider),
		attribute.String("health.date", record.DateString()))
	defer func() { tracing.EndWithError(span, err) }()

	prompt := BuildPrompt(record)
	start := time.Now()

	e.logger.DebugContext(ctx, "starting analysis",
		slog.String("date", record.DateString()),
		slog.Int("prompt_length", text.CountRunes(prompt)))

	summary, attempts, err := retry.Do(ctx, e.cfg.Policy, classifyAttempt,
		func(ctx context.Context) (string, error) { return e.attempt(ctx, prompt) },
		retry.WithName("analyze."+e.provider),
		retry.WithLogger(e.logger),
		retry.WithSleeper(e.sleep))

	duration := time.Since(start)
	e.metrics.RecordDuration(e.provider, duration)

	if err != nil {
		err = e.finalError(ctx, err, attempts)
		e.metrics.RecordResult(e.provider, string(entity.KindOf(err)))
		e.logger.WarnContext(ctx, "analysis failed",
			slog.Int("attempts", attempts),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return "", err
	}

	summary = e.bound(ctx, summary)
	e.metrics.RecordResult(e.provider, "success")
	e.metrics.RecordLength(e.provider, text.CountRunes(summary))
	e.logger.InfoContext(ctx, "analysis completed",
		slog.Int("attempts", attempts),
		slog.Int("summary_length", text.CountRunes(summary)),
		slog.Duration("duration", duration))
	return summary, nil
}

// attempt performs one provider call with its own timeout.
func (e *executor) attempt(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := circuitbreaker.Call(e.breaker, func() (string, error) {
		c, err := e.complete(callCtx, SystemPrompt, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if callCtx.Err() != nil {
				return "", retryable(entity.AnalysisTransient,
					fmt.Errorf("%s request timed out after %s", e.provider, e.cfg.Timeout))
			}
			return "", e.classify(err)
		}
		if c.filtered {
			return "", fatal(entity.AnalysisContentFiltered,
				fmt.Errorf("%s response was blocked by the content filter", e.provider))
		}
		if strings.TrimSpace(c.text) == "" {
			return "", retryable(entity.AnalysisTransient, ErrEmptySummary)
		}
		return c.text, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fatal(entity.AnalysisTransient,
			fmt.Errorf("%s unavailable: circuit breaker %s: %w", e.provider, e.breaker.State(), err))
	}
	return out, err
}

// finalError unwraps the retry result into an *entity.AnalysisError, or a
// context error when the caller gave up.
func (e *executor) finalError(ctx context.Context, err error, attempts int) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s analysis canceled after %d attempt(s): %w", e.provider, attempts, ctx.Err())
	}
	var ae *entity.AnalysisError
	if errors.As(err, &ae) {
		return entity.NewAnalysisError(ae.Kind,
			fmt.Errorf("%s failed after %d attempt(s): %w", e.provider, attempts, ae.Err))
	}
	return entity.NewAnalysisError(entity.AnalysisTransient, fmt.Errorf("%s: %w", e.provider, err))
}

// bound cuts summary to MaxSummaryRunes, preferring line and word boundaries.
func (e *executor) bound(ctx context.Context, summary string) string {
	summary = strings.TrimSpace(summary)
	if text.CountRunes(summary) <= e.cfg.MaxSummaryRunes {
		return summary
	}
	e.metrics.RecordTruncated(e.provider)
	e.logger.WarnContext(ctx, "summary exceeds maximum length, truncating",
		slog.Int("summary_length", text.CountRunes(summary)),
		slog.Int("limit", e.cfg.MaxSummaryRunes))
	return text.SplitMessage(summary, e.cfg.MaxSummaryRunes)[0]
}

func classifyAttempt(err error) retry.Classification {
	var ae *attemptError
	if errors.As(err, &ae) {
		if ae.retry {
			return retry.Retryable
		}
		return retry.Fatal
	}
	return retry.ClassifyRetryable(err)
}
