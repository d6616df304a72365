// Package retry provides retry logic with exponential backoff.
// Failures are classified as retryable or fatal; only retryable failures are
// attempted again, and backoff sleeps honor context cancellation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrRetriesExhausted is matched by errors.Is when every attempt failed with a
// retryable error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetriesExhaustedError wraps the last error once MaxAttempts is reached.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

// Unwrap returns the last error.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports whether target is ErrRetriesExhausted.
func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// Classification tells the executor whether a failure may be retried.
type Classification int

const (
	// Retryable failures are attempted again while attempts remain.
	Retryable Classification = iota
	// Fatal failures are returned immediately.
	Fatal
)

// String returns the classification name.
func (c Classification) String() string {
	if c == Fatal {
		return "fatal"
	}
	return "retryable"
}

// Classifier maps an error to a Classification.
type Classifier func(error) Classification

// Policy holds the backoff configuration for one kind of operation.
type Policy struct {
	// MaxAttempts is the maximum number of attempts, including the first one.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the multiplier for exponential backoff.
	Multiplier float64

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0).
	JitterFraction float64
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative, got %s", p.BaseDelay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative, got %s", p.MaxDelay)
	}
	if p.Multiplier <= 1 {
		return fmt.Errorf("multiplier must be greater than 1, got %v", p.Multiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return fmt.Errorf("jitter fraction must be between 0 and 1, got %v", p.JitterFraction)
	}
	return nil
}

// FetchPolicy returns the policy for health data fetches.
func FetchPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// SendPolicy returns the policy for notification delivery.
// Kept short so a slow messaging API does not hold a pool slot for long.
func SendPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// AnalyzePolicy returns the policy used inside LLM analyzers.
// Moderate retry due to cost considerations.
func AnalyzePolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Delay returns the backoff before attempt+1:
// min(BaseDelay × Multiplier^(attempt-1), MaxDelay). Jitter is not included.
func Delay(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper. It only suspends the calling goroutine.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type options struct {
	sleep  Sleeper
	logger *slog.Logger
	name   string
}

// Option configures Do.
type Option func(*options)

// WithSleeper overrides the sleep function.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithLogger sets the logger used for retry attempts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName labels log lines with the operation name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Do executes op with retry logic and exponential backoff.
//
// It returns the value of the first successful attempt and the number of
// attempts made. A Fatal classification returns that error unchanged. Once ctx
// is done the last error is returned without another attempt; an error that
// merely wraps context.DeadlineExceeded, such as an http.Client timeout, is
// left to classify. When every attempt fails with a Retryable error the result
// is a *RetriesExhaustedError wrapping the last one.
func Do[T any](ctx context.Context, p Policy, classify Classifier, op func(context.Context) (T, error), opts ...Option) (T, int, error) {
	o := options{sleep: SleepContext, logger: slog.Default(), name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	if err := p.Validate(); err != nil {
		return zero, 0, fmt.Errorf("invalid retry policy: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, fmt.Errorf("retry aborted: %w", err)
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				o.logger.InfoContext(ctx, "operation succeeded after retry",
					slog.String("operation", o.name),
					slog.Int("attempt", attempt))
			}
			return result, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, attempt, err
		}
		if classify(err) == Fatal {
			o.logger.WarnContext(ctx, "non-retryable error, aborting",
				slog.String("operation", o.name),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return zero, attempt, err
		}

		// Don't wait after last attempt
		if attempt == p.MaxAttempts {
			break
		}

		delay := addJitter(Delay(p, attempt), p.JitterFraction)
		o.logger.WarnContext(ctx, "operation failed, retrying",
			slog.String("operation", o.name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		if err := o.sleep(ctx, delay); err != nil {
			return zero, attempt, fmt.Errorf("retry aborted: %w", err)
		}
	}

	return zero, p.MaxAttempts, &RetriesExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}

// ClassifyRetryable is a Classifier backed by IsRetryable.
func ClassifyRetryable(err error) Classification {
	if IsRetryable(err) {
		return Retryable
	}
	return Fatal
}

// retryableError is implemented by domain errors that know their own retryability.
type retryableError interface {
	Retryable() bool
}

// IsRetryable determines if an error is worth retrying.
// Errors that know their own retryability win over the generic checks below.
// Bare context errors are not retryable; a client or dial timeout is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified retryableError
	if errors.As(err, &classified) {
		return classified.Retryable()
	}

	if errors.Is(err, context.Canceled) || err == context.DeadlineExceeded {
		return false
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// HTTP status codes
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsRetryableStatus(httpErr.StatusCode)
	}

	return false
}

// IsRetryableStatus reports whether an HTTP status code indicates a transient failure.
func IsRetryableStatus(code int) bool {
	switch {
	case code >= 500 && code < 600:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	}
	return false
}

// HTTPError represents an HTTP error with status code.
// Err is the client error that carried the status, if any.
type HTTPError struct {
	StatusCode int
	Message    string
	Err        error
}

// NewHTTPError records status for err, using err's text as the message.
func NewHTTPError(status int, err error) *HTTPError {
	e := &HTTPError{StatusCode: status, Message: http.StatusText(status), Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying client error.
func (e *HTTPError) Unwrap() error { return e.Err }

// addJitter adds random jitter to a duration to prevent thundering herd.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
