// Package fetcher retrieves daily health data from the Oura Ring API v2.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/observability/metrics"
	"health-assistant/internal/observability/tracing"
	"health-assistant/internal/resilience/circuitbreaker"
	"health-assistant/pkg/ratelimit"
)

// Oura API endpoints, relative to the base URL.
const (
	endpointDailySleep     = "daily_sleep"
	endpointDailyActivity  = "daily_activity"
	endpointDailyReadiness = "daily_readiness"
	endpointHeartRate      = "heartrate"
)

// ErrBodyTooLarge is returned when a response exceeds OuraConfig.MaxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// Limiter gates individual API requests. *ratelimit.TokenBucket satisfies it.
type Limiter interface {
	Acquire(ctx context.Context, n int) error
}

// OuraFetcher fetches one day of data for a single Oura account.
//
// Sleep, activity, readiness and heart rate are requested concurrently.
// Authentication and rate limit responses fail the whole fetch. Any other
// failure of a single endpoint leaves that section empty, unless every
// endpoint failed, in which case the fetch is reported as transient.
//
// Thread safety: OuraFetcher is safe for concurrent use.
type OuraFetcher struct {
	token   string
	config  OuraConfig
	client  *http.Client
	limiter Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// OuraOption configures an OuraFetcher.
type OuraOption func(*OuraFetcher)

// WithLimiter replaces the per-token request limiter.
func WithLimiter(l Limiter) OuraOption {
	return func(f *OuraFetcher) { f.limiter = l }
}

// WithCircuitBreaker shares a breaker across fetchers. Without one, each
// fetcher gets its own breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) OuraOption {
	return func(f *OuraFetcher) { f.breaker = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OuraOption {
	return func(f *OuraFetcher) { f.logger = l }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OuraOption {
	return func(f *OuraFetcher) { f.client = c }
}

// NewOuraFetcher creates a fetcher for the account identified by token.
func NewOuraFetcher(token string, config OuraConfig, opts ...OuraOption) (*OuraFetcher, error) {
	if token == "" {
		return nil, fmt.Errorf("oura access token is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid oura config: %w", err)
	}

	f := &OuraFetcher{
		token:  token,
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: tracing.NewTransport("oura", metrics.NewTransport("oura", nil)),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.limiter == nil {
		bucket, err := ratelimit.NewTokenBucket(ratelimit.PerWindow("oura-requests", config.RequestsPerMinute, time.Minute))
		if err != nil {
			return nil, err
		}
		f.limiter = bucket
	}
	if f.breaker == nil {
		f.breaker = NewOuraCircuitBreaker(nil)
	}
	return f, nil
}

// NewOuraCircuitBreaker builds a breaker for the Oura API. Authentication and
// rate limit failures are caller-specific and do not count against the
// provider. onStateChange may be nil.
func NewOuraCircuitBreaker(onStateChange func(name string, from, to gobreaker.State)) *circuitbreaker.CircuitBreaker {
	cfg := circuitbreaker.OuraAPIConfig()
	cfg.IsSuccessful = ouraBreakerSuccess
	cfg.OnStateChange = onStateChange
	return circuitbreaker.New(cfg)
}

// ouraBreakerSuccess counts transient fetch failures against the provider,
// including client timeouts wrapped as FetchTransient. Only the bare context
// errors doGet returns after the caller gave up are ignored.
func ouraBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var fetchErr *entity.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind != entity.FetchTransient
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type ouraCollection struct {
	Data []map[string]any `json:"data"`
}

type heartRateSample struct {
	BPM int `json:"bpm"`
}

type heartRateCollection struct {
	Data []heartRateSample `json:"data"`
}

// FetchDailyData fetches all sections for date.
func (f *OuraFetcher) FetchDailyData(ctx context.Context, date time.Time) (*entity.HealthRecord, error) {
	day := date.Format(entity.DateLayout)
	ctx, span := tracing.StartSpan(ctx, "oura.fetch_daily_data", attribute.String("date", day))
	defer span.End()

	f.logger.Info("fetching Oura data", slog.String("date", day))

	record := &entity.HealthRecord{Date: date}
	var failures [4]error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record.Sleep, err = f.fetchFirst(gctx, endpointDailySleep, day)
		return f.keepSection(endpointDailySleep, err, &failures[0])
	})
	g.Go(func() error {
		var err error
		record.Activity, err = f.fetchFirst(gctx, endpointDailyActivity, day)
		return f.keepSection(endpointDailyActivity, err, &failures[1])
	})
	g.Go(func() error {
		var err error
		record.Readiness, err = f.fetchFirst(gctx, endpointDailyReadiness, day)
		return f.keepSection(endpointDailyReadiness, err, &failures[2])
	})
	g.Go(func() error {
		var err error
		record.HeartRate, err = f.fetchHeartRate(gctx, day)
		return f.keepSection(endpointHeartRate, err, &failures[3])
	})

	if err := g.Wait(); err != nil {
		tracing.EndWithError(span, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if failures[0] != nil && failures[1] != nil && failures[2] != nil && failures[3] != nil {
		err := entity.NewFetchError(entity.FetchTransient,
			fmt.Errorf("all Oura endpoints failed: %w", errors.Join(failures[:]...)))
		tracing.EndWithError(span, err)
		return nil, err
	}

	f.logger.Info("fetched Oura data",
		slog.String("date", day),
		slog.Bool("sleep", len(record.Sleep) > 0),
		slog.Bool("activity", len(record.Activity) > 0),
		slog.Bool("readiness", len(record.Readiness) > 0),
		slog.Bool("heart_rate", record.HeartRate != nil))
	return record, nil
}

// keepSection decides whether a section failure aborts the fetch.
// Auth and rate limit failures are returned; anything else is logged,
// remembered in slot and swallowed.
func (f *OuraFetcher) keepSection(endpoint string, err error, slot *error) error {
	if err == nil {
		return nil
	}
	var fetchErr *entity.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Kind != entity.FetchTransient {
			return err
		}
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		*slot = err
		return nil
	}
	f.logger.Warn("failed to fetch Oura section, leaving it empty",
		slog.String("endpoint", endpoint),
		slog.Any("error", err))
	*slot = err
	return nil
}

func (f *OuraFetcher) fetchFirst(ctx context.Context, endpoint, day string) (map[string]any, error) {
	var collection ouraCollection
	if err := f.get(ctx, endpoint, day, &collection); err != nil {
		return nil, err
	}
	if len(collection.Data) == 0 {
		return nil, nil
	}
	return collection.Data[0], nil
}

func (f *OuraFetcher) fetchHeartRate(ctx context.Context, day string) (*entity.HeartRateSummary, error) {
	var collection heartRateCollection
	if err := f.get(ctx, endpointHeartRate, day, &collection); err != nil {
		return nil, err
	}
	return aggregateHeartRate(collection.Data), nil
}

// aggregateHeartRate summarizes samples, ignoring zero readings.
// It returns nil when there is nothing to summarize.
func aggregateHeartRate(samples []heartRateSample) *entity.HeartRateSummary {
	var summary entity.HeartRateSummary
	total := 0
	for _, s := range samples {
		if s.BPM <= 0 {
			continue
		}
		if summary.Samples == 0 || s.BPM < summary.Min {
			summary.Min = s.BPM
		}
		if s.BPM > summary.Max {
			summary.Max = s.BPM
		}
		total += s.BPM
		summary.Samples++
	}
	if summary.Samples == 0 {
		return nil
	}
	summary.Avg = float64(total) / float64(summary.Samples)
	return &summary
}

// get performs one rate limited, circuit broken GET and decodes the JSON body into out.
func (f *OuraFetcher) get(ctx context.Context, endpoint, day string, out any) error {
	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return err
	}

	start := time.Now()
	var status int
	_, err := f.breaker.Execute(func() (interface{}, error) {
		var err error
		status, err = f.doGet(ctx, endpoint, day, out)
		return nil, err
	})
	recordRequest(endpoint, status, err, time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return entity.NewFetchError(entity.FetchTransient, fmt.Errorf("oura %s: %w", endpoint, err))
	}
	return err
}

// doGet returns the HTTP status code alongside any error for metrics.
func (f *OuraFetcher) doGet(ctx context.Context, endpoint, day string, out any) (int, error) {
	u := strings.TrimRight(f.config.BaseURL, "/") + "/" + endpoint + "?" + url.Values{
		"start_date": {day},
		"end_date":   {day},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return 0, entity.NewFetchError(entity.FetchTransient, fmt.Errorf("oura %s: %w", endpoint, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return resp.StatusCode, entity.NewFetchError(entity.FetchTransient, fmt.Errorf("read oura %s: %w", endpoint, err))
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return resp.StatusCode, fmt.Errorf("oura %s: %w: limit %d bytes", endpoint, ErrBodyTooLarge, f.config.MaxBodySize)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, statusError(endpoint, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode oura %s: %w", endpoint, err)
	}
	return resp.StatusCode, nil
}

// statusError maps a non-200 response onto a FetchError.
//
//   - 401, 403: auth (token revoked or expired)
//   - 429: rate limited
//   - 5xx: transient
//   - other 4xx: transient, so the section is left empty
func statusError(endpoint string, status int, body []byte) *entity.FetchError {
	detail := string(body)
	if len(detail) > 256 {
		detail = detail[:256] + "..."
	}
	cause := fmt.Errorf("oura %s returned HTTP %d: %s", endpoint, status, detail)

	var kind entity.FetchErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = entity.FetchAuth
	case status == http.StatusTooManyRequests:
		kind = entity.FetchRateLimited
	default:
		kind = entity.FetchTransient
	}
	return &entity.FetchError{Kind: kind, StatusCode: status, Err: cause}
}
