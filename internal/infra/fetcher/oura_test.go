package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/resilience/retry"
)

const testToken = "oura-test-token"

var testDate = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

// ouraStub serves canned responses per endpoint and records requests.
type ouraStub struct {
	t        *testing.T
	mu       sync.Mutex
	status   map[string]int
	bodies   map[string]string
	requests atomic.Int32
}

func newOuraStub(t *testing.T) *ouraStub {
	return &ouraStub{
		t:      t,
		status: map[string]int{},
		bodies: map[string]string{
			endpointDailySleep:     `{"data":[{"day":"2025-03-09","score":82,"contributors":{"deep_sleep":90,"rem_sleep":75}}],"next_token":null}`,
			endpointDailyActivity:  `{"data":[{"day":"2025-03-09","score":76,"steps":9120,"active_calories":410}]}`,
			endpointDailyReadiness: `{"data":[{"day":"2025-03-09","score":81,"temperature_deviation":-0.1}]}`,
			endpointHeartRate:      `{"data":[{"bpm":58,"source":"rest"},{"bpm":72,"source":"awake"},{"bpm":0,"source":"awake"},{"bpm":110,"source":"workout"}]}`,
		},
	}
}

func (s *ouraStub) set(endpoint string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[endpoint] = status
	s.bodies[endpoint] = body
}

func (s *ouraStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
		s.t.Errorf("unexpected Authorization header %q", got)
	}
	if got := r.URL.Query().Get("start_date"); got != "2025-03-09" {
		s.t.Errorf("unexpected start_date %q", got)
	}
	if got := r.URL.Query().Get("end_date"); got != "2025-03-09" {
		s.t.Errorf("unexpected end_date %q", got)
	}

	endpoint := strings.TrimPrefix(r.URL.Path, "/v2/usercollection/")

	s.mu.Lock()
	status, ok := s.status[endpoint]
	body, known := s.bodies[endpoint]
	s.mu.Unlock()

	if !known {
		http.NotFound(w, r)
		return
	}
	if !ok {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type countingLimiter struct{ calls atomic.Int32 }

func (l *countingLimiter) Acquire(ctx context.Context, n int) error {
	l.calls.Add(1)
	return ctx.Err()
}

func newTestFetcher(t *testing.T, stub *ouraStub, opts ...OuraOption) *OuraFetcher {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/v2/usercollection"
	cfg.Timeout = 5 * time.Second

	opts = append([]OuraOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	f, err := NewOuraFetcher(testToken, cfg, opts...)
	require.NoError(t, err)
	return f
}

func TestNewOuraFetcher_RequiresToken(t *testing.T) {
	_, err := NewOuraFetcher("", DefaultConfig())
	assert.Error(t, err)
}

func TestOuraFetcher_FetchDailyData_Success(t *testing.T) {
	// Arrange
	stub := newOuraStub(t)
	limiter := &countingLimiter{}
	f := newTestFetcher(t, stub, WithLimiter(limiter))

	// Act
	record, err := f.FetchDailyData(context.Background(), testDate)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, testDate, record.Date)
	assert.Equal(t, float64(82), record.Sleep["score"])
	assert.Equal(t, float64(9120), record.Activity["steps"])
	assert.Equal(t, float64(81), record.Readiness["score"])

	want := &entity.HeartRateSummary{Min: 58, Max: 110, Avg: 80, Samples: 3}
	if diff := cmp.Diff(want, record.HeartRate); diff != "" {
		t.Errorf("heart rate mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, int32(4), limiter.calls.Load(), "one limiter token per request")
	assert.Equal(t, int32(4), stub.requests.Load())
}

func TestOuraFetcher_FetchDailyData_NoData(t *testing.T) {
	stub := newOuraStub(t)
	for _, ep := range []string{endpointDailySleep, endpointDailyActivity, endpointDailyReadiness, endpointHeartRate} {
		stub.set(ep, http.StatusOK, `{"data":[]}`)
	}
	f := newTestFetcher(t, stub)

	record, err := f.FetchDailyData(context.Background(), testDate)

	require.NoError(t, err)
	assert.True(t, record.IsEmpty())
	assert.Nil(t, record.HeartRate)
}

func TestOuraFetcher_FetchDailyData_FatalStatuses(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		status   int
		wantKind entity.FetchErrorKind
	}{
		{name: "expired token", endpoint: endpointDailySleep, status: http.StatusUnauthorized, wantKind: entity.FetchAuth},
		{name: "missing scope", endpoint: endpointHeartRate, status: http.StatusForbidden, wantKind: entity.FetchAuth},
		{name: "rate limited", endpoint: endpointDailyReadiness, status: http.StatusTooManyRequests, wantKind: entity.FetchRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newOuraStub(t)
			stub.set(tt.endpoint, tt.status, `{"detail":"nope"}`)
			f := newTestFetcher(t, stub)

			record, err := f.FetchDailyData(context.Background(), testDate)

			assert.Nil(t, record)
			var fetchErr *entity.FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.wantKind, fetchErr.Kind)
			assert.Equal(t, tt.status, fetchErr.StatusCode)
			assert.False(t, fetchErr.Retryable())
		})
	}
}

func TestOuraFetcher_FetchDailyData_SectionFailureDegrades(t *testing.T) {
	stub := newOuraStub(t)
	stub.set(endpointDailyActivity, http.StatusInternalServerError, `oops`)
	stub.set(endpointHeartRate, http.StatusOK, `not json`)
	f := newTestFetcher(t, stub)

	record, err := f.FetchDailyData(context.Background(), testDate)

	require.NoError(t, err)
	assert.Empty(t, record.Activity)
	assert.Nil(t, record.HeartRate)
	assert.NotEmpty(t, record.Sleep)
	assert.NotEmpty(t, record.Readiness)
}

func TestOuraFetcher_FetchDailyData_AllSectionsFail(t *testing.T) {
	stub := newOuraStub(t)
	for _, ep := range []string{endpointDailySleep, endpointDailyActivity, endpointDailyReadiness, endpointHeartRate} {
		stub.set(ep, http.StatusBadGateway, `bad gateway`)
	}
	f := newTestFetcher(t, stub)

	_, err := f.FetchDailyData(context.Background(), testDate)

	var fetchErr *entity.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, entity.FetchTransient, fetchErr.Kind)
	assert.True(t, fetchErr.Retryable())
}

func TestOuraFetcher_FetchDailyData_CircuitOpens(t *testing.T) {
	stub := newOuraStub(t)
	for _, ep := range []string{endpointDailySleep, endpointDailyActivity, endpointDailyReadiness, endpointHeartRate} {
		stub.set(ep, http.StatusServiceUnavailable, `down`)
	}
	f := newTestFetcher(t, stub)

	_, err := f.FetchDailyData(context.Background(), testDate)
	require.Error(t, err)
	require.Equal(t, int32(4), stub.requests.Load())
	assert.True(t, f.breaker.IsOpen())

	_, err = f.FetchDailyData(context.Background(), testDate)

	var fetchErr *entity.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, entity.FetchTransient, fetchErr.Kind)
	assert.Equal(t, int32(4), stub.requests.Load(), "open circuit must not reach the API")
}

func TestOuraFetcher_AuthFailuresDoNotTripBreaker(t *testing.T) {
	stub := newOuraStub(t)
	for _, ep := range []string{endpointDailySleep, endpointDailyActivity, endpointDailyReadiness, endpointHeartRate} {
		stub.set(ep, http.StatusUnauthorized, `{}`)
	}
	f := newTestFetcher(t, stub)

	for i := 0; i < 3; i++ {
		_, err := f.FetchDailyData(context.Background(), testDate)
		require.Error(t, err)
	}

	assert.False(t, f.breaker.IsOpen())
}

func TestOuraFetcher_FetchDailyData_CanceledContext(t *testing.T) {
	stub := newOuraStub(t)
	f := newTestFetcher(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchDailyData(ctx, testDate)

	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Zero(t, stub.requests.Load())
}

func TestOuraFetcher_ClientTimeoutIsTransient(t *testing.T) {
	// Arrange
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(slow)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/v2/usercollection"
	cfg.Timeout = 50 * time.Millisecond
	f, err := NewOuraFetcher(testToken, cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	var sleeps []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}

	// Act
	_, attempts, err := retry.Do(context.Background(), policy, retry.ClassifyRetryable,
		func(ctx context.Context) (*entity.HealthRecord, error) {
			return f.FetchDailyData(ctx, testDate)
		}, retry.WithSleeper(sleeper))

	// Assert
	assert.Equal(t, 3, attempts, "client timeouts are retried")
	assert.Len(t, sleeps, 2)
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)

	var fetchErr *entity.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, entity.FetchTransient, fetchErr.Kind)
	assert.Equal(t, entity.ErrorKindFetchTransient, entity.KindOf(err))
}

func TestOuraBreakerSuccess(t *testing.T) {
	clientTimeout := fmt.Errorf("Get \"https://api.ouraring.com\": %w (Client.Timeout exceeded while awaiting headers)",
		context.DeadlineExceeded)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"transient", entity.NewFetchError(entity.FetchTransient, errors.New("502")), false},
		{"client timeout", entity.NewFetchError(entity.FetchTransient, clientTimeout), false},
		{"auth", entity.NewFetchError(entity.FetchAuth, errors.New("401")), true},
		{"rate limited", entity.NewFetchError(entity.FetchRateLimited, errors.New("429")), true},
		{"caller canceled", context.Canceled, true},
		{"unclassified", errors.New("decode failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ouraBreakerSuccess(tt.err))
		})
	}
}

func TestOuraFetcher_BodyLimit(t *testing.T) {
	stub := newOuraStub(t)
	big := fmt.Sprintf(`{"data":[{"note":%q}]}`, strings.Repeat("x", 4096))
	stub.set(endpointDailySleep, http.StatusOK, big)

	srv := httptest.NewServer(stub)
	defer srv.Close()
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/v2/usercollection"
	cfg.MaxBodySize = 2048
	f, err := NewOuraFetcher(testToken, cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	record, err := f.FetchDailyData(context.Background(), testDate)

	require.NoError(t, err)
	assert.Empty(t, record.Sleep, "oversized section is dropped")
	assert.NotEmpty(t, record.Activity)
}

func TestAggregateHeartRate(t *testing.T) {
	tests := []struct {
		name    string
		samples []heartRateSample
		want    *entity.HeartRateSummary
	}{
		{name: "no samples", samples: nil, want: nil},
		{name: "only zero readings", samples: []heartRateSample{{BPM: 0}, {BPM: 0}}, want: nil},
		{
			name:    "single sample",
			samples: []heartRateSample{{BPM: 61}},
			want:    &entity.HeartRateSummary{Min: 61, Max: 61, Avg: 61, Samples: 1},
		},
		{
			name:    "mixed",
			samples: []heartRateSample{{BPM: 50}, {BPM: 0}, {BPM: 70}, {BPM: 60}},
			want:    &entity.HeartRateSummary{Min: 50, Max: 70, Avg: 60, Samples: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aggregateHeartRate(tt.samples)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("aggregateHeartRate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
