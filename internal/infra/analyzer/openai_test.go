package analyzer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/infra/analyzer"
	"health-assistant/internal/resilience/circuitbreaker"
)

/* ───────── helpers ───────── */

type recordingMetrics struct {
	mu        sync.Mutex
	results   []string
	lengths   []int
	truncated int
}

func (m *recordingMetrics) RecordResult(_, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, status)
}

func (m *recordingMetrics) RecordDuration(string, time.Duration) {}

func (m *recordingMetrics) RecordLength(_ string, runes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lengths = append(m.lengths, runes)
}

func (m *recordingMetrics) RecordTruncated(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncated++
}

func noSleep(context.Context, time.Duration) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(metrics *recordingMetrics) []analyzer.Option {
	return []analyzer.Option{
		analyzer.WithLogger(discardLogger()),
		analyzer.WithMetrics(metrics),
		analyzer.WithSleeper(noSleep),
		analyzer.WithCircuitBreaker(circuitbreaker.New(circuitbreaker.DefaultConfig("test"))),
	}
}

func testRecord() *entity.HealthRecord {
	return &entity.HealthRecord{
		Date: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Sleep: map[string]any{
			"score":                float64(82),
			"total_sleep_duration": float64(27000),
		},
		Activity:  map[string]any{"score": float64(75), "steps": float64(9876)},
		Readiness: map[string]any{"score": float64(88)},
		HeartRate: &entity.HeartRateSummary{Min: 52, Max: 131, Avg: 71.4, Samples: 288},
	}
}

// chatResponse renders a Chat Completions response body.
func chatResponse(content, finishReason string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1741500000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finishReason,
		}},
	})
	return string(body)
}

type cannedResponse struct {
	status int
	body   string
}

// openAIStub replays responses in order, repeating the last one.
type openAIStub struct {
	*httptest.Server
	mu        sync.Mutex
	responses []cannedResponse
	requests  atomic.Int32
	lastPath  string
	lastQuery string
	lastAuth  string
	lastKey   string
	lastBody  map[string]any
}

func newOpenAIStub(t *testing.T, responses ...cannedResponse) *openAIStub {
	t.Helper()
	s := &openAIStub{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.requests.Add(1))

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.lastPath = r.URL.Path
		s.lastQuery = r.URL.Query().Get("api-version")
		s.lastAuth = r.Header.Get("Authorization")
		s.lastKey = r.Header.Get("api-key")
		s.lastBody = body
		resp := s.responses[min(n, len(s.responses))-1]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestOpenAI(t *testing.T, server *openAIStub, metrics *recordingMetrics, mutate ...func(*analyzer.Config)) *analyzer.OpenAI {
	t.Helper()
	cfg := analyzer.Config{
		Provider: analyzer.ProviderOpenAI,
		Endpoint: server.URL,
		APIKey:   "sk-test",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := analyzer.NewOpenAI(cfg, testOptions(metrics)...)
	require.NoError(t, err)
	return a
}

/* ───────── OpenAI ───────── */

func TestOpenAI_Analyze_Success(t *testing.T) {
	// Arrange
	server := newOpenAIStub(t, cannedResponse{http.StatusOK, chatResponse("  <b>Overall Health Summary</b>\nGood day.  ", "stop")})
	metrics := &recordingMetrics{}
	a := newTestOpenAI(t, server, metrics)

	// Act
	summary, err := a.Analyze(context.Background(), testRecord())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "<b>Overall Health Summary</b>\nGood day.", summary)
	assert.Equal(t, int32(1), server.requests.Load())
	assert.Equal(t, "/chat/completions", server.lastPath)
	assert.Equal(t, "Bearer sk-test", server.lastAuth)

	assert.Equal(t, analyzer.DefaultOpenAIModel, server.lastBody["model"])
	assert.InDelta(t, 0.7, server.lastBody["temperature"], 1e-6)
	assert.Equal(t, float64(1500), server.lastBody["max_tokens"])

	messages, ok := server.lastBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	user := messages[1].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, analyzer.SystemPrompt, system["content"])
	assert.Contains(t, user["content"], "Please analyze my health data for 2025-03-09")
	assert.Contains(t, user["content"], "- Sleep Score: 82/100")
	assert.Contains(t, user["content"], "- Steps: 9,876")

	assert.Equal(t, []string{"success"}, metrics.results)
	assert.Equal(t, []int{len("<b>Overall Health Summary</b>\nGood day.")}, metrics.lengths)
}

func TestOpenAI_Analyze_Azure(t *testing.T) {
	// Arrange
	server := newOpenAIStub(t, cannedResponse{http.StatusOK, chatResponse("summary", "stop")})
	a := newTestOpenAI(t, server, &recordingMetrics{}, func(c *analyzer.Config) {
		c.Provider = analyzer.ProviderAzureOpenAI
		c.Deployment = "health-gpt4"
	})

	// Act
	summary, err := a.Analyze(context.Background(), testRecord())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "summary", summary)
	assert.Equal(t, "/openai/deployments/health-gpt4/chat/completions", server.lastPath)
	assert.Equal(t, analyzer.DefaultAzureAPIVersion, server.lastQuery)
	assert.Equal(t, "sk-test", server.lastKey)
	assert.Equal(t, "health-gpt4", server.lastBody["model"])
}

func TestOpenAI_Analyze_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantKind     entity.AnalysisErrorKind
		wantRequests int32
	}{
		{
			name:         "insufficient quota",
			status:       http.StatusTooManyRequests,
			body:         `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			wantKind:     entity.AnalysisQuotaExceeded,
			wantRequests: 1,
		},
		{
			name:         "azure content filter",
			status:       http.StatusBadRequest,
			body:         `{"error":{"message":"The response was filtered","code":"content_filter","status":400,"innererror":{"code":"ResponsibleAIPolicyViolation"}}}`,
			wantKind:     entity.AnalysisContentFiltered,
			wantRequests: 1,
		},
		{
			name:         "rate limited is retried",
			status:       http.StatusTooManyRequests,
			body:         `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			wantKind:     entity.AnalysisTransient,
			wantRequests: 3,
		},
		{
			name:         "server error is retried",
			status:       http.StatusInternalServerError,
			body:         `{"error":{"message":"Internal server error","type":"server_error"}}`,
			wantKind:     entity.AnalysisTransient,
			wantRequests: 3,
		},
		{
			name:         "unauthorized is not retried",
			status:       http.StatusUnauthorized,
			body:         `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantKind:     entity.AnalysisTransient,
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			server := newOpenAIStub(t, cannedResponse{tt.status, tt.body})
			metrics := &recordingMetrics{}
			a := newTestOpenAI(t, server, metrics)

			// Act
			_, err := a.Analyze(context.Background(), testRecord())

			// Assert
			var ae *entity.AnalysisError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantKind, ae.Kind)
			assert.Equal(t, tt.wantRequests, server.requests.Load())
			assert.Equal(t, []string{string(ae.OutcomeKind())}, metrics.results)
			assert.NotContains(t, err.Error(), "sk-test")
		})
	}
}

func TestOpenAI_Analyze_FinishReasonContentFilter(t *testing.T) {
	server := newOpenAIStub(t, cannedResponse{http.StatusOK, chatResponse("", "content_filter")})
	a := newTestOpenAI(t, server, &recordingMetrics{})

	_, err := a.Analyze(context.Background(), testRecord())

	var ae *entity.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, entity.AnalysisContentFiltered, ae.Kind)
	assert.Equal(t, int32(1), server.requests.Load())
}

func TestOpenAI_Analyze_EmptySummaryIsRetried(t *testing.T) {
	server := newOpenAIStub(t,
		cannedResponse{http.StatusOK, chatResponse("   ", "stop")},
		cannedResponse{http.StatusOK, chatResponse("second try", "stop")},
	)
	a := newTestOpenAI(t, server, &recordingMetrics{})

	summary, err := a.Analyze(context.Background(), testRecord())

	require.NoError(t, err)
	assert.Equal(t, "second try", summary)
	assert.Equal(t, int32(2), server.requests.Load())
}

func TestOpenAI_Analyze_EmptySummaryExhausted(t *testing.T) {
	server := newOpenAIStub(t, cannedResponse{http.StatusOK, chatResponse("", "stop")})
	a := newTestOpenAI(t, server, &recordingMetrics{})

	_, err := a.Analyze(context.Background(), testRecord())

	var ae *entity.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, entity.AnalysisTransient, ae.Kind)
	assert.ErrorIs(t, err, analyzer.ErrEmptySummary)
}

func TestOpenAI_Analyze_TruncatesLongSummary(t *testing.T) {
	// Arrange
	long := strings.Repeat("line of health advice\n", 20)
	server := newOpenAIStub(t, cannedResponse{http.StatusOK, chatResponse(long, "stop")})
	metrics := &recordingMetrics{}
	a := newTestOpenAI(t, server, metrics, func(c *analyzer.Config) { c.MaxSummaryRunes = 100 })

	// Act
	summary, err := a.Analyze(context.Background(), testRecord())

	// Assert
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(summary)), 100)
	assert.True(t, strings.HasPrefix(summary, "line of health advice\n"))
	assert.Equal(t, 1, metrics.truncated)
}

func TestOpenAI_Analyze_CanceledContext(t *testing.T) {
	server := newOpenAIStub(t, cannedResponse{http.StatusOK, chatResponse("summary", "stop")})
	a := newTestOpenAI(t, server, &recordingMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, testRecord())

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, entity.ErrorKindCanceled, entity.KindOf(err))
	assert.Equal(t, int32(0), server.requests.Load())
}

func TestOpenAI_Analyze_CircuitBreakerOpen(t *testing.T) {
	// Arrange
	server := newOpenAIStub(t, cannedResponse{http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`})
	cfg := circuitbreaker.DefaultConfig("test-open")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	opts := append(testOptions(&recordingMetrics{}), analyzer.WithCircuitBreaker(circuitbreaker.New(cfg)))
	a, err := analyzer.NewOpenAI(analyzer.Config{Endpoint: server.URL, APIKey: "sk-test"}, opts...)
	require.NoError(t, err)

	// Act: three failed attempts trip the breaker
	_, err = a.Analyze(context.Background(), testRecord())
	require.Error(t, err)
	require.Equal(t, int32(3), server.requests.Load())

	_, err = a.Analyze(context.Background(), testRecord())

	// Assert
	var ae *entity.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, entity.AnalysisTransient, ae.Kind)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.Equal(t, int32(3), server.requests.Load())
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := analyzer.NewOpenAI(analyzer.Config{})
	assert.Error(t, err)

	_, err = analyzer.NewOpenAI(analyzer.Config{Provider: analyzer.ProviderAzureOpenAI, APIKey: "k"})
	assert.Error(t, err)
}
