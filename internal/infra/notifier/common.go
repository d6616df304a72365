package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/observability/metrics"
	"health-assistant/internal/observability/tracing"
	"health-assistant/internal/utils/text"
)

// maxErrorBody caps how much of an error response is kept in messages.
const maxErrorBody = 512

// RateLimitError represents a 429 response from a messaging API.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx client error from a messaging API.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx server error from a messaging API.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// statusError maps a non-2xx response onto a DeliveryError.
//
//   - 429 and 5xx are transient
//   - any other 4xx means the target (chat, webhook) is wrong and is not retried
func statusError(channel string, status int, detail string, retryAfter time.Duration) *entity.DeliveryError {
	var de *entity.DeliveryError
	switch {
	case status == http.StatusTooManyRequests:
		de = entity.NewDeliveryError(entity.DeliveryTransient, &RateLimitError{
			RetryAfter: retryAfter,
			Message:    channel + " rate limit exceeded",
		})
	case status >= 500:
		de = entity.NewDeliveryError(entity.DeliveryTransient, &ServerError{
			StatusCode: status,
			Message:    fmt.Sprintf("%s API server error: %s", channel, detail),
		})
	case status >= 400:
		de = entity.NewDeliveryError(entity.DeliveryInvalidTarget, &ClientError{
			StatusCode: status,
			Message:    fmt.Sprintf("%s API client error: %s", channel, detail),
		})
	default:
		de = entity.NewDeliveryError(entity.DeliveryTransient,
			fmt.Errorf("%s API unexpected status %d: %s", channel, status, detail))
	}
	de.StatusCode = status
	return de
}

// transportError classifies a failed round trip. Context errors are returned
// as-is so the caller sees a cancellation, not a delivery failure. The URL is
// stripped because webhook URLs and bot API paths carry secrets.
func transportError(ctx context.Context, channel string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s request: %w", channel, ctxErr)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return entity.NewDeliveryError(entity.DeliveryTransient, fmt.Errorf("%s request: %w", channel, err))
}

// newHTTPClient returns a client whose requests are traced and counted under channel.
func newHTTPClient(channel string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: tracing.NewTransport(channel, metrics.NewTransport(channel, nil)),
	}
}

// postJSON posts payload and returns the status code and a bounded body.
func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) (*http.Response, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return resp, body, nil
}

// retryAfterHeader parses a Retry-After header given in seconds.
func retryAfterHeader(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func abbreviate(body []byte) string {
	return text.Truncate(string(body), maxErrorBody, "...")
}
