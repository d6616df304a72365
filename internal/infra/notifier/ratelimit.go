package notifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests to a single chat or webhook.
// It complements the process-wide send limiter, which only gates whole
// messages: a long summary is sent as several parts through one Send call.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new RateLimiter with the specified rate and burst capacity.
//
// Example:
//
//	limiter := NewRateLimiter(2.0, 1)  // one part every 500ms
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// NewIntervalLimiter allows one request per interval. A non-positive
// interval disables pacing.
func NewIntervalLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		return NewRateLimiter(float64(rate.Inf), 1)
	}
	return NewRateLimiter(float64(rate.Every(interval)), 1)
}

// Allow blocks until a token is available or the context is canceled.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
