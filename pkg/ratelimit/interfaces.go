// Package ratelimit provides token-bucket admission control shared by
// concurrent callers.
//
// A TokenBucket gates outbound calls to a rate-constrained external capability
// (a health data API, a messaging API). Callers block in Acquire until enough
// tokens are available; waiters are served strictly in arrival order.
package ratelimit

import "time"

// Clock abstracts time so the bucket can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock implements Clock using the time package.
type SystemClock struct{}

// Now returns time.Now().
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// After returns time.After(d).
func (c *SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Metrics records limiter activity.
//
// Implementations must be safe for concurrent use.
type Metrics interface {
	// ObserveWait records how long a caller blocked before being granted.
	ObserveWait(limiter string, wait time.Duration)

	// SetWaiting records the current queue length.
	SetWaiting(limiter string, waiting int)

	// RecordCanceled counts waiters that left the queue because their context ended.
	RecordCanceled(limiter string)
}
