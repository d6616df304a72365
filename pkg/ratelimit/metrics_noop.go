package ratelimit

import "time"

// NoOpMetrics implements Metrics and discards everything.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new NoOpMetrics instance.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// ObserveWait is a no-op implementation.
func (m *NoOpMetrics) ObserveWait(limiter string, wait time.Duration) {}

// SetWaiting is a no-op implementation.
func (m *NoOpMetrics) SetWaiting(limiter string, waiting int) {}

// RecordCanceled is a no-op implementation.
func (m *NoOpMetrics) RecordCanceled(limiter string) {}

var (
	_ Metrics = (*NoOpMetrics)(nil)
	_ Metrics = (*PrometheusMetrics)(nil)
)
