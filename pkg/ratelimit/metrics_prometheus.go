package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics using Prometheus.
//
// Metrics are registered with the Registerer passed to NewPrometheusMetrics so
// tests can use an isolated registry while the worker uses the default one.
type PrometheusMetrics struct {
	// waitDuration tracks how long callers blocked in Acquire.
	// Labels:
	//   - limiter: limiter name (e.g. "oura", "telegram")
	waitDuration *prometheus.HistogramVec

	// waiting tracks the current queue length per limiter.
	waiting *prometheus.GaugeVec

	// canceledTotal counts waiters that gave up before being granted.
	canceledTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the limiter metrics with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limiter_wait_duration_seconds",
			Help:    "Time callers spent waiting for rate limiter tokens",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"limiter"},
	)

	waiting := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limiter_waiting",
			Help: "Number of callers queued for rate limiter tokens",
		},
		[]string{"limiter"},
	)

	canceledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_canceled_total",
			Help: "Total waiters that left the queue before being granted",
		},
		[]string{"limiter"},
	)

	reg.MustRegister(waitDuration, waiting, canceledTotal)

	return &PrometheusMetrics{
		waitDuration:  waitDuration,
		waiting:       waiting,
		canceledTotal: canceledTotal,
	}
}

// ObserveWait records the time a caller blocked before its tokens were granted.
func (m *PrometheusMetrics) ObserveWait(limiter string, wait time.Duration) {
	m.waitDuration.WithLabelValues(limiter).Observe(wait.Seconds())
}

// SetWaiting records the current queue length.
func (m *PrometheusMetrics) SetWaiting(limiter string, waiting int) {
	m.waiting.WithLabelValues(limiter).Set(float64(waiting))
}

// RecordCanceled counts a waiter whose context ended.
func (m *PrometheusMetrics) RecordCanceled(limiter string) {
	m.canceledTotal.WithLabelValues(limiter).Inc()
}
