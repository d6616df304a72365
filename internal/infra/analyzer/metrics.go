package analyzer

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder records analyzer metrics.
// Implementations are swapped for a recording fake in tests.
type MetricsRecorder interface {
	// RecordResult counts a finished Analyze call by provider and status
	// ("success" or the analysis error kind).
	RecordResult(provider, status string)

	// RecordDuration records the wall time of a finished Analyze call, retries included.
	RecordDuration(provider string, d time.Duration)

	// RecordLength records the length of a returned summary in runes.
	RecordLength(provider string, runes int)

	// RecordTruncated counts summaries cut to the configured maximum.
	RecordTruncated(provider string)
}

// PrometheusMetrics implements MetricsRecorder with Prometheus collectors.
type PrometheusMetrics struct {
	results   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	length    *prometheus.HistogramVec
	truncated *prometheus.CounterVec
}

var (
	prometheusMetricsInstance *PrometheusMetrics
	prometheusMetricsOnce     sync.Once
)

// getOrRegister registers c, returning the already registered collector on a clash.
func getOrRegister[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// NewPrometheusMetrics returns the process-wide recorder.
// A singleton so repeated construction in tests does not register twice.
func NewPrometheusMetrics() *PrometheusMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusMetrics{
			results: getOrRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "analyzer_requests_total",
				Help: "Analyze calls by provider and status",
			}, []string{"provider", "status"})),
			duration: getOrRegister(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "analyzer_duration_seconds",
				Help:    "Time taken to produce a summary, retries included",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}, []string{"provider"})),
			length: getOrRegister(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "analyzer_summary_length_runes",
				Help:    "Distribution of summary lengths in characters (Unicode runes)",
				Buckets: []float64{250, 500, 1000, 1500, 2000, 2500, 3000, 3500},
			}, []string{"provider"})),
			truncated: getOrRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "analyzer_summary_truncated_total",
				Help: "Summaries cut to the configured maximum length",
			}, []string{"provider"})),
		}
	})
	return prometheusMetricsInstance
}

// RecordResult implements MetricsRecorder.
func (p *PrometheusMetrics) RecordResult(provider, status string) {
	p.results.WithLabelValues(provider, status).Inc()
}

// RecordDuration implements MetricsRecorder.
func (p *PrometheusMetrics) RecordDuration(provider string, d time.Duration) {
	p.duration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordLength implements MetricsRecorder.
func (p *PrometheusMetrics) RecordLength(provider string, runes int) {
	p.length.WithLabelValues(provider).Observe(float64(runes))
}

// RecordTruncated implements MetricsRecorder.
func (p *PrometheusMetrics) RecordTruncated(provider string) {
	p.truncated.WithLabelValues(provider).Inc()
}
