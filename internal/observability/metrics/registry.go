package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outbound HTTP metrics, labeled by the provider a client talks to
// (oura, claude, openai, telegram, discord, slack).
var (
	// HTTPClientRequestsTotal counts outbound requests by service, method and status.
	// The status label is the response code or "error" for transport failures.
	HTTPClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_http_client_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"service", "method", "status"},
	)

	// HTTPClientRequestDuration measures outbound request duration in seconds.
	HTTPClientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "health_http_client_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "method"},
	)

	// HTTPClientInFlight tracks outbound requests that have not returned yet.
	HTTPClientInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "health_http_client_in_flight_requests",
			Help: "Number of outbound HTTP requests in flight",
		},
		[]string{"service"},
	)

	// HTTPClientThrottledTotal counts 429 responses per service.
	HTTPClientThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_http_client_throttled_total",
			Help: "Total number of outbound requests answered with 429 Too Many Requests",
		},
		[]string{"service"},
	)
)
