package fetcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ouraRequestsTotal counts Oura API requests by endpoint and HTTP status.
	// status is "error" when no response was received.
	ouraRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oura_requests_total",
			Help: "Total number of Oura API requests",
		},
		[]string{"endpoint", "status"},
	)

	ouraRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oura_request_duration_seconds",
			Help:    "Oura API request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)
)

func recordRequest(endpoint string, status int, err error, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	} else if err == nil {
		label = "ok"
	}
	ouraRequestsTotal.WithLabelValues(endpoint, label).Inc()
	ouraRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
