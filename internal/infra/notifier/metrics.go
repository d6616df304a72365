package notifier

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for message delivery
var (
	// notificationSentTotal tracks send results per channel
	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of notification messages sent",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	// notificationDuration tracks the duration of one Send, all parts included
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Notification send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// notificationParts tracks how many parts a message was split into
	notificationParts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_message_parts",
			Help:    "Number of parts a notification was split into",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
		[]string{"channel"},
	)

	// notificationPlainFallbackTotal counts HTML messages resent as plain text
	notificationPlainFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_plain_fallback_total",
			Help: "Total number of messages resent as plain text after a formatting error",
		},
		[]string{"channel"},
	)
)

func recordSend(channel string, parts int, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	notificationSentTotal.WithLabelValues(channel, status).Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
	if parts > 0 {
		notificationParts.WithLabelValues(channel).Observe(float64(parts))
	}
}
