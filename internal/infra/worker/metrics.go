package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/observability/slo"
	"health-assistant/internal/pkg/config"
)

// Cycle result labels.
const (
	CycleSuccess = "success"
	CyclePartial = "partial"
	CycleFailure = "failure"
	CycleEmpty   = "empty"
)

// WorkerMetrics provides Prometheus metrics for the worker process.
// It embeds ConfigMetrics for the environment overrides and implements the
// metrics interfaces of the pipeline and the orchestrator.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total{field}
//   - worker_config_fallbacks_total{field}
//   - worker_config_fallback_active
//
// Pipeline metrics:
//   - health_pipeline_stage_duration_seconds{stage,status}
//   - health_pipeline_stage_attempts{stage}
//   - health_pipeline_failure_notices_total{result}
//
// Cycle metrics:
//   - health_cycles_total{result}
//   - health_cycle_duration_seconds
//   - health_cycle_tenants_total{status,error_kind}
//   - health_cycle_overlaps_total
//   - health_cycle_consecutive_failures
//   - health_cycle_last_success_timestamp
//
// Every recorded cycle also feeds the delivery SLO gauges (see package slo).
type WorkerMetrics struct {
	*config.ConfigMetrics

	// StageDuration measures each pipeline stage.
	// Buckets: 0.1s to 5m, sized for HTTP calls with backoff
	StageDuration *prometheus.HistogramVec

	// StageAttempts records how many attempts a stage needed.
	StageAttempts *prometheus.HistogramVec

	// FailureNotices counts best-effort failure notices by result (sent, failed).
	FailureNotices *prometheus.CounterVec

	// CyclesTotal counts finished cycles by result.
	CyclesTotal *prometheus.CounterVec

	// CycleDuration measures the wall time of a cycle.
	CycleDuration prometheus.Histogram

	// CycleTenants counts tenant outcomes.
	CycleTenants *prometheus.CounterVec

	// CycleOverlaps counts triggers rejected because a cycle was still running.
	CycleOverlaps prometheus.Counter

	// ConsecutiveFailures is the number of cycles in a row with at least one failed tenant.
	ConsecutiveFailures prometheus.Gauge

	// LastSuccess is the Unix timestamp of the last cycle in which every tenant succeeded.
	LastSuccess prometheus.Gauge

	// SLO tracks delivery over recent cycles.
	SLO *slo.Tracker
}

// NewWorkerMetrics creates the worker metrics and registers them with the
// default Prometheus registry. It must be called once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "status"}),

		StageAttempts: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_pipeline_stage_attempts",
			Help:    "Attempts spent in a pipeline stage",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"stage"}),

		FailureNotices: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "health_pipeline_failure_notices_total",
			Help: "Failure notices sent to tenants by result (sent/failed)",
		}, []string{"result"}),

		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "health_cycles_total",
			Help: "Total number of cycles by result (success/partial/failure/empty)",
		}, []string{"result"}),

		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "health_cycle_duration_seconds",
			Help:    "Duration of a cycle in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		CycleTenants: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "health_cycle_tenants_total",
			Help: "Tenant outcomes by status and error kind",
		}, []string{"status", "error_kind"}),

		CycleOverlaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "health_cycle_overlaps_total",
			Help: "Triggers skipped because a cycle was still running",
		}),

		ConsecutiveFailures: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "health_cycle_consecutive_failures",
			Help: "Number of consecutive cycles with at least one failed tenant",
		}),

		LastSuccess: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "health_cycle_last_success_timestamp",
			Help: "Unix timestamp of the last cycle in which every tenant succeeded",
		}),

		SLO: slo.NewTracker(slo.DefaultWindow),
	}
}

// ObserveStage records the duration and status of one pipeline stage.
func (m *WorkerMetrics) ObserveStage(stage entity.Stage, status entity.OutcomeStatus, duration time.Duration) {
	m.StageDuration.WithLabelValues(string(stage), string(status)).Observe(duration.Seconds())
}

// ObserveAttempts records the attempts a stage needed.
func (m *WorkerMetrics) ObserveAttempts(stage entity.Stage, attempts int) {
	m.StageAttempts.WithLabelValues(string(stage)).Observe(float64(attempts))
}

// RecordFailureNotice counts a failure notice.
func (m *WorkerMetrics) RecordFailureNotice(sent bool) {
	result := "failed"
	if sent {
		result = "sent"
	}
	m.FailureNotices.WithLabelValues(result).Inc()
}

// RecordCycle records a finished cycle and its tenant outcomes.
func (m *WorkerMetrics) RecordCycle(cycle *entity.Cycle) {
	result := CycleResult(cycle)
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(cycle.Duration().Seconds())

	for _, o := range cycle.Outcomes {
		kind := string(o.ErrorKind)
		if kind == "" {
			kind = "none"
		}
		m.CycleTenants.WithLabelValues(string(o.Status), kind).Inc()
	}
	if result == CycleSuccess {
		m.LastSuccess.SetToCurrentTime()
	}
	m.SLO.Observe(slo.Sample{
		Delivered: cycle.SuccessCount(),
		Total:     len(cycle.Outcomes),
		Duration:  cycle.Duration(),
	})
}

// RecordOverlap counts a trigger rejected by a running cycle.
func (m *WorkerMetrics) RecordOverlap() {
	m.CycleOverlaps.Inc()
}

// SetConsecutiveFailures publishes the failure streak.
func (m *WorkerMetrics) SetConsecutiveFailures(n int) {
	m.ConsecutiveFailures.Set(float64(n))
}

// CycleResult classifies a cycle: every tenant succeeded, some did, none did,
// or no tenant was enabled.
func CycleResult(cycle *entity.Cycle) string {
	switch {
	case len(cycle.Outcomes) == 0:
		return CycleEmpty
	case cycle.AllSucceeded():
		return CycleSuccess
	case cycle.SuccessCount() > 0:
		return CyclePartial
	default:
		return CycleFailure
	}
}
