package slo

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the daily delivery.
const (
	// DeliverySLO is the target share of enabled tenants that receive their
	// report (99% = roughly one missed report per tenant every three months).
	DeliverySLO = 0.99

	// CycleDurationP95SLO is the target 95th percentile cycle duration in seconds (10 minutes).
	CycleDurationP95SLO = 600.0

	// DefaultWindow is the number of recent cycles the tracker evaluates.
	DefaultWindow = 30
)

// SLO tracking metrics, recomputed after every cycle over the tracker window.
var (
	// SLODeliveryRatio is the share of tenant runs that delivered a report (0-1).
	SLODeliveryRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_ratio",
			Help: "Share of tenant runs in the window that delivered a report (0-1), target: 0.99",
		},
	)

	// SLOCycleDurationP95 is the p95 cycle duration in seconds over the window.
	SLOCycleDurationP95 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_cycle_duration_p95_seconds",
			Help: "p95 cycle duration in seconds over the window, target: 600",
		},
	)

	// SLOErrorBudgetRemaining is the unspent share of the delivery error budget.
	// It goes negative once the budget is exhausted.
	SLOErrorBudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_error_budget_remaining_ratio",
			Help: "Unspent share of the delivery error budget (1 = untouched, <0 = exhausted)",
		},
	)
)

// Sample is the part of a finished cycle the tracker needs.
type Sample struct {
	Delivered int
	Total     int
	Duration  time.Duration
}

// Snapshot holds the values last published by a Tracker.
type Snapshot struct {
	Cycles               int
	DeliveryRatio        float64
	CycleDurationP95     time.Duration
	ErrorBudgetRemaining float64
}

// Tracker keeps a rolling window of cycle samples and publishes the SLO gauges.
type Tracker struct {
	mu      sync.Mutex
	window  int
	samples []Sample
	last    Snapshot
}

// NewTracker creates a tracker over the last window cycles.
// A non-positive window uses DefaultWindow.
func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{window: window}
}

// Observe adds a cycle and updates the gauges.
// Cycles without tenants are ignored.
func (t *Tracker) Observe(s Sample) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Total <= 0 {
		return t.last
	}
	t.samples = append(t.samples, s)
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}

	t.last = t.compute()
	UpdateDeliveryRatio(t.last.DeliveryRatio)
	UpdateCycleDurationP95(t.last.CycleDurationP95.Seconds())
	UpdateErrorBudgetRemaining(t.last.ErrorBudgetRemaining)
	return t.last
}

// Snapshot returns the values last published.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) compute() Snapshot {
	var delivered, total int
	durations := make([]time.Duration, 0, len(t.samples))
	for _, s := range t.samples {
		delivered += s.Delivered
		total += s.Total
		durations = append(durations, s.Duration)
	}

	ratio := float64(delivered) / float64(total)
	budget := 1 - DeliverySLO
	return Snapshot{
		Cycles:               len(t.samples),
		DeliveryRatio:        ratio,
		CycleDurationP95:     percentile(durations, 0.95),
		ErrorBudgetRemaining: 1 - (1-ratio)/budget,
	}
}

// percentile uses the nearest-rank method.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// UpdateDeliveryRatio sets the delivery SLO gauge.
func UpdateDeliveryRatio(ratio float64) {
	SLODeliveryRatio.Set(ratio)
}

// UpdateCycleDurationP95 sets the cycle duration SLO gauge.
func UpdateCycleDurationP95(seconds float64) {
	SLOCycleDurationP95.Set(seconds)
}

// UpdateErrorBudgetRemaining sets the error budget gauge.
func UpdateErrorBudgetRemaining(ratio float64) {
	SLOErrorBudgetRemaining.Set(ratio)
}
