package entity

import "time"

// DateLayout is the ISO 8601 calendar date format used by the health data API.
const DateLayout = "2006-01-02"

// HealthRecord is one day of health data for a single tenant.
// The sections are provider payloads kept as decoded JSON objects; the
// orchestration layer treats the record as opaque.
type HealthRecord struct {
	Date      time.Time
	Sleep     map[string]any
	Activity  map[string]any
	Readiness map[string]any
	HeartRate *HeartRateSummary
}

// HeartRateSummary aggregates the intraday heart rate samples of a day.
type HeartRateSummary struct {
	Min     int
	Max     int
	Avg     float64
	Samples int
}

// DateString returns the record date formatted as YYYY-MM-DD.
func (r *HealthRecord) DateString() string {
	return r.Date.Format(DateLayout)
}

// IsEmpty reports whether no section carries any data.
func (r *HealthRecord) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.Sleep) == 0 &&
		len(r.Activity) == 0 &&
		len(r.Readiness) == 0 &&
		(r.HeartRate == nil || r.HeartRate.Samples == 0)
}
