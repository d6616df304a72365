package entity

import "time"

// Cycle is one orchestration pass across all enabled tenants for a single
// target date. Outcomes are kept in configuration order.
type Cycle struct {
	ID          string
	TriggeredAt time.Time
	TargetDate  time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcomes    []TenantOutcome
}

// TargetDateFor returns the calendar day before trigger, at midnight in the
// trigger's own location. Callers convert trigger into the scheduling
// location first; no UTC conversion happens here.
func TargetDateFor(trigger time.Time) time.Time {
	y, m, d := trigger.Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, trigger.Location())
}

// SuccessCount returns the number of tenants that completed successfully.
func (c *Cycle) SuccessCount() int {
	n := 0
	for _, o := range c.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// FailureCount returns the number of tenants whose pipeline failed.
func (c *Cycle) FailureCount() int {
	return len(c.Outcomes) - c.SuccessCount()
}

// FailedOutcomes returns the failed outcomes in configuration order.
func (c *Cycle) FailedOutcomes() []TenantOutcome {
	var failed []TenantOutcome
	for _, o := range c.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// AllSucceeded reports whether every attempted tenant succeeded.
// A cycle with no tenants counts as successful.
func (c *Cycle) AllSucceeded() bool {
	return c.FailureCount() == 0
}

// Duration returns the wall time spent running the cycle.
func (c *Cycle) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}
