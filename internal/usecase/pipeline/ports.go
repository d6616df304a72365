// Package pipeline runs the daily fetch, analyze and notify sequence for one tenant.
//
// Every run ends in an entity.TenantOutcome; errors never escape Execute.
// Transient fetch and delivery failures are retried with bounded backoff,
// fatal ones end the run for this cycle and trigger one best-effort failure
// notice to the tenant.
package pipeline

import (
	"context"
	"time"

	"health-assistant/internal/domain/entity"
)

// Fetcher retrieves one day of health data for a single tenant.
// Failures should be *entity.FetchError so they can be classified.
type Fetcher interface {
	FetchDailyData(ctx context.Context, date time.Time) (*entity.HealthRecord, error)
}

// Analyzer turns a health record into a summary.
// Implementations are shared by all tenants and must be safe for concurrent use.
// Failures should be *entity.AnalysisError; the analyzer applies its own retry policy.
type Analyzer interface {
	Analyze(ctx context.Context, record *entity.HealthRecord) (string, error)
}

// Notifier delivers a message to a single tenant.
// Failures should be *entity.DeliveryError so they can be classified.
type Notifier interface {
	Send(ctx context.Context, msg entity.Message) error
}

// Limiter gates calls to a rate-constrained provider.
// *ratelimit.TokenBucket satisfies it.
type Limiter interface {
	Acquire(ctx context.Context, n int) error
}

// Tenant is one configured identity with its own fetcher and notifier.
type Tenant struct {
	ID       string
	Name     string
	Enabled  bool
	Fetcher  Fetcher
	Notifier Notifier
}

// DisplayName returns Name, falling back to ID.
func (t Tenant) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}
