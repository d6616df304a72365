// Package orchestrator runs one Cycle per trigger across all enabled tenants.
//
// The orchestrator is a small state machine (idle, running, stopped) built on
// looplab/fsm. A cycle dispatches every enabled tenant exactly once to the
// pipeline on a bounded errgroup pool and waits for all of them before the
// summary is logged. Tenant failures, including panics, become outcomes and
// never abort the cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	loopfsm "github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/observability/logging"
	"health-assistant/internal/usecase/pipeline"
)

// DefaultConcurrency is the default tenant pool size.
const DefaultConcurrency = 2

// Sentinel errors for orchestrator operations.
var (
	// ErrCycleInProgress is returned when a trigger fires while a cycle is running.
	ErrCycleInProgress = errors.New("a cycle is already in progress")

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("orchestrator is stopped")
)

// Orchestrator states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateStopped = "stopped"
)

const (
	eventStart  = "start"
	eventFinish = "finish"
	eventStop   = "stop"
)

var events = loopfsm.Events{
	{Name: eventStart, Src: []string{StateIdle}, Dst: StateRunning},
	{Name: eventFinish, Src: []string{StateRunning}, Dst: StateIdle},
	{Name: eventStop, Src: []string{StateIdle, StateRunning}, Dst: StateStopped},
}

// Runner executes one tenant's pipeline. *pipeline.Pipeline satisfies it.
type Runner interface {
	Execute(ctx context.Context, tenant pipeline.Tenant, targetDate time.Time) entity.TenantOutcome
}

// Metrics records cycle level activity.
type Metrics interface {
	RecordCycle(cycle *entity.Cycle)
	RecordOverlap()
	SetConsecutiveFailures(n int)
}

// Config configures an Orchestrator.
type Config struct {
	// Concurrency bounds the tenant pool. It is clamped to [1, enabled tenants].
	Concurrency int

	// Location is the scheduler timezone used to derive the target date.
	Location *time.Location

	Logger  *slog.Logger
	Metrics Metrics
	Now     func() time.Time
}

// Orchestrator coordinates tenant pipelines. It is safe for concurrent use.
type Orchestrator struct {
	runner  Runner
	tenants []pipeline.Tenant
	cfg     Config

	mu                  sync.Mutex
	machine             *loopfsm.FSM
	cancel              context.CancelFunc
	done                chan struct{}
	last                *entity.Cycle
	consecutiveFailures int
}

// New creates an Orchestrator for tenants in configuration order.
func New(runner Runner, tenants []pipeline.Tenant, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		runner:  runner,
		tenants: append([]pipeline.Tenant(nil), tenants...),
		cfg:     cfg,
		machine: loopfsm.NewFSM(StateIdle, events, nil),
	}
}

// State returns the current state name.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine.Current()
}

// LastCycle returns the most recently completed cycle, or nil.
func (o *Orchestrator) LastCycle() *entity.Cycle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// ConsecutiveFailures returns how many completed cycles in a row had a failed tenant.
func (o *Orchestrator) ConsecutiveFailures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consecutiveFailures
}

// RunCycle runs one cycle for triggeredAt and blocks until every selected
// tenant has an outcome. It returns ErrCycleInProgress if another cycle is
// running and ErrStopped after Stop.
func (o *Orchestrator) RunCycle(ctx context.Context, triggeredAt time.Time) (*entity.Cycle, error) {
	cycleCtx, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer o.end()

	trigger := triggeredAt.In(o.cfg.Location)
	cycle := &entity.Cycle{
		ID:          uuid.NewString(),
		TriggeredAt: triggeredAt,
		TargetDate:  entity.TargetDateFor(trigger),
		StartedAt:   o.cfg.Now(),
	}
	logger := o.cfg.Logger.With(slog.String("cycle_id", cycle.ID))

	selected := o.enabledTenants()
	logger.Info("cycle started",
		slog.String("target_date", cycle.TargetDate.Format(entity.DateLayout)),
		slog.Int("tenants", len(selected)),
		slog.Int("skipped_disabled", len(o.tenants)-len(selected)))

	// pipelines log under the cycle id
	cycleCtx = logging.WithLogger(cycleCtx, logger)
	cycle.Outcomes = o.dispatch(cycleCtx, logger, selected, cycle.TargetDate)
	cycle.FinishedAt = o.cfg.Now()

	o.record(cycle)
	logSummary(logger, cycle)
	return cycle, nil
}

// begin moves idle to running and returns the cycle context.
func (o *Orchestrator) begin(ctx context.Context) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.machine.Current() {
	case StateStopped:
		return nil, ErrStopped
	case StateRunning:
		o.cfg.Metrics.RecordOverlap()
		o.cfg.Logger.Warn("trigger rejected, previous cycle still running")
		return nil, ErrCycleInProgress
	}

	if err := o.machine.Event(context.Background(), eventStart); err != nil {
		return nil, fmt.Errorf("start cycle: %w", err)
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	return cycleCtx, nil
}

// end releases the cycle context and returns to idle unless stopped meanwhile.
func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cancel()
	o.cancel = nil
	if o.machine.Current() == StateRunning {
		if err := o.machine.Event(context.Background(), eventFinish); err != nil {
			o.cfg.Logger.Error("finish cycle transition failed", slog.Any("error", err))
		}
	}
	close(o.done)
}

func (o *Orchestrator) enabledTenants() []pipeline.Tenant {
	selected := make([]pipeline.Tenant, 0, len(o.tenants))
	for _, t := range o.tenants {
		if t.Enabled {
			selected = append(selected, t)
		}
	}
	return selected
}

// dispatch runs every tenant once on a bounded pool. Outcomes keep tenant order.
func (o *Orchestrator) dispatch(ctx context.Context, logger *slog.Logger, tenants []pipeline.Tenant, targetDate time.Time) []entity.TenantOutcome {
	outcomes := make([]entity.TenantOutcome, len(tenants))
	if len(tenants) == 0 {
		return outcomes
	}

	limit := o.cfg.Concurrency
	if limit > len(tenants) {
		limit = len(tenants)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, tenant := range tenants {
		g.Go(func() error {
			outcomes[i] = o.runTenant(ctx, logger, tenant, targetDate)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runTenant converts a panic in one tenant's pipeline into a failed outcome.
func (o *Orchestrator) runTenant(ctx context.Context, logger *slog.Logger, tenant pipeline.Tenant, targetDate time.Time) (outcome entity.TenantOutcome) {
	start := o.cfg.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tenant pipeline panicked",
				slog.String("tenant_id", tenant.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			outcome = entity.NewFailedOutcome(tenant.ID, entity.StageUnknown,
				fmt.Errorf("pipeline panic: %v", r), entity.StageAttempts{}, o.cfg.Now().Sub(start))
		}
	}()
	return o.runner.Execute(ctx, tenant, targetDate)
}

func (o *Orchestrator) record(cycle *entity.Cycle) {
	o.mu.Lock()
	o.last = cycle
	if cycle.AllSucceeded() {
		o.consecutiveFailures = 0
	} else {
		o.consecutiveFailures++
	}
	failures := o.consecutiveFailures
	o.mu.Unlock()

	o.cfg.Metrics.RecordCycle(cycle)
	o.cfg.Metrics.SetConsecutiveFailures(failures)
}

func logSummary(logger *slog.Logger, cycle *entity.Cycle) {
	failed := cycle.FailedOutcomes()
	failedTenants := make([]string, 0, len(failed))
	for _, outcome := range failed {
		failedTenants = append(failedTenants, outcome.TenantID+":"+string(outcome.ErrorKind))
	}

	attrs := []any{
		slog.String("target_date", cycle.TargetDate.Format(entity.DateLayout)),
		slog.Int("total", len(cycle.Outcomes)),
		slog.Int("succeeded", cycle.SuccessCount()),
		slog.Int("failed", cycle.FailureCount()),
		slog.Duration("duration", cycle.Duration()),
	}
	if len(failed) == 0 {
		logger.Info("cycle completed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("failed_tenants", strings.Join(failedTenants, ",")))
	logger.Warn("cycle completed with failures", attrs...)
}

// Stop moves the orchestrator to stopped and waits for an in-flight cycle.
// When ctx ends first, the cycle is cancelled and Stop waits for pipelines to
// unwind before returning ctx's error.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	current := o.machine.Current()
	if current == StateStopped {
		o.mu.Unlock()
		return nil
	}
	if err := o.machine.Event(context.Background(), eventStop); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("stop orchestrator: %w", err)
	}
	done, cancel := o.done, o.cancel
	o.mu.Unlock()

	if current != StateRunning {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.cfg.Logger.Warn("shutdown grace period expired, cancelling cycle")
		cancel()
		<-done
		return fmt.Errorf("grace period expired: %w", ctx.Err())
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(*entity.Cycle)  {}
func (noopMetrics) RecordOverlap()             {}
func (noopMetrics) SetConsecutiveFailures(int) {}
