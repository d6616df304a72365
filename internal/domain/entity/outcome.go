package entity

import "time"

// OutcomeStatus is the terminal status of one tenant pipeline run.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailed  OutcomeStatus = "failed"
)

// Stage names a step of the tenant pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageAnalyze Stage = "analyze"
	StageNotify  Stage = "notify"
	// StageUnknown marks failures outside a known stage, such as a recovered panic.
	StageUnknown Stage = "unknown"
)

// StageAttempts counts the attempts spent in each pipeline stage.
type StageAttempts struct {
	Fetch   int `json:"fetch"`
	Analyze int `json:"analyze"`
	Notify  int `json:"notify"`
}

// TenantOutcome is the immutable result of one tenant pipeline run.
// ErrorKind is set if and only if Status is StatusFailed; use the
// constructors below instead of building the struct by hand.
type TenantOutcome struct {
	TenantID  string
	Status    OutcomeStatus
	ErrorKind ErrorKind
	Stage     Stage
	Err       error
	Attempts  StageAttempts
	Duration  time.Duration
}

// NewSuccessOutcome records a completed pipeline run.
func NewSuccessOutcome(tenantID string, attempts StageAttempts, duration time.Duration) TenantOutcome {
	return TenantOutcome{
		TenantID: tenantID,
		Status:   StatusSuccess,
		Attempts: attempts,
		Duration: duration,
	}
}

// NewFailedOutcome records a pipeline run that stopped at stage because of err.
func NewFailedOutcome(tenantID string, stage Stage, err error, attempts StageAttempts, duration time.Duration) TenantOutcome {
	kind := KindOf(err)
	if kind == ErrorKindNone {
		kind = ErrorKindInternal
	}
	return TenantOutcome{
		TenantID:  tenantID,
		Status:    StatusFailed,
		ErrorKind: kind,
		Stage:     stage,
		Err:       err,
		Attempts:  attempts,
		Duration:  duration,
	}
}

// NewCanceledOutcome records a pipeline run abandoned because its context
// was canceled or timed out, whatever err wraps.
func NewCanceledOutcome(tenantID string, stage Stage, err error, attempts StageAttempts, duration time.Duration) TenantOutcome {
	o := NewFailedOutcome(tenantID, stage, err, attempts, duration)
	o.ErrorKind = ErrorKindCanceled
	return o
}

// Succeeded reports whether the run completed every stage.
func (o TenantOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}
