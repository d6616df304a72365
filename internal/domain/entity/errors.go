package entity

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ErrorKind is the stable classification of a failed tenant outcome.
// Values are used as log fields and Prometheus label values.
type ErrorKind string

const (
	ErrorKindNone                    ErrorKind = ""
	ErrorKindFetchTransient          ErrorKind = "fetch_transient"
	ErrorKindFetchAuth               ErrorKind = "fetch_auth"
	ErrorKindFetchRateLimited        ErrorKind = "fetch_rate_limited"
	ErrorKindAnalysisTransient       ErrorKind = "analysis_transient"
	ErrorKindAnalysisQuotaExceeded   ErrorKind = "analysis_quota_exceeded"
	ErrorKindAnalysisContentFiltered ErrorKind = "analysis_content_filtered"
	ErrorKindDeliveryTransient       ErrorKind = "delivery_transient"
	ErrorKindDeliveryInvalidTarget   ErrorKind = "delivery_invalid_target"
	ErrorKindCanceled                ErrorKind = "canceled"
	ErrorKindInternal                ErrorKind = "internal"
)

// FetchErrorKind enumerates health data fetch failures.
type FetchErrorKind string

const (
	FetchTransient   FetchErrorKind = "transient"
	FetchAuth        FetchErrorKind = "auth"
	FetchRateLimited FetchErrorKind = "rate_limited"
)

// FetchError is returned by health data fetchers.
// Only FetchTransient is worth retrying: auth failures need operator action and
// a rate limited fetch is already gated by the provider for this attempt.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

// NewFetchError wraps err with the given kind.
func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool { return e.Kind == FetchTransient }

// OutcomeKind maps the fetch failure onto an outcome error kind.
func (e *FetchError) OutcomeKind() ErrorKind {
	switch e.Kind {
	case FetchAuth:
		return ErrorKindFetchAuth
	case FetchRateLimited:
		return ErrorKindFetchRateLimited
	default:
		return ErrorKindFetchTransient
	}
}

// AnalysisErrorKind enumerates analyzer failures.
type AnalysisErrorKind string

const (
	AnalysisTransient       AnalysisErrorKind = "transient"
	AnalysisQuotaExceeded   AnalysisErrorKind = "quota_exceeded"
	AnalysisContentFiltered AnalysisErrorKind = "content_filtered"
)

// AnalysisError is returned by analyzers once their own retry policy is spent.
type AnalysisError struct {
	Kind AnalysisErrorKind
	Err  error
}

// NewAnalysisError wraps err with the given kind.
func NewAnalysisError(kind AnalysisErrorKind, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Err: err}
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *AnalysisError) Retryable() bool { return e.Kind == AnalysisTransient }

// OutcomeKind maps the analysis failure onto an outcome error kind.
func (e *AnalysisError) OutcomeKind() ErrorKind {
	switch e.Kind {
	case AnalysisQuotaExceeded:
		return ErrorKindAnalysisQuotaExceeded
	case AnalysisContentFiltered:
		return ErrorKindAnalysisContentFiltered
	default:
		return ErrorKindAnalysisTransient
	}
}

// DeliveryErrorKind enumerates notification delivery failures.
type DeliveryErrorKind string

const (
	DeliveryTransient     DeliveryErrorKind = "transient"
	DeliveryInvalidTarget DeliveryErrorKind = "invalid_target"
)

// DeliveryError is returned by notifiers.
type DeliveryError struct {
	Kind       DeliveryErrorKind
	StatusCode int
	Err        error
}

// NewDeliveryError wraps err with the given kind.
func NewDeliveryError(kind DeliveryErrorKind, err error) *DeliveryError {
	return &DeliveryError{Kind: kind, Err: err}
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("delivery %s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("delivery %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *DeliveryError) Retryable() bool { return e.Kind == DeliveryTransient }

// OutcomeKind maps the delivery failure onto an outcome error kind.
func (e *DeliveryError) OutcomeKind() ErrorKind {
	if e.Kind == DeliveryInvalidTarget {
		return ErrorKindDeliveryInvalidTarget
	}
	return ErrorKindDeliveryTransient
}

// classified is implemented by every capability error above.
type classified interface {
	error
	Retryable() bool
	OutcomeKind() ErrorKind
}

// KindOf returns the outcome error kind for err.
// A capability error wins over a context error it wraps: an adapter only
// classifies a deadline when it was a provider timeout. Whether the caller
// itself gave up is decided from its context, see NewCanceledOutcome.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var c classified
	if errors.As(err, &c) {
		return c.OutcomeKind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindCanceled
	}
	return ErrorKindInternal
}
