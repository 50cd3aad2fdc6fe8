package audit

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors surfaced synchronously to callers.
var (
	// ErrValidation marks a rejected audit request.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for unknown task ids.
	ErrNotFound = errors.New("not found")
	// ErrIncompleteRecord marks an export against a record missing a
	// required source section.
	ErrIncompleteRecord = errors.New("incomplete record")
	// ErrVersionConflict is returned by CAS task updates that lost a race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition marks finalize calls against a non-terminal task.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrorKind categorizes adapter failures. Kinds never cross the adapter
// boundary as raw errors; they are captured into FetchResult and sub-status.
type ErrorKind string

// Adapter failure categories.
const (
	ErrKindNetwork         ErrorKind = "network"
	ErrKindRateLimited     ErrorKind = "rate_limited"
	ErrKindAuth            ErrorKind = "auth"
	ErrKindInvalidResponse ErrorKind = "invalid_response"
	ErrKindTimeout         ErrorKind = "timeout"
	ErrKindUnknown         ErrorKind = "unknown"
)

// Transient reports whether a failure of this kind is eligible for the
// single bounded retry.
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrKindNetwork, ErrKindRateLimited, ErrKindTimeout:
		return true
	default:
		return false
	}
}

// SourceError is the categorized failure adapters return across their
// boundary. It wraps the underlying cause for logging.
type SourceError struct {
	Source Source
	Kind   ErrorKind
	Err    error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError builds a categorized adapter failure.
func NewSourceError(source Source, kind ErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

// Classify maps an adapter error to its failure category. Context deadlines
// become timeouts so they follow the transient retry policy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindNetwork
	}
	return ErrKindUnknown
}
