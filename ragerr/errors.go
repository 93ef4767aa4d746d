// Package ragerr defines the error taxonomy shared by the QA core.
package ragerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrNoContent: the document has no indexed chunks. Terminal.
	ErrNoContent = errors.New("document has no indexed content")
	// ErrBudgetExceeded: prompt assembly impossible within the token limit.
	ErrBudgetExceeded = errors.New("prompt token budget exceeded")
	// ErrDependencyUnavailable: an external service is down or its circuit
	// is open. Normally absorbed by the degradation chain.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrValidation: the question is malformed. Never retried.
	ErrValidation = errors.New("invalid question")
	// ErrSessionNotFound: operation against a deleted or unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRateLimited: an upstream service rejected the call for rate.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable: an upstream service returned a server error.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Error carries a sentinel with a short machine reason and an optional cause.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match both the sentinel kind and the wrapped cause.
func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

// New builds a taxonomy error from a sentinel kind.
func New(kind error, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}
