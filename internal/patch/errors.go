package patch

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for the caller.
type Kind int

const (
	// KindInternal is an unexpected failure while cleaning, rendering,
	// compositing or encoding.
	KindInternal Kind = iota

	// KindInput is a rejected request: undecodable image bytes or invalid
	// polygon, font or style values.
	KindInput

	// KindUnavailable means a collaborator is not ready yet. Callers may
	// retry later.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

var (
	// ErrNotReady is returned when cleaning is required but the configured
	// cleaner has not finished loading.
	ErrNotReady = errors.New("cleaner not ready")

	// ErrDecode is returned when request image bytes cannot be decoded.
	ErrDecode = errors.New("failed to decode image")

	// ErrInvalidRequest is returned for out-of-range request values.
	ErrInvalidRequest = errors.New("invalid request")
)

// Error wraps a pipeline failure with the operation and stage it came from.
type Error struct {
	// Op is the pipeline that failed ("generate" or "merge").
	Op string

	// Kind classifies the failure.
	Kind Kind

	// Err is the underlying error.
	Err error

	// Details names the failing stage and the dimensions involved.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("patch: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("patch: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op string, kind Kind, err error, details string) *Error {
	return &Error{
		Op:      op,
		Kind:    kind,
		Err:     err,
		Details: details,
	}
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
