package errors

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrGroupExists       = errors.New("consumer group already exists")
	ErrMalformedEntry    = errors.New("malformed stream entry")
	ErrUnknownSourceType = errors.New("unknown source type")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrFetchFailed       = errors.New("fetching source failed")
	ErrEnrichmentFailed  = errors.New("enrichment failed")
	ErrTimeout           = errors.New("operation timed out")
)

// Cause tags attached to store failures in structured logs.
const (
	CauseConnection = "connection"
	CauseTimeout    = "timeout"
	CauseBusyGroup  = "busygroup"
	CauseProtocol   = "protocol"
	CauseUnhandled  = "unhandled"
)

// StoreError is a classified failure of a single store round trip.
type StoreError struct {
	Op    string
	Cause string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Cause, e.Err)
}

// Unwrap exposes the sentinel for the cause as well as the driver error, so
// both errors.Is(err, ErrStoreUnavailable) and errors.Is(err, io.EOF) hold.
func (e *StoreError) Unwrap() []error {
	switch e.Cause {
	case CauseConnection:
		return []error{ErrStoreUnavailable, e.Err}
	case CauseTimeout:
		return []error{ErrStoreUnavailable, ErrTimeout, e.Err}
	case CauseBusyGroup:
		return []error{ErrGroupExists, e.Err}
	default:
		return []error{e.Err}
	}
}

func NewStoreError(op, cause string, err error) *StoreError {
	return &StoreError{Op: op, Cause: cause, Err: err}
}

// CauseOf returns the cause tag for err. Errors that did not come from a
// store adapter are reported as unhandled.
func CauseOf(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Cause
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return CauseTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return CauseConnection
	case errors.Is(err, ErrGroupExists):
		return CauseBusyGroup
	default:
		return CauseUnhandled
	}
}

// IsTransient reports whether err is an environment condition that a caller
// may retry later.
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrStoreUnavailable)
}
