package errs

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned when a backend accessor is called
// before that backend has connected.
var ErrBackendUnavailable = errors.New("backend not connected")

// ErrQuotaExhausted is returned when the live feed budget is spent.
var ErrQuotaExhausted = errors.New("live feed quota exhausted")

// AuthError marks credential and session failures. These never fall
// through to another credential tier: a resolved-but-broken credential
// is surfaced, not silently replaced.
type AuthError struct {
	Stage string // "resolve", "login", "session"
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError wraps err as an authentication failure at the given stage.
func NewAuthError(stage string, err error) *AuthError {
	return &AuthError{Stage: stage, Err: err}
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// QueryError marks a backend that was reachable but failed to serve a
// query. The fusion layer degrades on these instead of failing the
// whole request.
type QueryError struct {
	Backend string // "archive", "live"
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query: %v", e.Backend, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError wraps err as a query failure against the named backend.
func NewQueryError(backend string, err error) *QueryError {
	return &QueryError{Backend: backend, Err: err}
}

// IsQuery reports whether err is a backend query failure.
func IsQuery(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// MalformedDataError marks an upstream response that parsed but carried
// rows no market can produce. The bad rows are dropped, not repaired.
type MalformedDataError struct {
	Backend string
	Dropped int
	Err     error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("%s returned %d malformed rows: %v", e.Backend, e.Dropped, e.Err)
}

func (e *MalformedDataError) Unwrap() error { return e.Err }
