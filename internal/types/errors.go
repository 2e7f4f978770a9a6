// Package types holds the shared error taxonomy for the brainstem core.
// Every public operation on a core component either returns a valid result or
// one of these typed, recoverable errors; none of them may abort an agent turn.
package types

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input (category, key, signal) rejected at
// the component boundary before any state is touched.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s %q: %s", e.Field, e.Value, e.Reason)
}

// PersistenceError reports a snapshot or telemetry write/read failure.
// Read failures degrade to defaults; write failures are retried once and then
// surfaced to the caller without losing in-memory state.
type PersistenceError struct {
	Op   string // "save", "load", "record"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TimeoutError reports an external collaborator call that exceeded its budget.
// Callers always have a documented fallback; this never propagates as a turn
// failure.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// InvariantViolation indicates a logic bug: an internal invariant (clamp
// bounds, state-machine transition) was violated before a write was applied.
// It is the one error class that may abort the current update.
type InvariantViolation struct {
	Component string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Component, e.Detail)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
