// Package apperr defines the error taxonomy shared by the storage adapters,
// the services and the RPC layer.
//
// Errors are classified, never retried here: callers decide whether to retry
// using Retryable. Read paths that prefer partial results (stale group ids,
// unresolvable participants) elide ErrNotFound instead of returning it.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a code, group, vibe or user id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMember is returned when joining a group the user already belongs to.
	ErrAlreadyMember = errors.New("already a member of this group")

	// ErrAlreadyParticipant is reserved for strict participation writes.
	// The participation primitives are idempotent and never return it.
	ErrAlreadyParticipant = errors.New("already participating in this vibe")

	// ErrForbidden means the caller is not allowed to act on the target group or vibe.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is the sentinel matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrCodeSpaceExhausted means no unused join code was found within the retry budget.
	ErrCodeSpaceExhausted = errors.New("join code space exhausted")

	// ErrTransient marks store or identity failures that are safe to retry.
	ErrTransient = errors.New("transient failure")
)

// ValidationError carries the offending field name.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds while the
// original cause stays reachable through errors.Is/As.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// NotFound formats a not-found error for a kind of record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Retryable reports whether the caller may retry the failed operation.
// ValidationFailed and Forbidden are never retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// FieldOf returns the field carried by a ValidationError in err's chain.
func FieldOf(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field, true
	}
	return "", false
}
