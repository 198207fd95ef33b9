/*
errors.go - Error taxonomy for studio operations

ERROR CATEGORIES:
  1. Validation      - bad input, recoverable by the caller (ErrValidation)
  2. Access          - ErrUnauthorized (who are you?), ErrForbidden (not allowed)
  3. Not found       - ErrNotFound
  4. Invariants      - insufficient sessions, expired package, bad transition...
  5. Concurrency     - ErrConcurrentModification (retryable)
  6. Transient       - ErrTransient, wraps busy/connection failures (retryable)

USAGE:
  if errors.Is(err, studio.ErrInsufficientSessions) { ... }

  var te *studio.TransitionError
  if errors.As(err, &te) { ... te.From, te.To ... }

SEE ALSO:
  - retry.go: retry policy keyed on IsRetryable
  - api/handlers.go: HTTP status mapping
*/
package studio

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrDuplicate    = errors.New("already exists")

	// ErrInsufficientSessions is returned when a package has no sessions left.
	ErrInsufficientSessions = errors.New("insufficient package sessions")

	// ErrPackageExpired is returned when a package is past its expiry date.
	ErrPackageExpired = errors.New("package expired")

	// ErrPackageInactive is returned when a client package is cancelled/expired.
	ErrPackageInactive = errors.New("package not active")

	// ErrPackageInUse is returned when deleting a catalog package that was sold.
	ErrPackageInUse = errors.New("package is referenced by client packages")

	// ErrInvalidTransition is returned for a forbidden session/invoice status move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSessionConsumed is returned when deleting a session that consumed a
	// package unit which was never refunded.
	ErrSessionConsumed = errors.New("session consumed a package session")

	// ErrConcurrentModification is returned when a guarded update lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrTransient wraps temporary backend failures (busy database, dropped connection).
	ErrTransient = errors.New("transient backend failure")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// InsufficientSessionsError provides details about an exhausted package.
type InsufficientSessionsError struct {
	ClientPackageID string
	Remaining       int
}

func (e *InsufficientSessionsError) Error() string {
	return fmt.Sprintf("client package %s has %d sessions remaining", e.ClientPackageID, e.Remaining)
}

func (e *InsufficientSessionsError) Unwrap() error { return ErrInsufficientSessions }

// TransitionError describes a refused status change.
type TransitionError struct {
	Kind string // "session", "invoice" or "ledger entry"
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrTransient)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
