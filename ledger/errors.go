package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrZeroAmount is returned for entries that would not move the balance.
	ErrZeroAmount = errors.New("ledger entry amount must not be zero")

	// ErrStatusTransition is returned when settling an entry that is not pending.
	ErrStatusTransition = errors.New("ledger entry status cannot change")

	// ErrNotReversible is returned when reversing an entry whose effect on the
	// balance is not final.
	ErrNotReversible = errors.New("ledger entry cannot be reversed")
)

// SettlementError describes a refused status change on an entry.
type SettlementError struct {
	EntryID string
	From    EntryStatus
	To      EntryStatus
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("entry %s: cannot move from %s to %s", e.EntryID, e.From, e.To)
}

func (e *SettlementError) Unwrap() error { return ErrStatusTransition }

// ReversalError describes a refused reversal.
type ReversalError struct {
	EntryID string
	Status  EntryStatus
	Reason  string
}

func (e *ReversalError) Error() string {
	return fmt.Sprintf("entry %s (%s) cannot be reversed: %s", e.EntryID, e.Status, e.Reason)
}

func (e *ReversalError) Unwrap() error { return ErrNotReversible }
