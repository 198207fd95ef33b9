/*
ledger.go - Append-only client ledger

PURPOSE:
  The Ledger is the source of truth for what a client owes. Balance is always
  computed by summarizing entries; there is no stored balance that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete. The only mutation is settling a
     pending entry to completed or failed.
  2. IDEMPOTENT: same idempotency key = same entry (no duplicates)
  3. NO PARTIAL READS: a read failure aborts the summary. Callers must not
     fall back to a zero balance.

CORRECTIONS:
  A wrong entry is never edited. A KindReversal entry with the opposite sign
  and Reference set to the original ID is appended instead.

SEE ALSO:
  - balance.go: Summarize / Statement
  - store/memory.go: in-memory Store for tests
  - store/sqlstore: relational Store
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists ledger entries.
type Store interface {
	// AppendEntries persists entries atomically. Either all are written or none.
	// Returns ErrDuplicateIdempotencyKey when a key already exists.
	AppendEntries(ctx context.Context, entries []Entry) error

	// ClientEntries returns all entries for a client ordered by CreatedAt.
	ClientEntries(ctx context.Context, clientID string) ([]Entry, error)

	// GetEntry returns one entry or ErrEntryNotFound.
	GetEntry(ctx context.Context, id string) (Entry, error)

	// EntryExists checks whether an idempotency key was already used.
	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)

	// SettleEntry moves a pending entry to completed or failed.
	SettleEntry(ctx context.Context, id string, status EntryStatus) error
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the client-facing view over a Store.
type Ledger interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	AppendBatch(ctx context.Context, entries []Entry) ([]Entry, error)
	Entries(ctx context.Context, clientID string) ([]Entry, error)
	Summary(ctx context.Context, clientID string) (Summary, error)
	Settle(ctx context.Context, entryID string, status EntryStatus) (Entry, error)
	Reverse(ctx context.Context, entryID, reason, actor string) (Entry, error)
}

// DefaultLedger implements Ledger on top of a Store.
type DefaultLedger struct {
	Store  Store
	Policy BalancePolicy
	Now    func() time.Time
}

func New(store Store, policy BalancePolicy) *DefaultLedger {
	return &DefaultLedger{Store: store, Policy: policy, Now: time.Now}
}

// Append validates and persists one entry, filling ID and CreatedAt.
func (l *DefaultLedger) Append(ctx context.Context, e Entry) (Entry, error) {
	out, err := l.AppendBatch(ctx, []Entry{e})
	if err != nil {
		return Entry{}, err
	}
	return out[0], nil
}

// AppendBatch persists several entries atomically.
func (l *DefaultLedger) AppendBatch(ctx context.Context, entries []Entry) ([]Entry, error) {
	keys := make(map[string]bool)
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Amount.IsZero() {
			return nil, ErrZeroAmount
		}
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return nil, ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
			exists, err := l.Store.EntryExists(ctx, e.IdempotencyKey)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrDuplicateIdempotencyKey
			}
		}
		out[i] = l.fill(e)
	}
	if err := l.Store.AppendEntries(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *DefaultLedger) fill(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusCompleted
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.Now().UTC()
	}
	return e
}

func (l *DefaultLedger) Entries(ctx context.Context, clientID string) ([]Entry, error) {
	return l.Store.ClientEntries(ctx, clientID)
}

// Summary computes the client's balance. Any read failure is returned as is.
func (l *DefaultLedger) Summary(ctx context.Context, clientID string) (Summary, error) {
	entries, err := l.Store.ClientEntries(ctx, clientID)
	if err != nil {
		return Summary{}, fmt.Errorf("load ledger for client %s: %w", clientID, err)
	}
	return Summarize(clientID, entries, l.Policy), nil
}

// Settle confirms or fails a pending entry.
func (l *DefaultLedger) Settle(ctx context.Context, entryID string, status EntryStatus) (Entry, error) {
	e, err := l.Store.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if e.Status == status {
		return e, nil
	}
	if e.Status != StatusPending || status == StatusPending || !status.Valid() {
		return Entry{}, &SettlementError{EntryID: entryID, From: e.Status, To: status}
	}
	if err := l.Store.SettleEntry(ctx, entryID, status); err != nil {
		return Entry{}, err
	}
	e.Status = status
	return e, nil
}

// Reverse appends a completed entry cancelling out entryID. Pending entries are
// settled, not reversed, and entries the policy does not count have nothing to
// undo. Reversing twice is rejected through the idempotency key.
func (l *DefaultLedger) Reverse(ctx context.Context, entryID, reason, actor string) (Entry, error) {
	orig, err := l.Store.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	switch {
	case orig.Status == StatusPending:
		return Entry{}, &ReversalError{EntryID: entryID, Status: orig.Status, Reason: "settle it instead"}
	case !l.Policy.Counts(orig):
		return Entry{}, &ReversalError{EntryID: entryID, Status: orig.Status, Reason: "not counted in the balance"}
	}
	return l.Append(ctx, Entry{
		ClientID:        orig.ClientID,
		Amount:          orig.Amount.Neg(),
		Kind:            KindReversal,
		Status:          StatusCompleted,
		SessionID:       orig.SessionID,
		ClientPackageID: orig.ClientPackageID,
		InvoiceID:       orig.InvoiceID,
		Reference:       orig.ID,
		Reason:          reason,
		IdempotencyKey:  "reversal:" + orig.ID,
		CreatedBy:       actor,
	})
}
