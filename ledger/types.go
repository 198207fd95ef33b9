/*
Package ledger provides the signed money ledger used for client billing.

PURPOSE:
  Every charge, payment, refund and correction against a client lives in a
  single signed ledger. Negative amounts are charges (the client owes the
  studio), positive amounts are money received. The client's balance is never
  stored: it is always computed by summarizing entries.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amount (never float64)
  - Entry: one signed ledger row
  - EntryKind / EntryStatus: what the row is and whether it settled

DESIGN PRINCIPLES:
  1. Append-only: entries are never edited, only reversed. The single
     exception is the settlement status of a pending entry.
  2. Precision: shopspring/decimal for every amount
  3. Idempotency: entries may carry a key; a second write with the same key
     is rejected with ErrDuplicateIdempotencyKey

USAGE:
  entry := ledger.Entry{
      ClientID: "client-1",
      Amount:   ledger.NewMoney(-1000),
      Kind:     ledger.KindCharge,
      Status:   ledger.StatusCompleted,
  }

SEE ALSO:
  - balance.go: Summary and statement computation
  - ledger.go: Ledger and Store interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a decimal currency amount. The ledger is single-currency.
type Money struct {
	decimal.Decimal
}

func NewMoney(value int64) Money { return Money{decimal.NewFromInt(value)} }

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{d}
}

// ParseMoney parses a decimal string such as "1000" or "49.90".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d}, nil
}

// MustParseMoney is like ParseMoney but panics on malformed input.
// For literals in tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{m.Decimal.Add(o.Decimal)} }
func (m Money) Sub(o Money) Money { return Money{m.Decimal.Sub(o.Decimal)} }
func (m Money) Neg() Money { return Money{m.Decimal.Neg()} }
func (m Money) Abs() Money { return Money{m.Decimal.Abs()} }
func (m Money) Equal(o Money) bool { return m.Decimal.Equal(o.Decimal) }

// String renders the amount with two decimal places.
func (m Money) String() string { return m.Decimal.StringFixed(2) }

// =============================================================================
// ENTRY
// =============================================================================

type EntryKind string

const (
	KindCharge     EntryKind = "charge"     // Client owes money (package sale, session fee)
	KindPayment    EntryKind = "payment"    // Money received from the client
	KindRefund     EntryKind = "refund"     // Money returned to the client
	KindAdjustment EntryKind = "adjustment" // Manual correction by staff
	KindReversal   EntryKind = "reversal"   // Undo of a previous entry
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// Valid reports whether s is a known status.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Entry is one signed row in the client ledger.
type Entry struct {
	ID              string
	ClientID        string
	Amount          Money // negative = charge, positive = payment received
	Kind            EntryKind
	Status          EntryStatus
	Method          string // cash, card, transfer... empty for charges
	SessionID       string
	ClientPackageID string
	InvoiceID       string
	Reference       string // ID of the entry this one reverses, if any
	Reason          string
	IdempotencyKey  string
	CreatedBy       string
	CreatedAt       time.Time
}

// IsCharge reports whether the entry increases what the client owes.
func (e Entry) IsCharge() bool { return e.Amount.IsNegative() }

// IsCredit reports whether the entry reduces what the client owes.
func (e Entry) IsCredit() bool { return e.Amount.IsPositive() }
