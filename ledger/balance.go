/*
balance.go - Client balance computed from ledger entries

CONTRACT:
  total_charges  = |sum of negative entries|
  total_payments = sum of positive entries with status completed
  balance        = total_charges - total_payments

  Positive balance = client owes money. Zero or negative = paid up or in credit.

STATUS ASYMMETRY:
  By default charges are counted whatever their status, while payments only
  count once completed. BalancePolicy.SymmetricStatus switches both sides to
  completed-only. The default is kept until the product decides otherwise.

SEE ALSO:
  - ledger.go: Ledger.Summary reads entries and calls Summarize
*/
package ledger

import (
	"sort"
	"time"
)

// BalancePolicy controls which entries count toward a summary.
type BalancePolicy struct {
	// SymmetricStatus counts only completed entries on the charge side too.
	SymmetricStatus bool
}

// Summary is the computed financial position of one client.
type Summary struct {
	ClientID      string
	TotalCharges  Money
	TotalPayments Money
	Balance       Money
	EntryCount    int
}

// Owes reports whether the client has an outstanding amount.
func (s Summary) Owes() bool { return s.Balance.IsPositive() }

// Summarize computes the summary for a set of entries belonging to one client.
// A client with no entries yields an all-zero summary.
func Summarize(clientID string, entries []Entry, policy BalancePolicy) Summary {
	sum := Summary{ClientID: clientID, EntryCount: len(entries)}
	for _, e := range entries {
		if policy.Counts(e) {
			if e.IsCharge() {
				sum.TotalCharges = sum.TotalCharges.Add(e.Amount.Abs())
			} else if e.IsCredit() {
				sum.TotalPayments = sum.TotalPayments.Add(e.Amount)
			}
		}
	}
	sum.Balance = sum.TotalCharges.Sub(sum.TotalPayments)
	return sum
}

// Counts reports whether e moves the balance under the policy.
func (p BalancePolicy) Counts(e Entry) bool {
	if e.IsCharge() && !p.SymmetricStatus {
		return true
	}
	return e.Status == StatusCompleted
}

// =============================================================================
// STATEMENT - Chronological entries with running balance
// =============================================================================

// StatementLine is one entry with the balance owed after it.
type StatementLine struct {
	Entry   Entry
	Counted bool  // false when the policy excludes the entry (e.g. pending payment)
	Balance Money // amount owed after this line
}

// Statement orders entries by creation time and annotates each with the
// running amount owed.
func Statement(entries []Entry, policy BalancePolicy) []StatementLine {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	lines := make([]StatementLine, 0, len(sorted))
	var owed Money
	for _, e := range sorted {
		counted := policy.Counts(e)
		if counted {
			// owed moves opposite to the signed amount
			owed = owed.Sub(e.Amount)
		}
		lines = append(lines, StatementLine{Entry: e, Counted: counted, Balance: owed})
	}
	return lines
}

// Between returns entries created in [from, to).
func Between(entries []Entry, from, to time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out
}
