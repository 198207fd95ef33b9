/*
invoices.go - Invoice numbering and lifecycle

NUMBERING:
  Numbers come from a counter row incremented atomically inside the same
  transaction that inserts the invoice. Two concurrent creations can never
  read the same value, and a rolled-back creation leaves a gap rather than a
  duplicate. Format: prefix + zero-padded sequence, "INV-0001".

STATES:
  draft ──► sent ──► paid
    │         ├────► overdue ──► paid
    │         │          └─────► cancelled
    └─────────┴────► cancelled

  Invoices are independent of the ledger. Marking one paid records PaidAt
  and nothing else.
*/
package studio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:   {InvoiceSent, InvoiceCancelled},
	InvoiceSent:    {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceOverdue: {InvoicePaid, InvoiceCancelled},
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
		return true
	}
	return false
}

// CanMoveTo reports whether the transition table allows s → to.
func (s InvoiceStatus) CanMoveTo(to InvoiceStatus) bool {
	for _, t := range invoiceTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// FormatInvoiceNumber renders sequence n, e.g. ("INV-", 4, 7) → "INV-0007".
// Sequences wider than digits are printed in full.
func FormatInvoiceNumber(prefix string, digits int, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, digits, n)
}

// InvoiceInput describes a new invoice. When Items are given, Amount is
// their sum; otherwise Amount is used as is.
type InvoiceInput struct {
	ClientID  string
	Amount    decimal.Decimal
	Tax       decimal.Decimal
	IssueDate time.Time // defaults to today
	DueDate   time.Time // defaults to IssueDate + InvoiceDueDays
	Items     []LineItem
	Notes     string
}

func (in InvoiceInput) validate() error {
	if in.ClientID == "" {
		return invalid("client_id", "is required")
	}
	if in.Tax.IsNegative() {
		return invalid("tax", "must not be negative")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.Description) == "" {
			return invalid(fmt.Sprintf("items[%d].description", i), "is required")
		}
		if it.Quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if it.UnitPrice.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
	}
	if len(in.Items) == 0 && !in.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if !in.DueDate.IsZero() && !in.IssueDate.IsZero() && in.DueDate.Before(in.IssueDate) {
		return invalid("due_date", "must not be before issue_date")
	}
	return nil
}

// CreateInvoice allocates the next number and stores a draft invoice.
func (s *Service) CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, error) {
	p, err := Require(ctx, CapManageInvoices)
	if err != nil {
		return Invoice{}, err
	}
	if err := in.validate(); err != nil {
		return Invoice{}, err
	}

	var out Invoice
	err = s.inTx(ctx, func(r Repository) error {
		if _, err := r.GetClient(ctx, in.ClientID); err != nil {
			return err
		}
		seq, err := r.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}

		now := s.Now()
		inv := Invoice{
			ID:        uuid.NewString(),
			Number:    FormatInvoiceNumber(s.cfg.InvoicePrefix, s.cfg.InvoiceDigits, seq),
			ClientID:  in.ClientID,
			Amount:    in.Amount,
			Tax:       in.Tax,
			Status:    InvoiceDraft,
			IssueDate: dayOf(in.IssueDate),
			DueDate:   dayOf(in.DueDate),
			Items:     in.Items,
			Notes:     in.Notes,
			CreatedBy: p.ProfileID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if in.IssueDate.IsZero() {
			inv.IssueDate = dayOf(now)
		}
		if in.DueDate.IsZero() {
			inv.DueDate = inv.IssueDate.AddDate(0, 0, s.cfg.InvoiceDueDays)
		}
		if len(in.Items) > 0 {
			inv.Amount = decimal.Zero
			for _, it := range in.Items {
				inv.Amount = inv.Amount.Add(it.Total())
			}
		}
		inv.Total = inv.Amount.Add(inv.Tax)

		if err := r.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	return out, err
}

func (s *Service) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	if _, err := Require(ctx, CapManageInvoices); err != nil {
		return Invoice{}, err
	}
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error) {
	if _, err := Require(ctx, CapManageInvoices); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, f)
}

// UpdateInvoiceStatus moves an invoice along the transition table. Asking
// for the current status is a no-op.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id string, to InvoiceStatus) (Invoice, error) {
	if _, err := Require(ctx, CapManageInvoices); err != nil {
		return Invoice{}, err
	}
	if !to.Valid() {
		return Invoice{}, invalid("status", "unknown invoice status")
	}

	var out Invoice
	err := s.inTx(ctx, func(r Repository) error {
		inv, err := r.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == to {
			out = inv
			return nil
		}
		if !inv.Status.CanMoveTo(to) {
			return &TransitionError{Kind: "invoice", ID: id, From: string(inv.Status), To: string(to)}
		}
		var paidAt *time.Time
		if to == InvoicePaid {
			now := s.Now()
			paidAt = &now
		}
		if err := r.UpdateInvoiceStatus(ctx, id, inv.Status, to, paidAt); err != nil {
			return err
		}
		inv.Status = to
		inv.PaidAt = paidAt
		inv.UpdatedAt = s.Now()
		out = inv
		return nil
	})
	return out, err
}

// MarkOverdueInvoices moves sent invoices whose due date has passed to
// overdue. Returns how many changed.
func (s *Service) MarkOverdueInvoices(ctx context.Context) (int, error) {
	if _, err := Require(ctx, CapManageInvoices); err != nil {
		return 0, err
	}
	today := dayOf(s.Now())
	due, err := s.repo.ListInvoices(ctx, InvoiceFilter{Status: InvoiceSent, DueBefore: today})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, inv := range due {
		err := s.inTx(ctx, func(r Repository) error {
			return r.UpdateInvoiceStatus(ctx, inv.ID, InvoiceSent, InvoiceOverdue, nil)
		})
		switch {
		case err == nil:
			n++
		case IsRetryable(err):
			// paid or cancelled meanwhile
		default:
			return n, err
		}
	}
	return n, nil
}
