package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/ledger"
)

var paymentMethods = map[string]bool{
	"cash": true, "card": true, "transfer": true, "online": true, "other": true,
}

// wholeCents reports whether d fits the ledger's two decimal places.
func wholeCents(d decimal.Decimal) bool { return d.Equal(d.Round(2)) }

func (in PaymentInput) validate() error {
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if !wholeCents(in.Amount) {
		return invalid("amount", "must have at most 2 decimal places")
	}
	if !paymentMethods[strings.ToLower(in.Method)] {
		return invalid("method", "must be cash, card, transfer, online or other")
	}
	if in.Status != "" && !in.Status.Valid() {
		return invalid("status", "must be pending, completed or failed")
	}
	return nil
}

func (in PaymentInput) entry(clientID, actor string, with func(*ledger.Entry)) ledger.Entry {
	e := ledger.Entry{
		ClientID:  clientID,
		Amount:    ledger.MoneyFromDecimal(in.Amount),
		Kind:      ledger.KindPayment,
		Status:    in.Status,
		Method:    strings.ToLower(in.Method),
		Reason:    in.Reason,
		CreatedBy: actor,
	}
	if e.Status == "" {
		e.Status = ledger.StatusCompleted
	}
	if with != nil {
		with(&e)
	}
	return e
}

// RecordPayment appends money received from a client.
func (s *Service) RecordPayment(ctx context.Context, clientID string, in PaymentInput) (ledger.Entry, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return ledger.Entry{}, err
	}
	if err := in.validate(); err != nil {
		return ledger.Entry{}, err
	}

	var out ledger.Entry
	err = s.inTx(ctx, func(r Repository) error {
		if _, err := s.visibleClient(ctx, r, p, clientID); err != nil {
			return err
		}
		out, err = s.ledgerFor(r).Append(ctx, in.entry(clientID, p.ProfileID, nil))
		return err
	})
	return out, err
}

// ChargeInput is a manual charge or adjustment.
type ChargeInput struct {
	Amount     decimal.Decimal // positive: what the client owes
	Reason     string
	Adjustment bool // record as a correction rather than a sale
	Status     ledger.EntryStatus
}

// RecordCharge appends a manual charge (or adjustment) against a client.
func (s *Service) RecordCharge(ctx context.Context, clientID string, in ChargeInput) (ledger.Entry, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !in.Amount.IsPositive() {
		return ledger.Entry{}, invalid("amount", "must be positive")
	}
	if !wholeCents(in.Amount) {
		return ledger.Entry{}, invalid("amount", "must have at most 2 decimal places")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return ledger.Entry{}, invalid("reason", "is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return ledger.Entry{}, invalid("status", "must be pending, completed or failed")
	}
	kind := ledger.KindCharge
	if in.Adjustment {
		kind = ledger.KindAdjustment
	}

	var out ledger.Entry
	err = s.inTx(ctx, func(r Repository) error {
		if _, err := s.visibleClient(ctx, r, p, clientID); err != nil {
			return err
		}
		out, err = s.ledgerFor(r).Append(ctx, ledger.Entry{
			ClientID:  clientID,
			Amount:    ledger.MoneyFromDecimal(in.Amount.Neg()),
			Kind:      kind,
			Status:    in.Status,
			Reason:    in.Reason,
			CreatedBy: p.ProfileID,
		})
		return err
	})
	return out, err
}

// SettleEntry confirms or fails a pending ledger entry.
func (s *Service) SettleEntry(ctx context.Context, entryID string, status ledger.EntryStatus) (ledger.Entry, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return ledger.Entry{}, err
	}
	var out ledger.Entry
	err = s.inTx(ctx, func(r Repository) error {
		e, err := r.GetEntry(ctx, entryID)
		if err != nil {
			return mapLedgerErr(err, entryID)
		}
		if _, err := s.visibleClient(ctx, r, p, e.ClientID); err != nil {
			return notFound("ledger entry", entryID)
		}
		out, err = s.ledgerFor(r).Settle(ctx, entryID, status)
		return mapLedgerErr(err, entryID)
	})
	return out, err
}

// ReverseEntry cancels a ledger entry by appending its opposite.
func (s *Service) ReverseEntry(ctx context.Context, entryID, reason string) (ledger.Entry, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return ledger.Entry{}, err
	}
	var out ledger.Entry
	err = s.inTx(ctx, func(r Repository) error {
		e, err := r.GetEntry(ctx, entryID)
		if err != nil {
			return mapLedgerErr(err, entryID)
		}
		if _, err := s.visibleClient(ctx, r, p, e.ClientID); err != nil {
			return notFound("ledger entry", entryID)
		}
		if e.Kind == ledger.KindReversal {
			return invalid("entry_id", "reversals cannot be reversed")
		}
		out, err = s.ledgerFor(r).Reverse(ctx, entryID, reason, p.ProfileID)
		return mapLedgerErr(err, entryID)
	})
	return out, err
}

// Balance returns the client's ledger summary. A failed read is returned as
// an error; it never turns into a zero balance.
func (s *Service) Balance(ctx context.Context, clientID string) (ledger.Summary, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return ledger.Summary{}, err
	}
	if _, err := s.visibleClient(ctx, s.repo, p, clientID); err != nil {
		return ledger.Summary{}, err
	}
	return s.ledgerFor(s.repo).Summary(ctx, clientID)
}

// Statement returns the client's entries with a running balance.
func (s *Service) Statement(ctx context.Context, clientID string) ([]ledger.StatementLine, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleClient(ctx, s.repo, p, clientID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ClientEntries(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return ledger.Statement(entries, s.cfg.BalancePolicy), nil
}

func mapLedgerErr(err error, id string) error {
	var se *ledger.SettlementError
	var re *ledger.ReversalError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrEntryNotFound):
		return notFound("ledger entry", id)
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		return fmt.Errorf("ledger entry %s: %w", id, ErrDuplicate)
	case errors.As(err, &se):
		return &TransitionError{Kind: "ledger entry", ID: id, From: string(se.From), To: string(se.To)}
	case errors.As(err, &re):
		return &TransitionError{Kind: "ledger entry", ID: id, From: string(re.Status), To: "reversed"}
	}
	return err
}
