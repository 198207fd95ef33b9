package studio

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/ledger"
)

// ExpenseInput carries the editable expense fields.
type ExpenseInput struct {
	Category      string
	Vendor        string
	Description   string
	Amount        decimal.Decimal
	Date          time.Time
	Recurring     bool
	TaxDeductible bool
	Status        ExpenseStatus
}

func (in ExpenseInput) validate() error {
	if strings.TrimSpace(in.Category) == "" {
		return invalid("category", "is required")
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if in.Date.IsZero() {
		return invalid("date", "is required")
	}
	if in.Status != "" && in.Status != ExpensePending && in.Status != ExpensePaid {
		return invalid("status", "must be pending or paid")
	}
	return nil
}

func (in ExpenseInput) apply(e *Expense, now time.Time) {
	e.Category = strings.ToLower(strings.TrimSpace(in.Category))
	e.Vendor = in.Vendor
	e.Description = in.Description
	e.Amount = in.Amount
	e.Date = dayOf(in.Date)
	e.Recurring = in.Recurring
	e.TaxDeductible = in.TaxDeductible
	if in.Status != "" {
		e.Status = in.Status
	}
	if e.Status == "" {
		e.Status = ExpensePending
	}
	e.UpdatedAt = now
}

func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (Expense, error) {
	p, err := Require(ctx, CapManageExpenses)
	if err != nil {
		return Expense{}, err
	}
	if err := in.validate(); err != nil {
		return Expense{}, err
	}
	now := s.Now()
	e := Expense{ID: uuid.NewString(), CreatedBy: p.ProfileID, CreatedAt: now}
	in.apply(&e, now)
	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return Expense{}, err
	}
	return e, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, in ExpenseInput) (Expense, error) {
	if _, err := Require(ctx, CapManageExpenses); err != nil {
		return Expense{}, err
	}
	if err := in.validate(); err != nil {
		return Expense{}, err
	}
	var out Expense
	err := s.inTx(ctx, func(r Repository) error {
		e, err := r.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		in.apply(&e, s.Now())
		out = e
		return r.UpdateExpense(ctx, e)
	})
	return out, err
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if _, err := Require(ctx, CapManageExpenses); err != nil {
		return err
	}
	return s.repo.DeleteExpense(ctx, id)
}

func (s *Service) ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error) {
	if _, err := Require(ctx, CapManageExpenses); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, f)
}

// =============================================================================
// PROFIT AND LOSS
// =============================================================================

// Period is a half-open date range [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

// Month returns the calendar month containing t.
func Month(t time.Time) Period {
	y, m, _ := t.UTC().Date()
	from := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return Period{From: from, To: from.AddDate(0, 1, 0)}
}

func (p Period) Valid() bool { return !p.From.IsZero() && p.To.After(p.From) }

// ProfitLoss is income against expenses over a period.
type ProfitLoss struct {
	Period     Period
	Income     decimal.Decimal // completed payments received, net of refunds
	Expenses   decimal.Decimal
	Net        decimal.Decimal
	ByCategory map[string]decimal.Decimal
}

// ProfitAndLoss sums completed incoming money and recorded expenses.
func (s *Service) ProfitAndLoss(ctx context.Context, period Period) (ProfitLoss, error) {
	if _, err := Require(ctx, CapViewReports); err != nil {
		return ProfitLoss{}, err
	}
	if !period.Valid() {
		return ProfitLoss{}, invalid("period", "to must be after from")
	}

	entries, err := s.repo.EntriesBetween(ctx, period.From, period.To)
	if err != nil {
		return ProfitLoss{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, ExpenseFilter{From: period.From, To: period.To})
	if err != nil {
		return ProfitLoss{}, err
	}

	pl := ProfitLoss{
		Period:     period,
		Income:     decimal.Zero,
		Expenses:   decimal.Zero,
		ByCategory: make(map[string]decimal.Decimal),
	}
	for _, e := range entries {
		if e.Status != ledger.StatusCompleted {
			continue
		}
		switch e.Kind {
		case ledger.KindPayment, ledger.KindRefund:
			pl.Income = pl.Income.Add(e.Amount.Decimal)
		}
	}
	for _, e := range expenses {
		pl.Expenses = pl.Expenses.Add(e.Amount)
		pl.ByCategory[e.Category] = pl.ByCategory[e.Category].Add(e.Amount)
	}
	pl.Net = pl.Income.Sub(pl.Expenses)
	return pl, nil
}
