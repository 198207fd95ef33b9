package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, number, client_id, amount, tax, total, status, issue_date, due_date,
	paid_at, items_json, notes, created_by, created_at, updated_at`

// NextInvoiceNumber increments the invoice counter and returns the new value.
// The increment and the read are one statement, so two callers always get
// different values; the row stays locked until the surrounding transaction ends.
func (s *Store) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'invoice' RETURNING value`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate invoice number: %w", mapErr(err))
	}
	return n, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv studio.Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("invoice %s items: %w", inv.Number, err)
	}
	if inv.Items == nil {
		items = []byte("[]")
	}
	_, err = s.exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Number, inv.ClientID, inv.Amount.String(), inv.Tax.String(), inv.Total.String(),
		string(inv.Status), formatDate(inv.IssueDate), formatDate(inv.DueDate), nullTime(inv.PaidAt),
		string(items), inv.Notes, inv.CreatedBy, formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice %s: %w", inv.Number, err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (studio.Invoice, error) {
	inv, err := scanInvoice(s.queryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
	if err != nil {
		return studio.Invoice{}, notFoundOr(err, "invoice", id)
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, f studio.InvoiceFilter) ([]studio.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	var args []any
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.DueBefore.IsZero() {
		query += ` AND due_date < ?`
		args = append(args, formatDate(f.DueBefore))
	}
	query += ` ORDER BY number ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []studio.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, mapErr(rows.Err())
}

// UpdateInvoiceStatus moves the status only while the row is still in from.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id string, from, to studio.InvoiceStatus, paidAt *time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE invoices SET status = ?, paid_at = COALESCE(?, paid_at), updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), nullTime(paidAt), formatTime(nowUTC()), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	return affected(res, "invoice "+id)
}

func scanInvoice(sc scanner) (studio.Invoice, error) {
	var (
		inv                  studio.Invoice
		amount, tax, total   string
		status               string
		issue, due           string
		paidAt               sql.NullString
		items                string
		createdAt, updatedAt string
	)
	err := sc.Scan(&inv.ID, &inv.Number, &inv.ClientID, &amount, &tax, &total, &status,
		&issue, &due, &paidAt, &items, &inv.Notes, &inv.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return inv, err
	}
	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return inv, fmt.Errorf("invoice %s amount: %w", inv.ID, err)
	}
	if inv.Tax, err = decimal.NewFromString(tax); err != nil {
		return inv, fmt.Errorf("invoice %s tax: %w", inv.ID, err)
	}
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return inv, fmt.Errorf("invoice %s total: %w", inv.ID, err)
	}
	if err := json.Unmarshal([]byte(items), &inv.Items); err != nil {
		return inv, fmt.Errorf("invoice %s items: %w", inv.ID, err)
	}
	inv.Status = studio.InvoiceStatus(status)
	inv.IssueDate = parseDate(issue)
	inv.DueDate = parseDate(due)
	if paidAt.Valid {
		t := parseTime(paidAt.String)
		inv.PaidAt = &t
	}
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return inv, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// =============================================================================
// EXPENSES
// =============================================================================

const expenseColumns = `id, category, vendor, description, amount, expense_date, recurring,
	tax_deductible, status, created_by, created_at, updated_at`

func (s *Store) CreateExpense(ctx context.Context, e studio.Expense) error {
	_, err := s.exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Category, e.Vendor, e.Description, e.Amount.String(), formatDate(e.Date),
		boolInt(e.Recurring), boolInt(e.TaxDeductible), string(e.Status), e.CreatedBy,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (studio.Expense, error) {
	e, err := scanExpense(s.queryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if err != nil {
		return studio.Expense{}, notFoundOr(err, "expense", id)
	}
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e studio.Expense) error {
	res, err := s.exec(ctx, `
		UPDATE expenses SET category = ?, vendor = ?, description = ?, amount = ?, expense_date = ?,
			recurring = ?, tax_deductible = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		e.Category, e.Vendor, e.Description, e.Amount.String(), formatDate(e.Date),
		boolInt(e.Recurring), boolInt(e.TaxDeductible), string(e.Status), formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return rowsOrNotFound(res, "expense", e.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return rowsOrNotFound(res, "expense", id)
}

// ListExpenses filters on category and the [From, To) date range.
func (s *Store) ListExpenses(ctx context.Context, f studio.ExpenseFilter) ([]studio.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE 1=1`
	var args []any
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		query += ` AND expense_date >= ?`
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND expense_date < ?`
		args = append(args, formatDate(f.To))
	}
	query += ` ORDER BY expense_date ASC, created_at ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []studio.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

func scanExpense(sc scanner) (studio.Expense, error) {
	var (
		e                        studio.Expense
		amount, date, status     string
		recurring, taxDeductible int
		createdAt, updatedAt     string
	)
	err := sc.Scan(&e.ID, &e.Category, &e.Vendor, &e.Description, &amount, &date,
		&recurring, &taxDeductible, &status, &e.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return e, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("expense %s amount: %w", e.ID, err)
	}
	e.Date = parseDate(date)
	e.Recurring = recurring != 0
	e.TaxDeductible = taxDeductible != 0
	e.Status = studio.ExpenseStatus(status)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}
