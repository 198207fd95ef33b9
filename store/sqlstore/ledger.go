package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/studio-engine/ledger"
)

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

const entryColumns = `id, client_id, amount, kind, status, method, session_id, client_package_id,
	invoice_id, reference, reason, idempotency_key, created_by, created_at`

// AppendEntries inserts entries atomically.
func (s *Store) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	return s.atomic(ctx, func(tx *Store) error {
		for _, e := range entries {
			if err := tx.appendEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) appendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := s.exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.ClientID,
		e.Amount.Decimal.String(),
		string(e.Kind),
		string(e.Status),
		e.Method,
		nullString(e.SessionID),
		nullString(e.ClientPackageID),
		nullString(e.InvoiceID),
		nullString(e.Reference),
		e.Reason,
		nullString(e.IdempotencyKey),
		e.CreatedBy,
		formatTime(e.CreatedAt),
	)
	if isDuplicate(err) {
		return ledger.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ClientEntries returns a client's entries oldest first.
func (s *Store) ClientEntries(ctx context.Context, clientID string) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE client_id = ?
		ORDER BY created_at ASC, id ASC`, clientID)
}

// EntriesBetween returns entries of all clients created in [from, to).
func (s *Store) EntriesBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`, formatTime(from), formatTime(to))
}

func (s *Store) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	entries, err := s.queryEntries(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", id, ledger.ErrEntryNotFound)
	}
	return entries[0], nil
}

func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?`, idempotencyKey,
	).Scan(&count)
	return count > 0, mapErr(err)
}

// SettleEntry moves a pending entry to status. Anything but a pending row is refused.
func (s *Store) SettleEntry(ctx context.Context, id string, status ledger.EntryStatus) error {
	res, err := s.exec(ctx,
		`UPDATE ledger_entries SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(ledger.StatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := s.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	return &ledger.SettlementError{EntryID: id, From: cur.Status, To: status}
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, mapErr(rows.Err())
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                                        ledger.Entry
		amount, kind, status, createdAt          string
		sessionID, cpID, invoiceID, ref, idemKey sql.NullString
	)
	err := rows.Scan(&e.ID, &e.ClientID, &amount, &kind, &status, &e.Method,
		&sessionID, &cpID, &invoiceID, &ref, &e.Reason, &idemKey, &e.CreatedBy, &createdAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	m, err := ledger.ParseMoney(amount)
	if err != nil {
		return e, fmt.Errorf("ledger entry %s amount %q: %w", e.ID, amount, err)
	}
	e.Amount = m
	e.Kind = ledger.EntryKind(kind)
	e.Status = ledger.EntryStatus(status)
	e.SessionID = sessionID.String
	e.ClientPackageID = cpID.String
	e.InvoiceID = invoiceID.String
	e.Reference = ref.String
	e.IdempotencyKey = idemKey.String
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}
