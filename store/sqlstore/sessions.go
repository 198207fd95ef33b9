package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, client_id, trainer_id, client_package_id, session_type, location,
	starts_at, ends_at, price, notes, status, version, created_at, updated_at`

func (s *Store) CreateSession(ctx context.Context, sess studio.Session) error {
	_, err := s.exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ClientID, sess.TrainerID, nullString(sess.ClientPackageID),
		string(sess.Type), sess.Location, formatTime(sess.StartsAt), formatTime(sess.EndsAt),
		nullDecimal(sess.Price), sess.Notes, string(sess.Status), sess.Version,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (studio.Session, error) {
	sess, err := scanSession(s.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return studio.Session{}, notFoundOr(err, "session", id)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, f studio.SessionFilter) ([]studio.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.TrainerID != "" {
		query += ` AND trainer_id = ?`
		args = append(args, f.TrainerID)
	}
	if f.ClientPackageID != "" {
		query += ` AND client_package_id = ?`
		args = append(args, f.ClientPackageID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		query += ` AND starts_at >= ?`
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND starts_at < ?`
		args = append(args, formatTime(f.To))
	}
	query += ` ORDER BY starts_at ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []studio.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, mapErr(rows.Err())
}

// UpdateSession writes the editable details. Status is not touched.
func (s *Store) UpdateSession(ctx context.Context, sess studio.Session) error {
	res, err := s.exec(ctx, `
		UPDATE sessions SET session_type = ?, location = ?, starts_at = ?, ends_at = ?, notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(sess.Type), sess.Location, formatTime(sess.StartsAt), formatTime(sess.EndsAt),
		sess.Notes, formatTime(sess.UpdatedAt), sess.ID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return affected(res, "session "+sess.ID)
}

// TransitionSession moves the status only while the row is still in from.
func (s *Store) TransitionSession(ctx context.Context, id string, from, to studio.SessionStatus) error {
	res, err := s.exec(ctx, `
		UPDATE sessions SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), formatTime(nowUTC()), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to transition session: %w", err)
	}
	return affected(res, "session "+id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return rowsOrNotFound(res, "session", id)
}

func scanSession(sc scanner) (studio.Session, error) {
	var (
		sess                 studio.Session
		cpID, price          sql.NullString
		typ, status          string
		startsAt, endsAt     string
		createdAt, updatedAt string
	)
	err := sc.Scan(&sess.ID, &sess.ClientID, &sess.TrainerID, &cpID, &typ, &sess.Location,
		&startsAt, &endsAt, &price, &sess.Notes, &status, &sess.Version, &createdAt, &updatedAt)
	if err != nil {
		return sess, err
	}
	sess.ClientPackageID = cpID.String
	sess.Type = studio.SessionType(typ)
	sess.Status = studio.SessionStatus(status)
	sess.StartsAt = parseTime(startsAt)
	sess.EndsAt = parseTime(endsAt)
	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return sess, fmt.Errorf("session %s price %q: %w", sess.ID, price.String, err)
		}
		sess.Price = &d
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return sess, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
