package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// CLIENTS
// =============================================================================

const clientColumns = `id, owner_id, profile_id, first_name, last_name, email, phone, notes,
	status, allow_self_cancel, created_at, updated_at`

func (s *Store) CreateClient(ctx context.Context, c studio.Client) error {
	_, err := s.exec(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, nullString(c.ProfileID), c.FirstName, c.LastName, c.Email, c.Phone,
		c.Notes, string(c.Status), boolInt(c.AllowSelfCancel),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id string) (studio.Client, error) {
	c, err := scanClient(s.queryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if err != nil {
		return studio.Client{}, notFoundOr(err, "client", id)
	}
	return c, nil
}

func (s *Store) GetClientByProfile(ctx context.Context, profileID string) (studio.Client, error) {
	c, err := scanClient(s.queryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE profile_id = ?`, profileID))
	if err != nil {
		return studio.Client{}, notFoundOr(err, "client for profile", profileID)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, f studio.ClientFilter) ([]studio.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query += ` AND (LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY last_name ASC, first_name ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []studio.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, mapErr(rows.Err())
}

func (s *Store) UpdateClient(ctx context.Context, c studio.Client) error {
	res, err := s.exec(ctx, `
		UPDATE clients SET profile_id = ?, first_name = ?, last_name = ?, email = ?, phone = ?,
			notes = ?, status = ?, allow_self_cancel = ?, updated_at = ?
		WHERE id = ?`,
		nullString(c.ProfileID), c.FirstName, c.LastName, c.Email, c.Phone, c.Notes,
		string(c.Status), boolInt(c.AllowSelfCancel), formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return rowsOrNotFound(res, "client", c.ID)
}

// scanner is what *sql.Row and *sql.Rows have in common.
type scanner interface {
	Scan(dest ...any) error
}

func scanClient(sc scanner) (studio.Client, error) {
	var (
		c                    studio.Client
		profileID            sql.NullString
		status               string
		selfCancel           int
		createdAt, updatedAt string
	)
	err := sc.Scan(&c.ID, &c.OwnerID, &profileID, &c.FirstName, &c.LastName, &c.Email,
		&c.Phone, &c.Notes, &status, &selfCancel, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.ProfileID = profileID.String
	c.Status = studio.ClientStatus(status)
	c.AllowSelfCancel = selfCancel != 0
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

func rowsOrNotFound(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &studio.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// =============================================================================
// PROFILES
// =============================================================================

const profileColumns = `id, email, full_name, role, password_hash, created_at, updated_at`

func (s *Store) CreateProfile(ctx context.Context, p studio.Profile) error {
	_, err := s.exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, p.FullName, string(p.Role), p.PasswordHash,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (studio.Profile, error) {
	p, err := scanProfile(s.queryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if err != nil {
		return studio.Profile{}, notFoundOr(err, "profile", id)
	}
	return p, nil
}

func (s *Store) GetProfileByEmail(ctx context.Context, email string) (studio.Profile, error) {
	p, err := scanProfile(s.queryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = ?`, email))
	if err != nil {
		return studio.Profile{}, notFoundOr(err, "profile", email)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p studio.Profile) error {
	res, err := s.exec(ctx, `
		UPDATE profiles SET email = ?, full_name = ?, role = ?, password_hash = ?, updated_at = ?
		WHERE id = ?`,
		p.Email, p.FullName, string(p.Role), p.PasswordHash, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return rowsOrNotFound(res, "profile", p.ID)
}

func scanProfile(sc scanner) (studio.Profile, error) {
	var (
		p                    studio.Profile
		role                 string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&p.ID, &p.Email, &p.FullName, &role, &p.PasswordHash, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	p.Role = studio.Role(role)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}
