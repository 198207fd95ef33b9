package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// PACKAGE CATALOG
// =============================================================================

const packageColumns = `id, name, slug, description, price, sessions_included, validity_days,
	active, created_at, updated_at`

// SavePackage inserts or replaces a catalog package.
func (s *Store) SavePackage(ctx context.Context, p studio.Package) error {
	_, err := s.exec(ctx, `
		INSERT INTO packages (`+packageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			slug = excluded.slug,
			description = excluded.description,
			price = excluded.price,
			sessions_included = excluded.sessions_included,
			validity_days = excluded.validity_days,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Slug, p.Description, p.Price.String(), p.SessionsIncluded,
		p.ValidityDays, boolInt(p.Active), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save package: %w", err)
	}
	return nil
}

func (s *Store) GetPackage(ctx context.Context, id string) (studio.Package, error) {
	p, err := scanPackage(s.queryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = ?`, id))
	if err != nil {
		return studio.Package{}, notFoundOr(err, "package", id)
	}
	return p, nil
}

func (s *Store) ListPackages(ctx context.Context, activeOnly bool) ([]studio.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY sessions_included ASC, name ASC`

	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	var out []studio.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) DeletePackage(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	return rowsOrNotFound(res, "package", id)
}

func (s *Store) CountClientPackages(ctx context.Context, packageID string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM client_packages WHERE package_id = ?`, packageID).Scan(&n)
	return n, mapErr(err)
}

func scanPackage(sc scanner) (studio.Package, error) {
	var (
		p                    studio.Package
		price                string
		active               int
		createdAt, updatedAt string
	)
	err := sc.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &price, &p.SessionsIncluded,
		&p.ValidityDays, &active, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return p, fmt.Errorf("package %s price %q: %w", p.ID, price, err)
	}
	p.Active = active != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// =============================================================================
// CLIENT PACKAGES
// =============================================================================

const clientPackageColumns = `id, client_id, package_id, package_name, sessions_included,
	sessions_remaining, purchase_date, expiry_date, status, version, created_at, updated_at`

func (s *Store) CreateClientPackage(ctx context.Context, cp studio.ClientPackage) error {
	_, err := s.exec(ctx, `
		INSERT INTO client_packages (`+clientPackageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ClientID, cp.PackageID, cp.PackageName, cp.SessionsIncluded,
		cp.SessionsRemaining, formatDate(cp.PurchaseDate), formatDate(cp.ExpiryDate),
		string(cp.Status), cp.Version, formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create client package: %w", err)
	}
	return nil
}

func (s *Store) GetClientPackage(ctx context.Context, id string) (studio.ClientPackage, error) {
	cp, err := scanClientPackage(s.queryRow(ctx,
		`SELECT `+clientPackageColumns+` FROM client_packages WHERE id = ?`, id))
	if err != nil {
		return studio.ClientPackage{}, notFoundOr(err, "client package", id)
	}
	return cp, nil
}

// LockClientPackage reads the row with a write lock held until the
// transaction ends.
func (s *Store) LockClientPackage(ctx context.Context, id string) (studio.ClientPackage, error) {
	cp, err := scanClientPackage(s.queryRow(ctx,
		`SELECT `+clientPackageColumns+` FROM client_packages WHERE id = ?`+s.forUpdate(), id))
	if err != nil {
		return studio.ClientPackage{}, notFoundOr(err, "client package", id)
	}
	return cp, nil
}

func (s *Store) ListClientPackages(ctx context.Context, clientID string) ([]studio.ClientPackage, error) {
	return s.queryClientPackages(ctx, `
		SELECT `+clientPackageColumns+` FROM client_packages
		WHERE client_id = ?
		ORDER BY purchase_date DESC, created_at DESC`, clientID)
}

// ListExpirablePackages returns active packages whose expiry day is before asOf's day.
func (s *Store) ListExpirablePackages(ctx context.Context, asOf time.Time) ([]studio.ClientPackage, error) {
	return s.queryClientPackages(ctx, `
		SELECT `+clientPackageColumns+` FROM client_packages
		WHERE status = ? AND expiry_date < ?
		ORDER BY expiry_date ASC`, string(studio.PackageActive), formatDate(asOf))
}

// AdjustSessionsRemaining moves the counter by delta inside its bounds. The
// bounds are part of the UPDATE, so concurrent callers can never push the
// counter outside [0, sessions_included].
func (s *Store) AdjustSessionsRemaining(ctx context.Context, id string, delta int) (studio.ClientPackage, bool, error) {
	res, err := s.exec(ctx, `
		UPDATE client_packages
		SET sessions_remaining = sessions_remaining + ?, version = version + 1, updated_at = ?
		WHERE id = ?
		  AND sessions_remaining + ? >= 0
		  AND sessions_remaining + ? <= sessions_included`,
		delta, formatTime(nowUTC()), id, delta, delta,
	)
	if err != nil {
		return studio.ClientPackage{}, false, fmt.Errorf("failed to adjust client package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return studio.ClientPackage{}, false, err
	}
	cp, err := s.GetClientPackage(ctx, id)
	if err != nil {
		return studio.ClientPackage{}, false, err
	}
	return cp, n > 0, nil
}

func (s *Store) SetClientPackageStatus(ctx context.Context, id string, status studio.ClientPackageStatus, version int) error {
	res, err := s.exec(ctx, `
		UPDATE client_packages SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(status), formatTime(nowUTC()), id, version,
	)
	if err != nil {
		return fmt.Errorf("failed to update client package status: %w", err)
	}
	return affected(res, "client package "+id)
}

func (s *Store) queryClientPackages(ctx context.Context, query string, args ...any) ([]studio.ClientPackage, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query client packages: %w", err)
	}
	defer rows.Close()

	var out []studio.ClientPackage
	for rows.Next() {
		cp, err := scanClientPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, mapErr(rows.Err())
}

func scanClientPackage(sc scanner) (studio.ClientPackage, error) {
	var (
		cp                   studio.ClientPackage
		purchase, expiry     string
		status               string
		createdAt, updatedAt string
	)
	err := sc.Scan(&cp.ID, &cp.ClientID, &cp.PackageID, &cp.PackageName, &cp.SessionsIncluded,
		&cp.SessionsRemaining, &purchase, &expiry, &status, &cp.Version, &createdAt, &updatedAt)
	if err != nil {
		return cp, err
	}
	cp.PurchaseDate = parseDate(purchase)
	cp.ExpiryDate = parseDate(expiry)
	cp.Status = studio.ClientPackageStatus(status)
	cp.CreatedAt = parseTime(createdAt)
	cp.UpdatedAt = parseTime(updatedAt)
	return cp, nil
}

// =============================================================================
// PACKAGE USAGE LOG (append-only)
// =============================================================================

const usageColumns = `id, client_package_id, session_id, delta, reason, idempotency_key, created_by, created_at`

func (s *Store) AppendPackageUsage(ctx context.Context, u studio.PackageUsage) error {
	_, err := s.exec(ctx, `
		INSERT INTO package_usage (`+usageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ClientPackageID, u.SessionID, u.Delta, u.Reason, u.IdempotencyKey,
		u.CreatedBy, formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("package usage %s: %w", u.IdempotencyKey, err)
	}
	return nil
}

func (s *Store) PackageUsageExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM package_usage WHERE idempotency_key = ?`, idempotencyKey).Scan(&n)
	return n > 0, mapErr(err)
}

func (s *Store) ListPackageUsage(ctx context.Context, clientPackageID string) ([]studio.PackageUsage, error) {
	return s.queryUsage(ctx, `
		SELECT `+usageColumns+` FROM package_usage
		WHERE client_package_id = ? ORDER BY created_at ASC`, clientPackageID)
}

func (s *Store) SessionUsage(ctx context.Context, sessionID string) ([]studio.PackageUsage, error) {
	return s.queryUsage(ctx, `
		SELECT `+usageColumns+` FROM package_usage
		WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
}

func (s *Store) queryUsage(ctx context.Context, query string, args ...any) ([]studio.PackageUsage, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query package usage: %w", err)
	}
	defer rows.Close()

	var out []studio.PackageUsage
	for rows.Next() {
		var (
			u         studio.PackageUsage
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.ClientPackageID, &u.SessionID, &u.Delta, &u.Reason,
			&u.IdempotencyKey, &u.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan package usage: %w", err)
		}
		u.CreatedAt = parseTime(createdAt)
		out = append(out, u)
	}
	return out, mapErr(rows.Err())
}
