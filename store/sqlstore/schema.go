package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// The schema uses only types and syntax both SQLite and PostgreSQL accept:
// money and decimals as TEXT, booleans as INTEGER 0/1, timestamps as
// fixed-width UTC TEXT.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email) WHERE email <> ''`,

	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		profile_id TEXT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		allow_self_cancel INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_profile ON clients(profile_id) WHERE profile_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		sessions_included INTEGER NOT NULL,
		validity_days INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS client_packages (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		package_id TEXT NOT NULL REFERENCES packages(id),
		package_name TEXT NOT NULL,
		sessions_included INTEGER NOT NULL,
		sessions_remaining INTEGER NOT NULL,
		purchase_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (sessions_remaining >= 0 AND sessions_remaining <= sessions_included)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_client_packages_client ON client_packages(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_client_packages_expiry ON client_packages(status, expiry_date)`,

	`CREATE TABLE IF NOT EXISTS package_usage (
		id TEXT PRIMARY KEY,
		client_package_id TEXT NOT NULL REFERENCES client_packages(id),
		session_id TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_package_usage_session ON package_usage(session_id)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		trainer_id TEXT NOT NULL DEFAULT '',
		client_package_id TEXT,
		session_type TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		price TEXT,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_client_start ON sessions(client_id, starts_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_package ON sessions(client_package_id) WHERE client_package_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		session_id TEXT,
		client_package_id TEXT,
		invoice_id TEXT,
		reference TEXT,
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_client_created ON ledger_entries(client_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_entries(created_at)`,

	`CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`INSERT INTO counters (name, value) VALUES ('invoice', 0) ON CONFLICT (name) DO NOTHING`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		client_id TEXT NOT NULL REFERENCES clients(id),
		amount TEXT NOT NULL,
		tax TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_at TEXT,
		items_json TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_status_due ON invoices(status, due_date)`,

	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		vendor TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		expense_date TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		tax_deductible INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date)`,
}

// migrate creates the schema. For production, versioned migrations belong in
// a dedicated tool; the statements here are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			head := strings.TrimSpace(strings.SplitN(stmt, "(", 2)[0])
			return fmt.Errorf("%s: %w", head, err)
		}
	}
	return nil
}
