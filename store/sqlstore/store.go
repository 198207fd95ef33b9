/*
Package sqlstore implements studio.TxRepository on database/sql.

PURPOSE:
  One Store type serves both supported databases:
    sqlite3   mattn/go-sqlite3, the default, ":memory:" in tests
    postgres  lib/pq
  Queries are written once with "?" placeholders and rebound per dialect.

TRANSACTIONS:
  A Store is either root (bound to *sql.DB) or transaction-bound (bound to
  *sql.Tx). WithTx on a root store opens a transaction and hands fn a
  transaction-bound Store; every read and write inside fn goes through that
  transaction. WithTx on a transaction-bound store just runs fn.

CONCURRENCY:
  SQLite: the pool is limited to one connection, so transactions are
  serialized by database/sql itself and every read sees committed data.
  PostgreSQL: LockClientPackage uses SELECT ... FOR UPDATE, and every guarded
  update carries its precondition in the WHERE clause.

APPEND-ONLY TABLES:
  ledger_entries  only status moves pending → completed|failed
  package_usage   never updated or deleted
  Both carry a UNIQUE idempotency_key.

USAGE:
  store, err := sqlstore.New(":memory:")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := studio.NewService(store, studio.DefaultConfig())

SEE ALSO:
  - schema.go: DDL
  - studio/repository.go: the contract implemented here
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/studio-engine/studio"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// timestamps are stored as fixed-width UTC text so they sort lexically
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements studio.TxRepository.
type Store struct {
	db     *sql.DB
	q      querier
	driver string
	inTx   bool
}

var _ studio.TxRepository = (*Store)(nil)

// PoolOptions tunes the connection pool. Ignored for SQLite.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New opens a SQLite store at path. Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DriverSQLite, dsn, PoolOptions{})
}

// Open connects to driver/dsn and migrates the schema.
func Open(driver, dsn string, pool PoolOptions) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one connection: ":memory:" is per connection, and writes serialize anyway
		db.SetMaxOpenConns(1)
	} else {
		if pool.MaxOpenConns > 0 {
			db.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.MaxIdleConns > 0 {
			db.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(pool.ConnMaxLifetime)
		}
	}

	s := &Store{db: db, q: db, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Driver() string { return s.driver }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(studio.Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	txStore := &Store{db: s.db, q: sqlTx, driver: s.driver, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	return mapErr(sqlTx.Commit())
}

// atomic runs fn on a transaction-bound store.
func (s *Store) atomic(ctx context.Context, fn func(tx *Store) error) error {
	return s.WithTx(ctx, func(r studio.Repository) error {
		return fn(r.(*Store))
	})
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, s.rebind(query), args...)
	return res, mapErr(err)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	return rows, mapErr(err)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// rebind turns "?" placeholders into "$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// forUpdate is the row-lock suffix; SQLite already holds the database lock.
func (s *Store) forUpdate() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// affected turns a zero-row guarded update into ErrConcurrentModification.
func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, studio.ErrConcurrentModification)
	}
	return nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// mapErr classifies driver errors into the studio taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", studio.ErrDuplicate, err)
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", studio.ErrTransient, err)
		}
		return err
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23505":
			return fmt.Errorf("%w: %v", studio.ErrDuplicate, err)
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", studio.ErrConcurrentModification, err)
		case "57P01", "08000", "08003", "08006":
			return fmt.Errorf("%w: %v", studio.ErrTransient, err)
		}
	}
	return err
}

func isDuplicate(err error) bool { return errors.Is(err, studio.ErrDuplicate) }

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &studio.NotFoundError{Kind: kind, ID: id}
	}
	return mapErr(err)
}

// =============================================================================
// VALUE CONVERSION
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nowUTC() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
