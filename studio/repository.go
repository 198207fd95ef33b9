/*
repository.go - Persistence contract for the studio domain

PURPOSE:
  Defines the interface between the business rules and the database. The
  service never talks SQL; store/sqlstore implements this for SQLite and
  PostgreSQL.

TRANSACTIONS:
  TxRepository.WithTx runs fn against a transaction-bound Repository. Inside
  fn, ONLY the repository passed to fn may be used: the outer one is not part
  of the transaction (and with SQLite it would block on the single connection).

GUARDED UPDATES:
  Shared counters and statuses are changed with conditional updates instead
  of read-modify-write:
    - AdjustSessionsRemaining never crosses 0 or SessionsIncluded
    - TransitionSession only moves a row that is still in the expected status
    - NextInvoiceNumber increments a counter row atomically

SEE ALSO:
  - store/sqlstore: SQL implementation
  - ledger.Store: embedded ledger persistence
*/
package studio

import (
	"context"
	"time"

	"github.com/warp/studio-engine/ledger"
)

// ClientFilter narrows ListClients. Zero values mean "any".
type ClientFilter struct {
	Status  ClientStatus
	OwnerID string
	Search  string // matched against name and email
}

// SessionFilter narrows ListSessions. Zero values mean "any".
type SessionFilter struct {
	ClientID        string
	TrainerID       string
	ClientPackageID string
	Status          SessionStatus
	From            time.Time // StartsAt >= From
	To              time.Time // StartsAt < To
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	ClientID  string
	Status    InvoiceStatus
	DueBefore time.Time
}

// ExpenseFilter narrows ListExpenses.
type ExpenseFilter struct {
	Category string
	From     time.Time
	To       time.Time
}

// Repository persists every studio record.
type Repository interface {
	ledger.Store

	// Clients
	CreateClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id string) (Client, error)
	GetClientByProfile(ctx context.Context, profileID string) (Client, error)
	ListClients(ctx context.Context, f ClientFilter) ([]Client, error)
	UpdateClient(ctx context.Context, c Client) error

	// Package catalog
	SavePackage(ctx context.Context, p Package) error
	GetPackage(ctx context.Context, id string) (Package, error)
	ListPackages(ctx context.Context, activeOnly bool) ([]Package, error)
	DeletePackage(ctx context.Context, id string) error
	CountClientPackages(ctx context.Context, packageID string) (int, error)

	// Client packages
	CreateClientPackage(ctx context.Context, cp ClientPackage) error
	GetClientPackage(ctx context.Context, id string) (ClientPackage, error)
	// LockClientPackage reads the row and holds a write lock on it until the
	// surrounding transaction ends.
	LockClientPackage(ctx context.Context, id string) (ClientPackage, error)
	ListClientPackages(ctx context.Context, clientID string) ([]ClientPackage, error)
	// AdjustSessionsRemaining moves the counter by delta (+1 or -1) unless that
	// would leave [0, SessionsIncluded]. applied is false when clamped.
	AdjustSessionsRemaining(ctx context.Context, id string, delta int) (cp ClientPackage, applied bool, err error)
	// SetClientPackageStatus updates the status if Version still matches.
	SetClientPackageStatus(ctx context.Context, id string, status ClientPackageStatus, version int) error
	ListExpirablePackages(ctx context.Context, asOf time.Time) ([]ClientPackage, error)

	// Package usage log (append-only)
	AppendPackageUsage(ctx context.Context, u PackageUsage) error
	PackageUsageExists(ctx context.Context, idempotencyKey string) (bool, error)
	ListPackageUsage(ctx context.Context, clientPackageID string) ([]PackageUsage, error)
	SessionUsage(ctx context.Context, sessionID string) ([]PackageUsage, error)

	// Sessions
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)
	// UpdateSession writes the editable details if Version still matches.
	UpdateSession(ctx context.Context, s Session) error
	// TransitionSession moves the status only if the row is still in from.
	TransitionSession(ctx context.Context, id string, from, to SessionStatus) error
	DeleteSession(ctx context.Context, id string) error

	// Invoices
	NextInvoiceNumber(ctx context.Context) (int64, error)
	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error)
	// UpdateInvoiceStatus moves the status only if the row is still in from.
	UpdateInvoiceStatus(ctx context.Context, id string, from, to InvoiceStatus, paidAt *time.Time) error

	// Expenses
	CreateExpense(ctx context.Context, e Expense) error
	GetExpense(ctx context.Context, id string) (Expense, error)
	UpdateExpense(ctx context.Context, e Expense) error
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error)

	// EntriesBetween returns ledger entries of every client created in [from, to).
	EntriesBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error)

	// Profiles
	CreateProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, id string) (Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (Profile, error)
	UpdateProfile(ctx context.Context, p Profile) error
}

// TxRepository adds transactions.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
