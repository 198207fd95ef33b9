/*
Package studio implements the business rules of a personal-training studio.

PURPOSE:
  Clients buy packages of sessions, book and attend sessions, pay, get
  invoiced, and can manage their own bookings from a portal. This package
  owns every rule that ties those records together:

    - package sale        = ClientPackage + ledger charge (+ optional payment)
    - session completion  = status change + one package unit consumed
    - portal cancellation = status change + refund if eligible
    - invoice creation    = serialized number allocation + invoice row

  Every multi-step write runs inside one repository transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client, Package, ClientPackage, Session, Invoice, Expense, Profile
  - Status enums and their allowed values

SEE ALSO:
  - service.go: Service wiring
  - sessions.go: Session lifecycle
  - packages.go: Package sale and consumption rule
  - repository.go: Persistence contract
*/
package studio

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLIENT
// =============================================================================

type ClientStatus string

const (
	ClientLead     ClientStatus = "lead"
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

func (s ClientStatus) Valid() bool {
	switch s {
	case ClientLead, ClientActive, ClientInactive:
		return true
	}
	return false
}

// Client is a studio customer. Clients are never hard-deleted.
type Client struct {
	ID              string
	OwnerID         string // staff profile that created the client
	ProfileID       string // portal account, if the client has one
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Notes           string
	Status          ClientStatus
	AllowSelfCancel bool // client may cancel own sessions from the portal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c Client) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// =============================================================================
// PACKAGE CATALOG
// =============================================================================

// Package is a catalog template: N sessions for a price, valid for D days.
type Package struct {
	ID               string
	Name             string
	Slug             string
	Description      string
	Price            decimal.Decimal
	SessionsIncluded int
	ValidityDays     int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type ClientPackageStatus string

const (
	PackageActive    ClientPackageStatus = "active"
	PackageExpired   ClientPackageStatus = "expired"
	PackageCancelled ClientPackageStatus = "cancelled"
)

// ClientPackage is a client's purchased instance of a Package.
//
// INVARIANT: 0 <= SessionsRemaining <= SessionsIncluded
type ClientPackage struct {
	ID                string
	ClientID          string
	PackageID         string
	PackageName       string
	SessionsIncluded  int
	SessionsRemaining int
	PurchaseDate      time.Time
	ExpiryDate        time.Time
	Status            ClientPackageStatus
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ExpiredAt reports whether the package is past its expiry at t.
// The expiry date itself is still usable.
func (cp ClientPackage) ExpiredAt(t time.Time) bool {
	return dayOf(t).After(dayOf(cp.ExpiryDate))
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PackageUsage is one movement of a ClientPackage counter.
// The log is append-only; IdempotencyKey is unique.
type PackageUsage struct {
	ID              string
	ClientPackageID string
	SessionID       string
	Delta           int // -1 consumption, +1 refund
	Reason          string
	IdempotencyKey  string
	CreatedBy       string
	CreatedAt       time.Time
}

// =============================================================================
// SESSION
// =============================================================================

type SessionType string

const (
	SessionPersonal SessionType = "personal"
	SessionGroup    SessionType = "group"
	SessionClass    SessionType = "class"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionPersonal, SessionGroup, SessionClass:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionNoShow    SessionStatus = "no_show"
)

// Terminal reports whether no further transitions leave this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionNoShow
}

func (s SessionStatus) Valid() bool {
	return s == SessionScheduled || s.Terminal()
}

// Session is a booked training slot.
type Session struct {
	ID              string
	ClientID        string
	TrainerID       string
	ClientPackageID string // optional
	Type            SessionType
	Location        string
	StartsAt        time.Time
	EndsAt          time.Time
	Price           *decimal.Decimal // direct price when not covered by a package
	Notes           string
	Status          SessionStatus
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// =============================================================================
// INVOICE
// =============================================================================

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// LineItem is a free-form invoice line, stored as JSON.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Invoice is independent of the ledger: marking it paid writes nothing there.
type Invoice struct {
	ID        string
	Number    string
	ClientID  string
	Amount    decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	Status    InvoiceStatus
	IssueDate time.Time
	DueDate   time.Time
	PaidAt    *time.Time
	Items     []LineItem
	Notes     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// EXPENSE
// =============================================================================

type ExpenseStatus string

const (
	ExpensePending ExpenseStatus = "pending"
	ExpensePaid    ExpenseStatus = "paid"
)

// Expense is a studio cost. Not linked to clients.
type Expense struct {
	ID            string
	Category      string
	Vendor        string
	Description   string
	Amount        decimal.Decimal
	Date          time.Time
	Recurring     bool
	TaxDeductible bool
	Status        ExpenseStatus
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// =============================================================================
// PROFILE
// =============================================================================

// Profile is one per authenticated account.
type Profile struct {
	ID           string
	Email        string
	FullName     string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
