/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the studio model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND TIME:
  Amounts travel as decimal strings ("1000.00") in both directions so no
  client ever rounds through a float. Dates are "2006-01-02", instants are
  RFC 3339.

VALIDATION:
  Request types carry go-playground/validator tags, checked by decode() in
  handlers.go before the service sees them. Business rules stay in the
  studio package.

SEE ALSO:
  - handlers.go: Uses these types
  - studio/types.go: Domain types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/studio"
)

const dateLayout = "2006-01-02"

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// AUTH / PROFILES
// =============================================================================

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"max=200"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin trainer client lead"`
}

type TokenDTO struct {
	Token     string     `json:"token"`
	ExpiresAt string     `json:"expires_at"`
	Profile   ProfileDTO `json:"profile"`
}

type ProfileDTO struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name,omitempty"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

func toProfileDTO(p studio.Profile) ProfileDTO {
	caps := studio.CapabilitiesFor(p.Role).Names()
	if caps == nil {
		caps = []string{}
	}
	return ProfileDTO{
		ID:           p.ID,
		Email:        p.Email,
		FullName:     p.FullName,
		Role:         string(p.Role),
		Capabilities: caps,
		CreatedAt:    formatTime(p.CreatedAt),
	}
}

// =============================================================================
// CLIENTS
// =============================================================================

type ClientRequest struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"max=100"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"max=40"`
	Notes           string `json:"notes"`
	Status          string `json:"status" validate:"omitempty,oneof=lead active inactive"`
	AllowSelfCancel bool   `json:"allow_self_cancel"`
}

func (r ClientRequest) input() studio.ClientInput {
	return studio.ClientInput{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Phone:           r.Phone,
		Notes:           r.Notes,
		Status:          studio.ClientStatus(r.Status),
		AllowSelfCancel: r.AllowSelfCancel,
	}
}

type ClientStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=lead active inactive"`
}

type LinkProfileRequest struct {
	ProfileID string `json:"profile_id" validate:"required"`
}

type ClientDTO struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	ProfileID       string `json:"profile_id,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name,omitempty"`
	FullName        string `json:"full_name"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Status          string `json:"status"`
	AllowSelfCancel bool   `json:"allow_self_cancel"`
	CreatedAt       string `json:"created_at"`
}

func toClientDTO(c studio.Client) ClientDTO {
	return ClientDTO{
		ID:              c.ID,
		OwnerID:         c.OwnerID,
		ProfileID:       c.ProfileID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		FullName:        c.FullName(),
		Email:           c.Email,
		Phone:           c.Phone,
		Notes:           c.Notes,
		Status:          string(c.Status),
		AllowSelfCancel: c.AllowSelfCancel,
		CreatedAt:       formatTime(c.CreatedAt),
	}
}

// =============================================================================
// PACKAGES
// =============================================================================

type PackageRequest struct {
	Name             string `json:"name" validate:"required,max=120"`
	Description      string `json:"description"`
	Price            string `json:"price" validate:"required,numeric"`
	SessionsIncluded int    `json:"sessions_included" validate:"required,gt=0"`
	ValidityDays     int    `json:"validity_days" validate:"required,gt=0"`
	Active           *bool  `json:"active"`
}

func (r PackageRequest) input() (studio.PackageInput, error) {
	price, err := parseAmount("price", r.Price)
	if err != nil {
		return studio.PackageInput{}, err
	}
	return studio.PackageInput{
		Name:             r.Name,
		Description:      r.Description,
		Price:            price,
		SessionsIncluded: r.SessionsIncluded,
		ValidityDays:     r.ValidityDays,
		Active:           r.Active,
	}, nil
}

type PackageDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	Description      string `json:"description,omitempty"`
	Price            string `json:"price"`
	SessionsIncluded int    `json:"sessions_included"`
	ValidityDays     int    `json:"validity_days"`
	Active           bool   `json:"active"`
}

func toPackageDTO(p studio.Package) PackageDTO {
	return PackageDTO{
		ID:               p.ID,
		Name:             p.Name,
		Slug:             p.Slug,
		Description:      p.Description,
		Price:            p.Price.StringFixed(2),
		SessionsIncluded: p.SessionsIncluded,
		ValidityDays:     p.ValidityDays,
		Active:           p.Active,
	}
}

type PaymentRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Method string `json:"method" validate:"omitempty,max=40"`
	Status string `json:"status" validate:"omitempty,oneof=pending completed failed"`
	Reason string `json:"reason"`
}

func (r PaymentRequest) input() (studio.PaymentInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return studio.PaymentInput{}, err
	}
	return studio.PaymentInput{
		Amount: amount,
		Method: r.Method,
		Status: ledger.EntryStatus(r.Status),
		Reason: r.Reason,
	}, nil
}

type AssignPackageRequest struct {
	PackageID    string          `json:"package_id" validate:"required"`
	PurchaseDate string          `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	Price        string          `json:"price" validate:"omitempty,numeric"`
	Payment      *PaymentRequest `json:"payment"`
}

func (r AssignPackageRequest) input(clientID string) (studio.AssignPackageInput, error) {
	in := studio.AssignPackageInput{ClientID: clientID, PackageID: r.PackageID}
	if r.PurchaseDate != "" {
		d, err := parseDate("purchase_date", r.PurchaseDate)
		if err != nil {
			return in, err
		}
		in.PurchaseDate = d
	}
	if r.Price != "" {
		price, err := parseAmount("price", r.Price)
		if err != nil {
			return in, err
		}
		in.Price = &price
	}
	if r.Payment != nil {
		pay, err := r.Payment.input()
		if err != nil {
			return in, err
		}
		in.Payment = &pay
	}
	return in, nil
}

type ClientPackageDTO struct {
	ID                string `json:"id"`
	ClientID          string `json:"client_id"`
	PackageID         string `json:"package_id"`
	PackageName       string `json:"package_name"`
	SessionsIncluded  int    `json:"sessions_included"`
	SessionsRemaining int    `json:"sessions_remaining"`
	PurchaseDate      string `json:"purchase_date"`
	ExpiryDate        string `json:"expiry_date"`
	Status            string `json:"status"`
}

func toClientPackageDTO(cp studio.ClientPackage) ClientPackageDTO {
	return ClientPackageDTO{
		ID:                cp.ID,
		ClientID:          cp.ClientID,
		PackageID:         cp.PackageID,
		PackageName:       cp.PackageName,
		SessionsIncluded:  cp.SessionsIncluded,
		SessionsRemaining: cp.SessionsRemaining,
		PurchaseDate:      cp.PurchaseDate.Format(dateLayout),
		ExpiryDate:        cp.ExpiryDate.Format(dateLayout),
		Status:            string(cp.Status),
	}
}

type AssignmentDTO struct {
	ClientPackage ClientPackageDTO `json:"client_package"`
	Charge        *EntryDTO        `json:"charge,omitempty"`
	Payment       *EntryDTO        `json:"payment,omitempty"`
}

type UsageDTO struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func toUsageDTO(u studio.PackageUsage) UsageDTO {
	return UsageDTO{
		ID:        u.ID,
		SessionID: u.SessionID,
		Delta:     u.Delta,
		Reason:    u.Reason,
		CreatedBy: u.CreatedBy,
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// =============================================================================
// LEDGER
// =============================================================================

type ChargeRequest struct {
	Amount     string `json:"amount" validate:"required,numeric"`
	Reason     string `json:"reason" validate:"required"`
	Adjustment bool   `json:"adjustment"`
	Status     string `json:"status" validate:"omitempty,oneof=pending completed failed"`
}

type ReverseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type EntryDTO struct {
	ID              string `json:"id"`
	ClientID        string `json:"client_id"`
	Amount          string `json:"amount"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	Method          string `json:"method,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	ClientPackageID string `json:"client_package_id,omitempty"`
	Reference       string `json:"reference,omitempty"`
	Reason          string `json:"reason,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:              e.ID,
		ClientID:        e.ClientID,
		Amount:          e.Amount.String(),
		Kind:            string(e.Kind),
		Status:          string(e.Status),
		Method:          e.Method,
		SessionID:       e.SessionID,
		ClientPackageID: e.ClientPackageID,
		Reference:       e.Reference,
		Reason:          e.Reason,
		CreatedAt:       formatTime(e.CreatedAt),
	}
}

func toEntryPtr(e *ledger.Entry) *EntryDTO {
	if e == nil {
		return nil
	}
	dto := toEntryDTO(*e)
	return &dto
}

// BalanceDTO is positive when the client owes the studio.
type BalanceDTO struct {
	ClientID      string `json:"client_id"`
	TotalCharges  string `json:"total_charges"`
	TotalPayments string `json:"total_payments"`
	Balance       string `json:"balance"`
	Owes          bool   `json:"owes"`
	EntryCount    int    `json:"entry_count"`
}

func toBalanceDTO(s ledger.Summary) BalanceDTO {
	return BalanceDTO{
		ClientID:      s.ClientID,
		TotalCharges:  s.TotalCharges.String(),
		TotalPayments: s.TotalPayments.String(),
		Balance:       s.Balance.String(),
		Owes:          s.Owes(),
		EntryCount:    s.EntryCount,
	}
}

type StatementLineDTO struct {
	Entry   EntryDTO `json:"entry"`
	Counted bool     `json:"counted"`
	Balance string   `json:"balance"`
}

// =============================================================================
// SESSIONS
// =============================================================================

type BookSessionRequest struct {
	ClientID        string `json:"client_id" validate:"required"`
	TrainerID       string `json:"trainer_id"`
	ClientPackageID string `json:"client_package_id"`
	Type            string `json:"type" validate:"omitempty,oneof=personal group class"`
	Location        string `json:"location"`
	StartsAt        string `json:"starts_at" validate:"required"`
	EndsAt          string `json:"ends_at" validate:"required"`
	Price           string `json:"price" validate:"omitempty,numeric"`
	Notes           string `json:"notes"`
}

func (r BookSessionRequest) input() (studio.BookSessionInput, error) {
	in := studio.BookSessionInput{
		ClientID:        r.ClientID,
		TrainerID:       r.TrainerID,
		ClientPackageID: r.ClientPackageID,
		Type:            studio.SessionType(r.Type),
		Location:        r.Location,
		Notes:           r.Notes,
	}
	var err error
	if in.StartsAt, err = parseInstant("starts_at", r.StartsAt); err != nil {
		return in, err
	}
	if in.EndsAt, err = parseInstant("ends_at", r.EndsAt); err != nil {
		return in, err
	}
	if r.Price != "" {
		price, err := parseAmount("price", r.Price)
		if err != nil {
			return in, err
		}
		in.Price = &price
	}
	return in, nil
}

// SessionDetailsRequest edits a scheduled session. Absent fields are kept.
type SessionDetailsRequest struct {
	StartsAt *string `json:"starts_at"`
	EndsAt   *string `json:"ends_at"`
	Location *string `json:"location"`
	Notes    *string `json:"notes"`
	Type     *string `json:"type" validate:"omitempty,oneof=personal group class"`
}

func (r SessionDetailsRequest) details() (studio.SessionDetails, error) {
	d := studio.SessionDetails{Location: r.Location, Notes: r.Notes}
	if r.StartsAt != nil {
		t, err := parseInstant("starts_at", *r.StartsAt)
		if err != nil {
			return d, err
		}
		d.StartsAt = &t
	}
	if r.EndsAt != nil {
		t, err := parseInstant("ends_at", *r.EndsAt)
		if err != nil {
			return d, err
		}
		d.EndsAt = &t
	}
	if r.Type != nil {
		st := studio.SessionType(*r.Type)
		d.Type = &st
	}
	return d, nil
}

type SessionDTO struct {
	ID              string `json:"id"`
	ClientID        string `json:"client_id"`
	TrainerID       string `json:"trainer_id"`
	ClientPackageID string `json:"client_package_id,omitempty"`
	Type            string `json:"type"`
	Location        string `json:"location,omitempty"`
	StartsAt        string `json:"starts_at"`
	EndsAt          string `json:"ends_at"`
	Price           string `json:"price,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Status          string `json:"status"`
	Version         int    `json:"version"`
}

func toSessionDTO(s studio.Session) SessionDTO {
	dto := SessionDTO{
		ID:              s.ID,
		ClientID:        s.ClientID,
		TrainerID:       s.TrainerID,
		ClientPackageID: s.ClientPackageID,
		Type:            string(s.Type),
		Location:        s.Location,
		StartsAt:        formatTime(s.StartsAt),
		EndsAt:          formatTime(s.EndsAt),
		Notes:           s.Notes,
		Status:          string(s.Status),
		Version:         s.Version,
	}
	if s.Price != nil {
		dto.Price = s.Price.StringFixed(2)
	}
	return dto
}

type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TransitionDTO struct {
	Session        SessionDTO   `json:"session"`
	AlreadyApplied bool         `json:"already_applied"`
	Consumed       bool         `json:"consumed"`
	Warnings       []WarningDTO `json:"warnings,omitempty"`
}

func toTransitionDTO(r studio.TransitionResult) TransitionDTO {
	dto := TransitionDTO{
		Session:        toSessionDTO(r.Session),
		AlreadyApplied: r.AlreadyApplied,
		Consumed:       r.Consumed,
	}
	for _, w := range r.Warnings {
		dto.Warnings = append(dto.Warnings, WarningDTO{Code: w.Code, Message: w.Message})
	}
	return dto
}

type CancellationDTO struct {
	Session        SessionDTO `json:"session"`
	RefundEligible bool       `json:"refund_eligible"`
	Refunded       bool       `json:"refunded"`
	AlreadyApplied bool       `json:"already_applied"`
}

// =============================================================================
// INVOICES / EXPENSES / REPORTS
// =============================================================================

type LineItemRequest struct {
	Description string `json:"description" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   string `json:"unit_price" validate:"required,numeric"`
}

type InvoiceRequest struct {
	ClientID  string            `json:"client_id" validate:"required"`
	Amount    string            `json:"amount" validate:"omitempty,numeric"`
	Tax       string            `json:"tax" validate:"omitempty,numeric"`
	IssueDate string            `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate   string            `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Items     []LineItemRequest `json:"items" validate:"dive"`
	Notes     string            `json:"notes"`
}

func (r InvoiceRequest) input() (studio.InvoiceInput, error) {
	in := studio.InvoiceInput{ClientID: r.ClientID, Notes: r.Notes}
	var err error
	if r.Amount != "" {
		if in.Amount, err = parseAmount("amount", r.Amount); err != nil {
			return in, err
		}
	}
	if r.Tax != "" {
		if in.Tax, err = parseAmount("tax", r.Tax); err != nil {
			return in, err
		}
	}
	if r.IssueDate != "" {
		if in.IssueDate, err = parseDate("issue_date", r.IssueDate); err != nil {
			return in, err
		}
	}
	if r.DueDate != "" {
		if in.DueDate, err = parseDate("due_date", r.DueDate); err != nil {
			return in, err
		}
	}
	for i, it := range r.Items {
		price, err := parseAmount(fmt.Sprintf("items[%d].unit_price", i), it.UnitPrice)
		if err != nil {
			return in, err
		}
		in.Items = append(in.Items, studio.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   price,
		})
	}
	return in, nil
}

type InvoiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent paid overdue cancelled"`
}

type LineItemDTO struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
}

type InvoiceDTO struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	ClientID  string        `json:"client_id"`
	Amount    string        `json:"amount"`
	Tax       string        `json:"tax"`
	Total     string        `json:"total"`
	Status    string        `json:"status"`
	IssueDate string        `json:"issue_date"`
	DueDate   string        `json:"due_date"`
	PaidAt    string        `json:"paid_at,omitempty"`
	Items     []LineItemDTO `json:"items"`
	Notes     string        `json:"notes,omitempty"`
}

func toInvoiceDTO(inv studio.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:        inv.ID,
		Number:    inv.Number,
		ClientID:  inv.ClientID,
		Amount:    inv.Amount.StringFixed(2),
		Tax:       inv.Tax.StringFixed(2),
		Total:     inv.Total.StringFixed(2),
		Status:    string(inv.Status),
		IssueDate: inv.IssueDate.Format(dateLayout),
		DueDate:   inv.DueDate.Format(dateLayout),
		Items:     []LineItemDTO{},
		Notes:     inv.Notes,
	}
	if inv.PaidAt != nil {
		dto.PaidAt = formatTime(*inv.PaidAt)
	}
	for _, it := range inv.Items {
		dto.Items = append(dto.Items, LineItemDTO{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Total:       it.Total().StringFixed(2),
		})
	}
	return dto
}

type ExpenseRequest struct {
	Category      string `json:"category" validate:"required,max=60"`
	Vendor        string `json:"vendor"`
	Description   string `json:"description"`
	Amount        string `json:"amount" validate:"required,numeric"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Recurring     bool   `json:"recurring"`
	TaxDeductible bool   `json:"tax_deductible"`
	Status        string `json:"status" validate:"omitempty,oneof=pending paid"`
}

func (r ExpenseRequest) input() (studio.ExpenseInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return studio.ExpenseInput{}, err
	}
	date, err := parseDate("date", r.Date)
	if err != nil {
		return studio.ExpenseInput{}, err
	}
	return studio.ExpenseInput{
		Category:      r.Category,
		Vendor:        r.Vendor,
		Description:   r.Description,
		Amount:        amount,
		Date:          date,
		Recurring:     r.Recurring,
		TaxDeductible: r.TaxDeductible,
		Status:        studio.ExpenseStatus(r.Status),
	}, nil
}

type ExpenseDTO struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Vendor        string `json:"vendor,omitempty"`
	Description   string `json:"description,omitempty"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Recurring     bool   `json:"recurring"`
	TaxDeductible bool   `json:"tax_deductible"`
	Status        string `json:"status"`
}

func toExpenseDTO(e studio.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:            e.ID,
		Category:      e.Category,
		Vendor:        e.Vendor,
		Description:   e.Description,
		Amount:        e.Amount.StringFixed(2),
		Date:          e.Date.Format(dateLayout),
		Recurring:     e.Recurring,
		TaxDeductible: e.TaxDeductible,
		Status:        string(e.Status),
	}
}

type ProfitLossDTO struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Income     string            `json:"income"`
	Expenses   string            `json:"expenses"`
	Net        string            `json:"net"`
	ByCategory map[string]string `json:"by_category"`
}

func toProfitLossDTO(pl studio.ProfitLoss) ProfitLossDTO {
	dto := ProfitLossDTO{
		From:       pl.Period.From.Format(dateLayout),
		To:         pl.Period.To.Format(dateLayout),
		Income:     pl.Income.StringFixed(2),
		Expenses:   pl.Expenses.StringFixed(2),
		Net:        pl.Net.StringFixed(2),
		ByCategory: make(map[string]string, len(pl.ByCategory)),
	}
	for k, v := range pl.ByCategory {
		dto.ByCategory[k] = v.StringFixed(2)
	}
	return dto
}

type SweepDTO struct {
	PackagesExpired int `json:"packages_expired"`
	InvoicesOverdue int `json:"invoices_overdue"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// PARSING
// =============================================================================

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &studio.ValidationError{Field: field, Message: "is not a decimal amount"}
	}
	return d, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &studio.ValidationError{Field: field, Message: "must be YYYY-MM-DD"}
	}
	return t, nil
}

func parseInstant(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &studio.ValidationError{Field: field, Message: "must be an RFC 3339 timestamp"}
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
