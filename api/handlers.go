/*
handlers.go - HTTP API handlers for the studio engine

PURPOSE:
  Exposes the studio service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to studio.Service. No
  business rule lives here: access checks, invariants and transactions are
  all enforced by the service.

ENDPOINTS:
  Auth (public):
    POST   /api/auth/signup              Create account (role lead)
    POST   /api/auth/login               Exchange credentials for a token
  Auth (bearer):
    POST   /api/auth/password            Change own password
    GET    /api/me                       Own profile and capabilities

  Clients:
    GET    /api/clients                  List (?status=&search=)
    POST   /api/clients                  Create
    GET    /api/clients/{id}             Get
    PUT    /api/clients/{id}             Update
    POST   /api/clients/{id}/status      Soft lifecycle change
    POST   /api/clients/{id}/link        Link a portal profile
    GET    /api/clients/{id}/packages    Purchased packages
    POST   /api/clients/{id}/packages    Sell a package
    GET    /api/clients/{id}/balance     Computed balance
    GET    /api/clients/{id}/statement   Running statement
    POST   /api/clients/{id}/payments    Record payment
    POST   /api/clients/{id}/charges     Record charge or adjustment

  Catalog:
    GET|POST        /api/packages
    GET|PUT|DELETE  /api/packages/{id}

  Client packages:
    GET    /api/client-packages/{id}
    GET    /api/client-packages/{id}/usage
    POST   /api/client-packages/{id}/cancel

  Sessions:
    GET|POST           /api/sessions
    GET|PATCH|DELETE   /api/sessions/{id}
    POST   /api/sessions/{id}/complete|cancel|no-show
    POST   /api/sessions/{id}/reverse-consumption

  Ledger:
    POST   /api/payments/{id}/confirm|fail
    POST   /api/entries/{id}/reverse

  Invoices, expenses, reports:
    GET|POST /api/invoices, GET /api/invoices/{id}, POST /api/invoices/{id}/status
    GET|POST /api/expenses, PUT|DELETE /api/expenses/{id}
    GET      /api/reports/profit-loss?from=&to=

  Portal (client accounts):
    GET    /api/portal/sessions|packages|balance
    POST   /api/portal/sessions/{id}/cancel

  Profiles and maintenance (admin):
    GET    /api/profiles/{id}
    PUT    /api/profiles/{id}/role
    POST   /api/admin/sweep

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status (see statusFor):
  - 400: Validation errors, invalid input
  - 401: Missing or invalid credentials
  - 403: Capability missing
  - 404: Resource not found (or not visible to the caller)
  - 409: Conflict (transition, duplicate, in use, consumed)
  - 422: Package cannot cover the session (insufficient, expired, inactive)
  - 503: Retryable backend failure
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/store/sqlstore"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *studio.Service
	Store   *sqlstore.Store
	Tokens  *TokenIssuer

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *studio.Service, store *sqlstore.Store, tokens *TokenIssuer) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Service: svc, Store: store, Tokens: tokens, validate: v}
}

// =============================================================================
// AUTH / PROFILES
// =============================================================================

// SignUp handles POST /api/auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Service.SignUp(r.Context(), studio.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeToken(w, http.StatusCreated, p)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeToken(w, http.StatusOK, p)
}

func (h *Handler) writeToken(w http.ResponseWriter, status int, p studio.Profile) {
	token, exp, err := h.Tokens.Issue(p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, status, TokenDTO{Token: token, ExpiresAt: formatTime(exp), Profile: toProfileDTO(p)})
}

// ChangePassword handles POST /api/auth/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Service.ChangePassword(r.Context(), req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Me(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// GetProfile handles GET /api/profiles/{id}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// UpdateRole handles PUT /api/profiles/{id}/role
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Service.UpdateRole(r.Context(), chi.URLParam(r, "id"), studio.Role(req.Role))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// =============================================================================
// CLIENTS
// =============================================================================

// ListClients handles GET /api/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clients, err := h.Service.ListClients(r.Context(), studio.ClientFilter{
		Status: studio.ClientStatus(q.Get("status")),
		Search: q.Get("search"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, toClientDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient handles POST /api/clients
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Service.CreateClient(r.Context(), req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// GetClient handles GET /api/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// UpdateClient handles PUT /api/clients/{id}
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Service.UpdateClient(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// SetClientStatus handles POST /api/clients/{id}/status
func (h *Handler) SetClientStatus(w http.ResponseWriter, r *http.Request) {
	var req ClientStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Service.SetClientStatus(r.Context(), chi.URLParam(r, "id"), studio.ClientStatus(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// LinkClientProfile handles POST /api/clients/{id}/link
func (h *Handler) LinkClientProfile(w http.ResponseWriter, r *http.Request) {
	var req LinkProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Service.LinkClientProfile(r.Context(), chi.URLParam(r, "id"), req.ProfileID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// =============================================================================
// PACKAGE CATALOG
// =============================================================================

// ListPackages handles GET /api/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.Service.ListPackages(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]PackageDTO, 0, len(pkgs))
	for _, p := range pkgs {
		dtos = append(dtos, toPackageDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePackage handles POST /api/packages
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req PackageRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Service.CreatePackage(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(p))
}

// GetPackage handles GET /api/packages/{id}
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPackage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(p))
}

// UpdatePackage handles PUT /api/packages/{id}
func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	var req PackageRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.Service.UpdatePackage(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(p))
}

// DeletePackage handles DELETE /api/packages/{id}
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeletePackage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLIENT PACKAGES
// =============================================================================

// ListClientPackages handles GET /api/clients/{id}/packages
func (h *Handler) ListClientPackages(w http.ResponseWriter, r *http.Request) {
	cps, err := h.Service.ListClientPackages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientPackageDTOs(cps))
}

func clientPackageDTOs(cps []studio.ClientPackage) []ClientPackageDTO {
	dtos := make([]ClientPackageDTO, 0, len(cps))
	for _, cp := range cps {
		dtos = append(dtos, toClientPackageDTO(cp))
	}
	return dtos
}

// AssignPackage handles POST /api/clients/{id}/packages
func (h *Handler) AssignPackage(w http.ResponseWriter, r *http.Request) {
	var req AssignPackageRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.Service.AssignPackage(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AssignmentDTO{
		ClientPackage: toClientPackageDTO(res.ClientPackage),
		Charge:        toEntryPtr(res.Charge),
		Payment:       toEntryPtr(res.Payment),
	})
}

// GetClientPackage handles GET /api/client-packages/{id}
func (h *Handler) GetClientPackage(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Service.GetClientPackage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientPackageDTO(cp))
}

// PackageUsage handles GET /api/client-packages/{id}/usage
func (h *Handler) PackageUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Service.PackageUsageHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]UsageDTO, 0, len(usage))
	for _, u := range usage {
		dtos = append(dtos, toUsageDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelClientPackage handles POST /api/client-packages/{id}/cancel
func (h *Handler) CancelClientPackage(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Service.CancelClientPackage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientPackageDTO(cp))
}

// =============================================================================
// LEDGER
// =============================================================================

// GetBalance handles GET /api/clients/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(sum))
}

// GetStatement handles GET /api/clients/{id}/statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Service.Statement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]StatementLineDTO, 0, len(lines))
	for _, l := range lines {
		dtos = append(dtos, StatementLineDTO{
			Entry:   toEntryDTO(l.Entry),
			Counted: l.Counted,
			Balance: l.Balance.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment handles POST /api/clients/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	e, err := h.Service.RecordPayment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// RecordCharge handles POST /api/clients/{id}/charges
func (h *Handler) RecordCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	e, err := h.Service.RecordCharge(r.Context(), chi.URLParam(r, "id"), studio.ChargeInput{
		Amount:     amount,
		Reason:     req.Reason,
		Adjustment: req.Adjustment,
		Status:     ledger.EntryStatus(req.Status),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// ConfirmPayment handles POST /api/payments/{id}/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, ledger.StatusCompleted)
}

// FailPayment handles POST /api/payments/{id}/fail
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, ledger.StatusFailed)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, status ledger.EntryStatus) {
	e, err := h.Service.SettleEntry(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// ReverseEntry handles POST /api/entries/{id}/reverse
func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Service.ReverseEntry(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// =============================================================================
// SESSIONS
// =============================================================================

// ListSessions handles GET /api/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := studio.SessionFilter{
		ClientID:        q.Get("client_id"),
		TrainerID:       q.Get("trainer_id"),
		ClientPackageID: q.Get("client_package_id"),
		Status:          studio.SessionStatus(q.Get("status")),
	}
	var err error
	if f.From, f.To, err = queryRange(r); err != nil {
		h.fail(w, err)
		return
	}
	sessions, err := h.Service.ListSessions(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTOs(sessions))
}

func sessionDTOs(sessions []studio.Session) []SessionDTO {
	dtos := make([]SessionDTO, 0, len(sessions))
	for _, s := range sessions {
		dtos = append(dtos, toSessionDTO(s))
	}
	return dtos
}

// BookSession handles POST /api/sessions
func (h *Handler) BookSession(w http.ResponseWriter, r *http.Request) {
	var req BookSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Service.BookSession(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(s))
}

// GetSession handles GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// UpdateSession handles PATCH /api/sessions/{id}
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := req.details()
	if err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.Service.UpdateSessionDetails(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteSession handles POST /api/sessions/{id}/complete
func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, studio.SessionCompleted)
}

// CancelSession handles POST /api/sessions/{id}/cancel
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, studio.SessionCancelled)
}

// MarkNoShow handles POST /api/sessions/{id}/no-show
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, studio.SessionNoShow)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to studio.SessionStatus) {
	res, err := h.Service.TransitionSession(r.Context(), chi.URLParam(r, "id"), to)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionDTO(res))
}

// ReverseConsumption handles POST /api/sessions/{id}/reverse-consumption
func (h *Handler) ReverseConsumption(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	refunded, err := h.Service.ReverseConsumption(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refunded": refunded})
}

// =============================================================================
// INVOICES
// =============================================================================

// ListInvoices handles GET /api/invoices
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	invs, err := h.Service.ListInvoices(r.Context(), studio.InvoiceFilter{
		ClientID: q.Get("client_id"),
		Status:   studio.InvoiceStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]InvoiceDTO, 0, len(invs))
	for _, inv := range invs {
		dtos = append(dtos, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInvoice handles POST /api/invoices
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.Service.CreateInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// GetInvoice handles GET /api/invoices/{id}
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// UpdateInvoiceStatus handles POST /api/invoices/{id}/status
func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req InvoiceStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Service.UpdateInvoiceStatus(r.Context(), chi.URLParam(r, "id"), studio.InvoiceStatus(req.Status))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// =============================================================================
// EXPENSES / REPORTS
// =============================================================================

// ListExpenses handles GET /api/expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	f := studio.ExpenseFilter{Category: r.URL.Query().Get("category")}
	var err error
	if f.From, f.To, err = queryRange(r); err != nil {
		h.fail(w, err)
		return
	}
	expenses, err := h.Service.ListExpenses(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]ExpenseDTO, 0, len(expenses))
	for _, e := range expenses {
		dtos = append(dtos, toExpenseDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpense handles POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	e, err := h.Service.CreateExpense(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// UpdateExpense handles PUT /api/expenses/{id}
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	e, err := h.Service.UpdateExpense(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// DeleteExpense handles DELETE /api/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProfitAndLoss handles GET /api/reports/profit-loss
// Without from/to it reports the current month.
func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	period := studio.Month(h.Service.Now())
	from, to, err := queryRange(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !from.IsZero() || !to.IsZero() {
		period = studio.Period{From: from, To: to}
	}
	pl, err := h.Service.ProfitAndLoss(r.Context(), period)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfitLossDTO(pl))
}

// Sweep handles POST /api/admin/sweep: runs the scheduled maintenance now.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.Service.ExpirePackages(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	overdue, err := h.Service.MarkOverdueInvoices(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO{PackagesExpired: expired, InvoicesOverdue: overdue})
}

// =============================================================================
// PORTAL
// =============================================================================

// PortalSessions handles GET /api/portal/sessions
func (h *Handler) PortalSessions(w http.ResponseWriter, r *http.Request) {
	from, to, err := queryRange(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	sessions, err := h.Service.PortalSessions(r.Context(), from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTOs(sessions))
}

// PortalPackages handles GET /api/portal/packages
func (h *Handler) PortalPackages(w http.ResponseWriter, r *http.Request) {
	cps, err := h.Service.PortalPackages(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientPackageDTOs(cps))
}

// PortalBalance handles GET /api/portal/balance
func (h *Handler) PortalBalance(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.PortalBalance(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(sum))
}

// PortalCancelSession handles POST /api/portal/sessions/{id}/cancel
func (h *Handler) PortalCancelSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ClientCancelSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancellationDTO{
		Session:        toSessionDTO(res.Session),
		RefundEligible: res.RefundEligible,
		Refunded:       res.Refunded,
		AlreadyApplied: res.AlreadyApplied,
	})
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": h.Store.Driver()})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. On failure it writes the 400
// response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.fail(w, err)
		return false
	}
	return true
}

// queryRange reads optional ?from= and ?to= dates.
func queryRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = parseDate("from", v); err != nil {
			return
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = parseDate("to", v)
	}
	return
}

// FieldErrorDTO describes one invalid request field.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &ve), errors.Is(err, studio.ErrValidation), errors.Is(err, ledger.ErrZeroAmount):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, studio.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, studio.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, studio.ErrNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, studio.ErrInsufficientSessions):
		return http.StatusUnprocessableEntity, "insufficient_sessions"
	case errors.Is(err, studio.ErrPackageExpired):
		return http.StatusUnprocessableEntity, "package_expired"
	case errors.Is(err, studio.ErrPackageInactive):
		return http.StatusUnprocessableEntity, "package_inactive"
	case errors.Is(err, studio.ErrInvalidTransition), errors.Is(err, ledger.ErrStatusTransition),
		errors.Is(err, ledger.ErrNotReversible):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, studio.ErrDuplicate), errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, studio.ErrPackageInUse):
		return http.StatusConflict, "package_in_use"
	case errors.Is(err, studio.ErrSessionConsumed):
		return http.StatusConflict, "session_consumed"
	case studio.IsRetryable(err):
		return http.StatusServiceUnavailable, "retry"
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes err as an ErrorResponse. Internal errors are logged and their
// text is not sent to the client.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var ve validator.ValidationErrors
	var fe *studio.ValidationError
	var ie *studio.InsufficientSessionsError
	var te *studio.TransitionError
	switch {
	case errors.As(err, &ve):
		resp.Error = "Invalid request"
		fields := make([]FieldErrorDTO, 0, len(ve))
		for _, e := range ve {
			fields = append(fields, FieldErrorDTO{Field: e.Field(), Message: "failed on " + e.Tag()})
		}
		resp.Details = fields
	case errors.As(err, &fe):
		resp.Details = []FieldErrorDTO{{Field: fe.Field, Message: fe.Message}}
	case errors.As(err, &ie):
		resp.Details = map[string]any{"client_package_id": ie.ClientPackageID, "remaining": ie.Remaining}
	case errors.As(err, &te):
		resp.Details = map[string]string{"from": te.From, "to": te.To}
	}

	if status == http.StatusInternalServerError {
		log.Printf("[API] Internal error: %v", err)
		resp.Error = "Internal server error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
