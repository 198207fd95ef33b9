/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Bearer token authentication and the error -> status mapping
- Package sale, booking and completion through the router
- Portal cancellation with a client account
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/store/sqlstore"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	h      *Handler
	svc    *studio.Service
	store  *sqlstore.Store
	router http.Handler
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	store, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return testNow }
	svc := studio.NewService(store, studio.DefaultConfig(), studio.WithClock(clock))
	tokens := NewTokenIssuer("test-secret", time.Hour, "studio-test")
	tokens.now = clock

	h := NewHandler(svc, store, tokens)
	return &testServer{t: t, h: h, svc: svc, store: store, router: NewRouter(h, opts)}
}

// tokenFor stores a profile with role and returns a bearer token for it.
func (s *testServer) tokenFor(id string, role studio.Role) string {
	s.t.Helper()
	p := studio.Profile{ID: id, Email: id + "@studio.test", Role: role, CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(s.t, s.store.CreateProfile(context.Background(), p))
	token, _, err := s.h.Tokens.Issue(p)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuth_SignUpLoginAndMe(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	// GIVEN: A new account
	rec := srv.do("POST", "/api/auth/signup", "", SignUpRequest{
		Email: "Nina@Mail.test", Password: "long-enough", FullName: "Nina",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signup := decodeBody[TokenDTO](t, rec)
	assert.Equal(t, "nina@mail.test", signup.Profile.Email)
	assert.Equal(t, "lead", signup.Profile.Role)

	// WHEN: Logging in and calling /me with the token
	rec = srv.do("POST", "/api/auth/login", "", LoginRequest{Email: "nina@mail.test", Password: "long-enough"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeBody[TokenDTO](t, rec)

	rec = srv.do("GET", "/api/me", login.Token, nil)

	// THEN: The caller sees their own profile, without capabilities
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[ProfileDTO](t, rec)
	assert.Equal(t, signup.Profile.ID, me.ID)
	assert.Empty(t, me.Capabilities)
}

func TestAuth_Rejections(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	srv.tokenFor("lead-1", studio.RoleLead)

	expired := NewTokenIssuer("test-secret", time.Hour, "studio-test")
	expired.now = func() time.Time { return testNow.Add(-2 * time.Hour) }
	oldToken, _, err := expired.Issue(studio.Profile{ID: "lead-1"})
	require.NoError(t, err)

	forged := NewTokenIssuer("other-secret", time.Hour, "studio-test")
	forgedToken, _, err := forged.Issue(studio.Profile{ID: "lead-1"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"expired", oldToken},
		{"wrong signature", forgedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do("GET", "/api/me", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	t.Run("bad password", func(t *testing.T) {
		srv.do("POST", "/api/auth/signup", "", SignUpRequest{Email: "x@mail.test", Password: "long-enough"})
		rec := srv.do("POST", "/api/auth/login", "", LoginRequest{Email: "x@mail.test", Password: "wrong-one"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuth_RoleChangesApplyToExistingTokens(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	admin := srv.tokenFor("admin-1", studio.RoleAdmin)
	user := srv.tokenFor("user-1", studio.RoleLead)

	// GIVEN: A lead cannot list clients
	require.Equal(t, http.StatusForbidden, srv.do("GET", "/api/clients", user, nil).Code)

	// WHEN: An admin promotes them to trainer
	rec := srv.do("PUT", "/api/profiles/user-1/role", admin, UpdateRoleRequest{Role: "trainer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The same token now carries the trainer capabilities
	assert.Equal(t, http.StatusOK, srv.do("GET", "/api/clients", user, nil).Code)
}

// =============================================================================
// VALIDATION AND ERROR MAPPING
// =============================================================================

func TestDecode_ValidationDetails(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do("POST", "/api/auth/signup", "", SignUpRequest{Email: "nope", Password: "short"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Code    string          `json:"code"`
		Details []FieldErrorDTO `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation", resp.Code)
	var fields []string
	for _, d := range resp.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"email", "password"}, fields)
}

func TestDecode_UnknownFieldRejected(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	rec := srv.do("POST", "/api/auth/login", "", map[string]string{"email": "a@b.test", "password": "x", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&studio.ValidationError{Field: "x", Message: "bad"}, http.StatusBadRequest},
		{studio.ErrUnauthorized, http.StatusUnauthorized},
		{studio.ErrForbidden, http.StatusForbidden},
		{&studio.NotFoundError{Kind: "client", ID: "c"}, http.StatusNotFound},
		{&studio.InsufficientSessionsError{Remaining: 0}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", studio.ErrPackageExpired), http.StatusUnprocessableEntity},
		{studio.ErrPackageInactive, http.StatusUnprocessableEntity},
		{&studio.TransitionError{From: "completed", To: "cancelled"}, http.StatusConflict},
		{studio.ErrDuplicate, http.StatusConflict},
		{studio.ErrPackageInUse, http.StatusConflict},
		{studio.ErrSessionConsumed, http.StatusConflict},
		{&ledger.ReversalError{EntryID: "e", Status: ledger.StatusPending, Reason: "settle it instead"}, http.StatusConflict},
		{studio.ErrConcurrentModification, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFail_HidesInternalErrors(t *testing.T) {
	h := &Handler{}
	rec := httptest.NewRecorder()

	h.fail(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

// =============================================================================
// END-TO-END: PACKAGE SALE, BOOKING, COMPLETION
// =============================================================================

func TestPackageLifecycle_OverHTTP(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	admin := srv.tokenFor("admin-1", studio.RoleAdmin)

	// GIVEN: A 10-session package sold and paid in full
	rec := srv.do("POST", "/api/packages", admin, PackageRequest{
		Name: "Ten Pack", Price: "1000", SessionsIncluded: 10, ValidityDays: 90,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pkg := decodeBody[PackageDTO](t, rec)
	assert.Equal(t, "ten-pack", pkg.Slug)
	assert.Equal(t, "1000.00", pkg.Price)

	rec = srv.do("POST", "/api/clients", admin, ClientRequest{FirstName: "Carla", Status: "active"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	client := decodeBody[ClientDTO](t, rec)

	rec = srv.do("POST", "/api/clients/"+client.ID+"/packages", admin, AssignPackageRequest{
		PackageID: pkg.ID,
		Payment:   &PaymentRequest{Amount: "1000", Method: "card"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[AssignmentDTO](t, rec)
	assert.Equal(t, 10, sale.ClientPackage.SessionsRemaining)
	assert.Equal(t, "2026-05-31", sale.ClientPackage.ExpiryDate)
	require.NotNil(t, sale.Charge)
	assert.Equal(t, "-1000.00", sale.Charge.Amount)

	// WHEN: A session is booked and completed twice
	rec = srv.do("POST", "/api/sessions", admin, BookSessionRequest{
		ClientID:        client.ID,
		ClientPackageID: sale.ClientPackage.ID,
		StartsAt:        "2026-03-03T10:00:00Z",
		EndsAt:          "2026-03-03T11:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decodeBody[SessionDTO](t, rec)
	assert.Equal(t, "scheduled", sess.Status)

	rec = srv.do("POST", "/api/sessions/"+sess.ID+"/complete", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[TransitionDTO](t, rec)

	rec = srv.do("POST", "/api/sessions/"+sess.ID+"/complete", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[TransitionDTO](t, rec)

	// THEN: One unit is consumed and the balance stays settled
	assert.True(t, first.Consumed)
	assert.True(t, second.AlreadyApplied)
	assert.False(t, second.Consumed)

	rec = srv.do("GET", "/api/client-packages/"+sale.ClientPackage.ID, admin, nil)
	assert.Equal(t, 9, decodeBody[ClientPackageDTO](t, rec).SessionsRemaining)

	rec = srv.do("GET", "/api/clients/"+client.ID+"/balance", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "0.00", bal.Balance)
	assert.False(t, bal.Owes)

	// AND: A finished session cannot be cancelled
	rec = srv.do("POST", "/api/sessions/"+sess.ID+"/cancel", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: The sold package can no longer be deleted
	rec = srv.do("DELETE", "/api/packages/"+pkg.ID, admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookSession_InsufficientSessions(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	admin := srv.tokenFor("admin-1", studio.RoleAdmin)
	ctx := studio.WithPrincipal(context.Background(), studio.SystemPrincipal)

	c, err := srv.svc.CreateClient(ctx, studio.ClientInput{FirstName: "Dan", Status: studio.ClientActive})
	require.NoError(t, err)
	rec := srv.do("POST", "/api/packages", admin, PackageRequest{
		Name: "Single", Price: "80", SessionsIncluded: 1, ValidityDays: 30,
	})
	pkg := decodeBody[PackageDTO](t, rec)
	sale, err := srv.svc.AssignPackage(ctx, studio.AssignPackageInput{ClientID: c.ID, PackageID: pkg.ID})
	require.NoError(t, err)

	book := BookSessionRequest{
		ClientID:        c.ID,
		ClientPackageID: sale.ClientPackage.ID,
		StartsAt:        "2026-03-04T10:00:00Z",
		EndsAt:          "2026-03-04T11:00:00Z",
	}
	require.Equal(t, http.StatusCreated, srv.do("POST", "/api/sessions", admin, book).Code)

	// WHEN: A second session is booked on the single-session package
	rec = srv.do("POST", "/api/sessions", admin, book)

	// THEN: 422 with the remaining count
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_sessions", resp.Code)
	assert.Equal(t, float64(1), resp.Details["remaining"])
}

func TestPayments_PendingThenConfirmed(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	admin := srv.tokenFor("admin-1", studio.RoleAdmin)

	rec := srv.do("POST", "/api/clients", admin, ClientRequest{FirstName: "Eve"})
	client := decodeBody[ClientDTO](t, rec)
	rec = srv.do("POST", "/api/clients/"+client.ID+"/charges", admin, ChargeRequest{Amount: "200", Reason: "assessment"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// GIVEN: A pending payment does not reduce the balance
	rec = srv.do("POST", "/api/clients/"+client.ID+"/payments", admin, PaymentRequest{Amount: "200", Status: "pending"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeBody[EntryDTO](t, rec)
	bal := decodeBody[BalanceDTO](t, srv.do("GET", "/api/clients/"+client.ID+"/balance", admin, nil))
	assert.Equal(t, "200.00", bal.Balance)

	// AND: It cannot be reversed while pending
	rec = srv.do("POST", "/api/entries/"+payment.ID+"/reverse", admin, ReverseRequest{Reason: "bounced"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid_transition", decodeBody[ErrorResponse](t, rec).Code)
	bal = decodeBody[BalanceDTO](t, srv.do("GET", "/api/clients/"+client.ID+"/balance", admin, nil))
	assert.Equal(t, "200.00", bal.Balance)

	// WHEN: It is confirmed
	rec = srv.do("POST", "/api/payments/"+payment.ID+"/confirm", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The balance settles and a second settlement is refused
	bal = decodeBody[BalanceDTO](t, srv.do("GET", "/api/clients/"+client.ID+"/balance", admin, nil))
	assert.Equal(t, "0.00", bal.Balance)
	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/payments/"+payment.ID+"/fail", admin, nil).Code)

	lines := decodeBody[[]StatementLineDTO](t, srv.do("GET", "/api/clients/"+client.ID+"/statement", admin, nil))
	require.Len(t, lines, 2)
	assert.Equal(t, "0.00", lines[1].Balance)
}

// =============================================================================
// PORTAL
// =============================================================================

func TestPortal_CancelOwnSession(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	admin := srv.tokenFor("admin-1", studio.RoleAdmin)
	portal := srv.tokenFor("client-1", studio.RoleClient)
	ctx := studio.WithPrincipal(context.Background(), studio.SystemPrincipal)

	// GIVEN: A linked client who may cancel, with a session in 48h
	c, err := srv.svc.CreateClient(ctx, studio.ClientInput{FirstName: "Fay", Status: studio.ClientActive, AllowSelfCancel: true})
	require.NoError(t, err)
	_, err = srv.svc.LinkClientProfile(ctx, c.ID, "client-1")
	require.NoError(t, err)
	rec := srv.do("POST", "/api/sessions", admin, BookSessionRequest{
		ClientID: c.ID,
		StartsAt: "2026-03-04T09:00:00Z",
		EndsAt:   "2026-03-04T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decodeBody[SessionDTO](t, rec)

	// WHEN: The client lists and cancels it from the portal
	mine := decodeBody[[]SessionDTO](t, srv.do("GET", "/api/portal/sessions", portal, nil))
	require.Len(t, mine, 1)

	rec = srv.do("POST", "/api/portal/sessions/"+sess.ID+"/cancel", portal, nil)

	// THEN: It is cancelled and refund-eligible
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[CancellationDTO](t, rec)
	assert.Equal(t, "cancelled", res.Session.Status)
	assert.True(t, res.RefundEligible)

	// AND: Staff routes stay closed to the client account
	assert.Equal(t, http.StatusForbidden, srv.do("GET", "/api/sessions", portal, nil).Code)
	// AND: Staff cannot use the portal
	assert.Equal(t, http.StatusForbidden, srv.do("GET", "/api/portal/balance", admin, nil).Code)
}

func TestReports_ProfitAndLoss(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	admin := srv.tokenFor("admin-1", studio.RoleAdmin)

	rec := srv.do("POST", "/api/expenses", admin, ExpenseRequest{Category: "Rent", Amount: "600", Date: "2026-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Default period is the current month
	pl := decodeBody[ProfitLossDTO](t, srv.do("GET", "/api/reports/profit-loss", admin, nil))
	assert.Equal(t, "2026-03-01", pl.From)
	assert.Equal(t, "-600.00", pl.Net)
	assert.Equal(t, "600.00", pl.ByCategory["rent"])

	rec = srv.do("GET", "/api/reports/profit-loss?from=2026-04-01&to=2026-05-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.00", decodeBody[ProfitLossDTO](t, rec).Expenses)

	rec = srv.do("GET", "/api/reports/profit-loss?from=2026-04-01&to=2026-03-01", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	rec := srv.do("GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sqlite3", decodeBody[map[string]string](t, rec)["driver"])
}
