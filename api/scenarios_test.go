/*
scenarios_test.go - Tests for demo scenarios

Each scenario is loaded into a fresh in-memory store and checked against
the numbers its description promises.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/studio"
)

func systemCtx() context.Context {
	return studio.WithPrincipal(context.Background(), studio.SystemPrincipal)
}

func TestScenario_PrepaidPackage(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	// WHEN: The prepaid scenario is loaded
	res, err := LoadScenario(context.Background(), srv.svc, "prepaid-package")
	require.NoError(t, err)

	// THEN: 3 of 10 sessions are used and the client owes nothing
	cp, err := srv.svc.GetClientPackage(systemCtx(), res.Created["client_package_id"])
	require.NoError(t, err)
	assert.Equal(t, 10, cp.SessionsIncluded)
	assert.Equal(t, 7, cp.SessionsRemaining)

	sum, err := srv.svc.Balance(systemCtx(), res.ClientID)
	require.NoError(t, err)
	assert.True(t, sum.Balance.IsZero())
	assert.Equal(t, 2, sum.EntryCount)

	usage, err := srv.svc.PackageUsageHistory(systemCtx(), cp.ID)
	require.NoError(t, err)
	assert.Len(t, usage, 3)
}

func TestScenario_PortalClient(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	res, err := LoadScenario(context.Background(), srv.svc, "portal-client")
	require.NoError(t, err)

	// GIVEN: The portal account logs in
	profile, err := srv.svc.Authenticate(context.Background(), PortalDemoEmail, PortalDemoPassword)
	require.NoError(t, err)
	assert.Equal(t, studio.RoleClient, profile.Role)
	portal := studio.WithPrincipal(context.Background(), studio.NewPrincipal(profile))

	// WHEN: Both sessions are cancelled from the portal
	outside, err := srv.svc.ClientCancelSession(portal, res.Created["refundable_session_id"])
	require.NoError(t, err)
	inside, err := srv.svc.ClientCancelSession(portal, res.Created["non_refundable_session_id"])
	require.NoError(t, err)

	// THEN: Only the one outside the window is refund-eligible
	assert.True(t, outside.RefundEligible)
	assert.False(t, inside.RefundEligible)

	cps, err := srv.svc.PortalPackages(portal)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, 5, cps[0].SessionsRemaining)
}

func TestScenario_PortalClientLoadsTwice(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	_, err := LoadScenario(context.Background(), srv.svc, "portal-client")
	require.NoError(t, err)
	_, err = LoadScenario(context.Background(), srv.svc, "portal-client")
	assert.NoError(t, err)
}

func TestScenario_Invoicing(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	res, err := LoadScenario(context.Background(), srv.svc, "invoicing")
	require.NoError(t, err)

	invs, err := srv.svc.ListInvoices(systemCtx(), studio.InvoiceFilter{ClientID: res.ClientID})
	require.NoError(t, err)
	require.Len(t, invs, 2)

	byNumber := map[string]studio.Invoice{}
	for _, inv := range invs {
		byNumber[inv.Number] = inv
	}
	assert.Equal(t, studio.InvoiceOverdue, byNumber[res.Created["overdue_invoice"]].Status)
	paid := byNumber[res.Created["paid_invoice"]]
	assert.Equal(t, studio.InvoicePaid, paid.Status)
	assert.Equal(t, "181.50", paid.Total.StringFixed(2))

	pl, err := srv.svc.ProfitAndLoss(systemCtx(), studio.Month(testNow))
	require.NoError(t, err)
	assert.Equal(t, "181.50", pl.Income.StringFixed(2))
	assert.Equal(t, "1578.90", pl.Expenses.StringFixed(2))
}

func TestScenario_Unknown(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	_, err := LoadScenario(context.Background(), srv.svc, "nope")
	assert.ErrorIs(t, err, studio.ErrNotFound)
}

func TestScenarioRoutes(t *testing.T) {
	t.Run("hidden unless demo mode", func(t *testing.T) {
		srv := newTestServer(t, RouterOptions{})
		assert.Equal(t, http.StatusNotFound, srv.do("GET", "/api/scenarios", "", nil).Code)
	})

	t.Run("load and report current", func(t *testing.T) {
		srv := newTestServer(t, RouterOptions{EnableDemo: true})

		list := decodeBody[[]ScenarioDTO](t, srv.do("GET", "/api/scenarios", "", nil))
		assert.Len(t, list, 3)

		rec := srv.do("POST", "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "prepaid-package"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		current := decodeBody[map[string]string](t, srv.do("GET", "/api/scenarios/current", "", nil))
		assert.Equal(t, "prepaid-package", current["scenario_id"])

		rec = srv.do("POST", "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestBootstrapAdmin(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	ctx := context.Background()

	// GIVEN: An empty database
	p, err := BootstrapAdmin(ctx, srv.svc, "owner@studio.test", "owner-password")
	require.NoError(t, err)
	assert.Equal(t, studio.RoleAdmin, p.Role)

	// WHEN: It runs again on every restart
	again, err := BootstrapAdmin(ctx, srv.svc, "owner@studio.test", "owner-password")
	require.NoError(t, err)

	// THEN: The same account is kept
	assert.Equal(t, p.ID, again.ID)

	// AND: A deliberate demotion survives restarts
	_, err = srv.svc.UpdateRole(systemCtx(), p.ID, studio.RoleTrainer)
	require.NoError(t, err)
	kept, err := BootstrapAdmin(ctx, srv.svc, "owner@studio.test", "owner-password")
	require.NoError(t, err)
	assert.Equal(t, studio.RoleTrainer, kept.Role)

	_, err = BootstrapAdmin(ctx, srv.svc, "owner@studio.test", "other-password")
	assert.ErrorIs(t, err, studio.ErrUnauthorized)
}
