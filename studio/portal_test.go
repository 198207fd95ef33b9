package studio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/studio"
)

// portalClient creates a client with a linked portal account and returns
// the client and a context acting as that account.
func (f *fixture) portalClient(t *testing.T, allowCancel bool) (studio.Client, context.Context) {
	ctx := asAdmin()
	c, err := f.svc.CreateClient(ctx, studio.ClientInput{
		FirstName: "Nora", Status: studio.ClientActive, AllowSelfCancel: allowCancel,
	})
	require.NoError(t, err)

	prof := studio.Profile{ID: "portal-" + c.ID, Email: c.ID + "@client.test", Role: studio.RoleClient, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, f.store.CreateProfile(context.Background(), prof))
	_, err = f.svc.LinkClientProfile(ctx, c.ID, prof.ID)
	require.NoError(t, err)
	return c, asClient(prof.ID)
}

func TestRefundEligible_Boundary(t *testing.T) {
	start := t0.Add(72 * time.Hour)
	window := 24 * time.Hour

	assert.True(t, studio.RefundEligible(start, start.Add(-(24*time.Hour+time.Minute)), window))
	assert.False(t, studio.RefundEligible(start, start.Add(-window), window))
	assert.False(t, studio.RefundEligible(start, start.Add(-(23*time.Hour+59*time.Minute)), window))
	assert.False(t, studio.RefundEligible(start, start.Add(time.Hour), window))
}

func TestClientCancelSession_Window(t *testing.T) {
	tests := []struct {
		name     string
		ahead    time.Duration
		eligible bool
	}{
		{"24h01m ahead is eligible", 24*time.Hour + time.Minute, true},
		{"23h59m ahead is not", 23*time.Hour + 59*time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A portal client with a session booked 3 days out
			f := newFixture(t)
			c, me := f.portalClient(t, true)
			s := f.book(t, asAdmin(), c.ID, "", 72*time.Hour)

			// WHEN: The client cancels `ahead` before the start
			f.clock.Set(s.StartsAt.Add(-tt.ahead))
			res, err := f.svc.ClientCancelSession(me, s.ID)

			// THEN: The session is cancelled either way
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, res.RefundEligible)
			assert.Equal(t, studio.SessionCancelled, res.Session.Status)
			assert.False(t, res.Refunded)
		})
	}
}

func TestClientCancelSession_DoesNotTouchUnconsumedPackage(t *testing.T) {
	// GIVEN: A session booked against a package, nothing consumed yet
	f := newFixture(t)
	c, me := f.portalClient(t, true)
	sale := f.sell(t, asAdmin(), c.ID, f.tenPack(t).ID, nil)
	s := f.book(t, asAdmin(), c.ID, sale.ClientPackage.ID, 72*time.Hour)

	// WHEN: Cancelled in time, twice
	res, err := f.svc.ClientCancelSession(me, s.ID)
	require.NoError(t, err)
	again, err := f.svc.ClientCancelSession(me, s.ID)
	require.NoError(t, err)

	// THEN: Eligible, but the counter never goes above the included count
	assert.True(t, res.RefundEligible)
	assert.False(t, res.Refunded)
	assert.True(t, again.AlreadyApplied)
	assert.Equal(t, 10, f.remaining(t, sale.ClientPackage.ID))
}

func TestClientCancelSession_Refusals(t *testing.T) {
	f := newFixture(t)
	c, me := f.portalClient(t, false)
	other, otherCtx := f.portalClient(t, true)
	mine := f.book(t, asAdmin(), c.ID, "", 72*time.Hour)
	theirs := f.book(t, asAdmin(), other.ID, "", 72*time.Hour)

	// flag off
	_, err := f.svc.ClientCancelSession(me, mine.ID)
	assert.ErrorIs(t, err, studio.ErrForbidden)

	// someone else's session
	_, err = f.svc.ClientCancelSession(me, theirs.ID)
	assert.True(t, studio.IsNotFound(err))

	// already completed
	_, err = f.svc.CompleteSession(asAdmin(), theirs.ID)
	require.NoError(t, err)
	_, err = f.svc.ClientCancelSession(otherCtx, theirs.ID)
	assert.ErrorIs(t, err, studio.ErrInvalidTransition)

	// staff are not portal users
	_, err = f.svc.ClientCancelSession(asAdmin(), mine.ID)
	assert.ErrorIs(t, err, studio.ErrForbidden)

	// unlinked client account
	_, err = f.svc.ClientCancelSession(asClient("nobody"), mine.ID)
	assert.ErrorIs(t, err, studio.ErrForbidden)
}

func TestPortal_ReadsOnlyOwnRecords(t *testing.T) {
	f := newFixture(t)
	c, me := f.portalClient(t, true)
	other, _ := f.portalClient(t, true)
	pkg := f.tenPack(t)
	f.sell(t, asAdmin(), c.ID, pkg.ID, &studio.PaymentInput{Amount: money(400), Method: "cash"})
	f.sell(t, asAdmin(), other.ID, pkg.ID, nil)
	f.book(t, asAdmin(), c.ID, "", 24*time.Hour)
	f.book(t, asAdmin(), other.ID, "", 24*time.Hour)

	pkgs, err := f.svc.PortalPackages(me)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, c.ID, pkgs[0].ClientID)

	sessions, err := f.svc.PortalSessions(me, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, c.ID, sessions[0].ClientID)

	bal, err := f.svc.PortalBalance(me)
	require.NoError(t, err)
	assert.Equal(t, "600.00", bal.Balance.String())
}
