package studio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// END-TO-END
// =============================================================================

func TestScenario_PrepaidPackage_CompletionsDoNotTouchLedger(t *testing.T) {
	// GIVEN: A 10-session package priced at 1000 sold to client C
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Carla")
	pkg := f.tenPack(t)
	sale := f.sell(t, ctx, c.ID, pkg.ID, nil)

	assert.Equal(t, 10, sale.ClientPackage.SessionsRemaining)
	require.NotNil(t, sale.Charge)
	assert.True(t, sale.Charge.Amount.Equal(ledger.NewMoney(-1000)))

	// WHEN: A completed payment of 1000 is recorded
	_, err := f.svc.RecordPayment(ctx, c.ID, studio.PaymentInput{Amount: money(1000), Method: "card"})
	require.NoError(t, err)

	// THEN: Balance is zero
	assert.True(t, f.balance(t, c.ID).Balance.IsZero())

	// WHEN: Three sessions are booked and completed against the package
	for i := 1; i <= 3; i++ {
		s := f.book(t, ctx, c.ID, sale.ClientPackage.ID, time.Duration(i)*24*time.Hour)
		res, err := f.svc.CompleteSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, res.Consumed)
	}

	// THEN: 7 sessions remain and the balance is still zero
	assert.Equal(t, 7, f.remaining(t, sale.ClientPackage.ID))
	sum := f.balance(t, c.ID)
	assert.True(t, sum.Balance.IsZero())
	assert.Equal(t, 2, sum.EntryCount)
}

// =============================================================================
// CONSUMPTION RULE
// =============================================================================

func TestCompleteSession_TwiceDeductsOnce(t *testing.T) {
	// GIVEN: A scheduled session on a 10-pack
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Ben")
	sale := f.sell(t, ctx, c.ID, f.tenPack(t).ID, nil)
	s := f.book(t, ctx, c.ID, sale.ClientPackage.ID, 48*time.Hour)

	// WHEN: It is completed twice
	first, err := f.svc.CompleteSession(ctx, s.ID)
	require.NoError(t, err)
	second, err := f.svc.CompleteSession(ctx, s.ID)
	require.NoError(t, err)

	// THEN: The second call is a no-op
	assert.False(t, first.AlreadyApplied)
	assert.True(t, second.AlreadyApplied)
	assert.False(t, second.Consumed)
	assert.Equal(t, 9, f.remaining(t, sale.ClientPackage.ID))

	usage, err := f.svc.PackageUsageHistory(ctx, sale.ClientPackage.ID)
	require.NoError(t, err)
	assert.Len(t, usage, 1)
}

func TestCompleteSession_ConcurrentCallsDeductOnce(t *testing.T) {
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Dana")
	sale := f.sell(t, ctx, c.ID, f.tenPack(t).ID, nil)
	s := f.book(t, ctx, c.ID, sale.ClientPackage.ID, 48*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CompleteSession(ctx, s.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, f.remaining(t, sale.ClientPackage.ID))
}

func TestCompleteSession_ExhaustedPackageWarnsAndStaysAtZero(t *testing.T) {
	// GIVEN: A booked session whose package counter was driven to 0 elsewhere
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Eli")
	pkg, err := f.svc.CreatePackage(ctx, studio.PackageInput{Name: "Single", Price: money(80), SessionsIncluded: 1, ValidityDays: 30})
	require.NoError(t, err)
	sale := f.sell(t, ctx, c.ID, pkg.ID, nil)
	s := f.book(t, ctx, c.ID, sale.ClientPackage.ID, 24*time.Hour)
	_, applied, err := f.store.AdjustSessionsRemaining(context.Background(), sale.ClientPackage.ID, -1)
	require.NoError(t, err)
	require.True(t, applied)

	// WHEN: The session is completed
	res, err := f.svc.CompleteSession(ctx, s.ID)

	// THEN: Completion succeeds with a warning and the counter stays at 0
	require.NoError(t, err)
	assert.Equal(t, studio.SessionCompleted, res.Session.Status)
	assert.False(t, res.Consumed)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, studio.WarnPackageExhausted, res.Warnings[0].Code)
	assert.Equal(t, 0, f.remaining(t, sale.ClientPackage.ID))
}

func TestBookSession_PackageBounds(t *testing.T) {
	// GIVEN: A 2-session package
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Fay")
	pkg, err := f.svc.CreatePackage(ctx, studio.PackageInput{Name: "Duo", Price: money(150), SessionsIncluded: 2, ValidityDays: 30})
	require.NoError(t, err)
	sale := f.sell(t, ctx, c.ID, pkg.ID, nil)
	cpID := sale.ClientPackage.ID

	// WHEN: Two sessions are booked
	f.book(t, ctx, c.ID, cpID, 24*time.Hour)
	f.book(t, ctx, c.ID, cpID, 48*time.Hour)

	// THEN: A third is refused with the remaining count
	start := t0.Add(72 * time.Hour)
	_, err = f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: c.ID, ClientPackageID: cpID, StartsAt: start, EndsAt: start.Add(time.Hour),
	})
	var ise *studio.InsufficientSessionsError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 2, ise.Remaining)
	assert.ErrorIs(t, err, studio.ErrInsufficientSessions)
}

func TestBookSession_RejectsExpiredAndForeignPackages(t *testing.T) {
	f := newFixture(t)
	ctx := asAdmin()
	a := f.client(t, ctx, "Gus")
	b := f.client(t, ctx, "Hal")
	pkg, err := f.svc.CreatePackage(ctx, studio.PackageInput{Name: "Week", Price: money(100), SessionsIncluded: 3, ValidityDays: 7})
	require.NoError(t, err)
	sale := f.sell(t, ctx, a.ID, pkg.ID, nil)

	// past the expiry day
	start := t0.AddDate(0, 0, 8)
	_, err = f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: a.ID, ClientPackageID: sale.ClientPackage.ID, StartsAt: start, EndsAt: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, studio.ErrPackageExpired)

	// on the expiry day itself
	start = t0.AddDate(0, 0, 7).Add(8 * time.Hour)
	_, err = f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: a.ID, ClientPackageID: sale.ClientPackage.ID, StartsAt: start, EndsAt: start.Add(time.Hour),
	})
	assert.NoError(t, err)

	// someone else's package
	_, err = f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: b.ID, ClientPackageID: sale.ClientPackage.ID, StartsAt: t0.Add(time.Hour), EndsAt: t0.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, studio.ErrValidation)
}

func TestBookSession_DirectPriceChargesAtBooking(t *testing.T) {
	// GIVEN: A client without a package
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Ida")
	price := money(70)

	// WHEN: A priced session is booked and completed
	s, err := f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: c.ID, Price: &price, StartsAt: t0.Add(24 * time.Hour), EndsAt: t0.Add(25 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.svc.CompleteSession(ctx, s.ID)
	require.NoError(t, err)

	// THEN: Exactly one charge, written at booking
	sum := f.balance(t, c.ID)
	assert.Equal(t, 1, sum.EntryCount)
	assert.True(t, sum.Balance.Equal(ledger.NewMoney(70)))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Jo")
	sale := f.sell(t, ctx, c.ID, f.tenPack(t).ID, nil)
	s := f.book(t, ctx, c.ID, sale.ClientPackage.ID, 24*time.Hour)

	_, err := f.svc.MarkNoShow(ctx, s.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteSession(ctx, s.ID)
	var te *studio.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "no_show", te.From)
	assert.Equal(t, "completed", te.To)
	assert.ErrorIs(t, err, studio.ErrInvalidTransition)
	assert.Equal(t, 10, f.remaining(t, sale.ClientPackage.ID))

	res, err := f.svc.MarkNoShow(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)

	_, err = f.svc.TransitionSession(ctx, s.ID, studio.SessionScheduled)
	assert.ErrorIs(t, err, studio.ErrValidation)
}

func TestUpdateSessionDetails_KeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Kim")
	s := f.book(t, ctx, c.ID, "", 24*time.Hour)

	loc := "Studio B"
	start := s.StartsAt.Add(2 * time.Hour)
	end := start.Add(45 * time.Minute)
	got, err := f.svc.UpdateSessionDetails(ctx, s.ID, studio.SessionDetails{Location: &loc, StartsAt: &start, EndsAt: &end})
	require.NoError(t, err)
	assert.Equal(t, "Studio B", got.Location)
	assert.Equal(t, studio.SessionScheduled, got.Status)

	stored, err := f.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, start, stored.StartsAt)
	assert.Equal(t, 2, stored.Version)

	bad := start.Add(-time.Hour)
	_, err = f.svc.UpdateSessionDetails(ctx, s.ID, studio.SessionDetails{EndsAt: &bad})
	assert.ErrorIs(t, err, studio.ErrValidation)
}

func TestDeleteSession_RequiresReversalOfConsumption(t *testing.T) {
	// GIVEN: A completed session that consumed a unit
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Lea")
	sale := f.sell(t, ctx, c.ID, f.tenPack(t).ID, nil)
	s := f.book(t, ctx, c.ID, sale.ClientPackage.ID, 24*time.Hour)
	_, err := f.svc.CompleteSession(ctx, s.ID)
	require.NoError(t, err)

	// WHEN/THEN: Delete is refused
	assert.ErrorIs(t, f.svc.DeleteSession(ctx, s.ID), studio.ErrSessionConsumed)

	// WHEN: The consumption is reversed
	refunded, err := f.svc.ReverseConsumption(ctx, s.ID, "booked in error")
	require.NoError(t, err)
	assert.True(t, refunded)
	assert.Equal(t, 10, f.remaining(t, sale.ClientPackage.ID))

	// THEN: A second reversal does nothing and delete succeeds
	refunded, err = f.svc.ReverseConsumption(ctx, s.ID, "again")
	require.NoError(t, err)
	assert.False(t, refunded)
	require.NoError(t, f.svc.DeleteSession(ctx, s.ID))

	_, err = f.svc.GetSession(ctx, s.ID)
	assert.True(t, studio.IsNotFound(err))
}

func TestDeleteSession_RequiresReversalOfDirectCharge(t *testing.T) {
	// GIVEN: A priced session without a package, charged at booking
	f := newFixture(t)
	ctx := asAdmin()
	c := f.client(t, ctx, "Kai")
	price := money(60)
	s, err := f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: c.ID, Price: &price, StartsAt: t0.Add(24 * time.Hour), EndsAt: t0.Add(25 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "60.00", f.balance(t, c.ID).Balance.String())

	// WHEN/THEN: Delete is refused while the charge stands
	assert.ErrorIs(t, f.svc.DeleteSession(ctx, s.ID), studio.ErrSessionConsumed)
	_, err = f.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)

	// WHEN: Staff reverse the charge
	entries, err := f.store.ClientEntries(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = f.svc.ReverseEntry(ctx, entries[0].ID, "booked in error")
	require.NoError(t, err)

	// THEN: Delete succeeds and the client owes nothing
	require.NoError(t, f.svc.DeleteSession(ctx, s.ID))
	assert.Equal(t, "0.00", f.balance(t, c.ID).Balance.String())
}

// =============================================================================
// ACCESS
// =============================================================================

func TestSessions_TrainerSeesOnlyOwnClients(t *testing.T) {
	f := newFixture(t)
	mine := asTrainer("trainer-1")
	theirs := asTrainer("trainer-2")
	c := f.client(t, mine, "Max")
	s := f.book(t, mine, c.ID, "", 24*time.Hour)

	_, err := f.svc.GetSession(theirs, s.ID)
	assert.True(t, studio.IsNotFound(err))
	_, err = f.svc.CompleteSession(theirs, s.ID)
	assert.True(t, studio.IsNotFound(err))

	list, err := f.svc.ListSessions(theirs, studio.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListSessions(mine, studio.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSessions_RequireCapability(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BookSession(context.Background(), studio.BookSessionInput{})
	assert.ErrorIs(t, err, studio.ErrUnauthorized)

	_, err = f.svc.BookSession(asClient("p-1"), studio.BookSessionInput{})
	assert.ErrorIs(t, err, studio.ErrForbidden)
}
