package studio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/store/sqlstore"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu       sync.Mutex
	welcomes []string
	changed  []string
}

func (n *recordingNotifier) Welcome(_ context.Context, to, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, to)
}

func (n *recordingNotifier) PasswordChanged(_ context.Context, to string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, to)
}

type fixture struct {
	svc      *studio.Service
	store    *sqlstore.Store
	clock    *clock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, mutate ...func(*studio.Config)) *fixture {
	store, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := studio.DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{store: store, clock: &clock{now: t0}, notifier: &recordingNotifier{}}
	f.svc = studio.NewService(store, cfg, studio.WithClock(f.clock.Now), studio.WithNotifier(f.notifier))
	return f
}

func asAdmin() context.Context {
	return studio.WithPrincipal(context.Background(), studio.NewPrincipal(studio.Profile{
		ID: "admin-1", Email: "owner@studio.test", Role: studio.RoleAdmin,
	}))
}

func asTrainer(id string) context.Context {
	return studio.WithPrincipal(context.Background(), studio.NewPrincipal(studio.Profile{
		ID: id, Email: id + "@studio.test", Role: studio.RoleTrainer,
	}))
}

func asClient(profileID string) context.Context {
	return studio.WithPrincipal(context.Background(), studio.NewPrincipal(studio.Profile{
		ID: profileID, Role: studio.RoleClient,
	}))
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) client(t *testing.T, ctx context.Context, name string) studio.Client {
	c, err := f.svc.CreateClient(ctx, studio.ClientInput{FirstName: name, Status: studio.ClientActive})
	require.NoError(t, err)
	return c
}

func (f *fixture) tenPack(t *testing.T) studio.Package {
	p, err := f.svc.CreatePackage(asAdmin(), studio.PackageInput{
		Name: "Ten Pack", Price: money(1000), SessionsIncluded: 10, ValidityDays: 90,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) sell(t *testing.T, ctx context.Context, clientID, packageID string, pay *studio.PaymentInput) studio.AssignmentResult {
	res, err := f.svc.AssignPackage(ctx, studio.AssignPackageInput{
		ClientID: clientID, PackageID: packageID, Payment: pay,
	})
	require.NoError(t, err)
	return res
}

// book schedules a one-hour session starting `in` after the fixture clock.
func (f *fixture) book(t *testing.T, ctx context.Context, clientID, cpID string, in time.Duration) studio.Session {
	start := f.clock.Now().Add(in)
	s, err := f.svc.BookSession(ctx, studio.BookSessionInput{
		ClientID: clientID, ClientPackageID: cpID, StartsAt: start, EndsAt: start.Add(time.Hour),
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) remaining(t *testing.T, cpID string) int {
	cp, err := f.store.GetClientPackage(context.Background(), cpID)
	require.NoError(t, err)
	return cp.SessionsRemaining
}

func (f *fixture) balance(t *testing.T, clientID string) ledger.Summary {
	s, err := f.svc.Balance(asAdmin(), clientID)
	require.NoError(t, err)
	return s
}
