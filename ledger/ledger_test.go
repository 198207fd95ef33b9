package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/ledger/store"
)

func newTestLedger(t *testing.T) *ledger.DefaultLedger {
	t.Helper()
	return ledger.New(store.NewMemory(), ledger.BalancePolicy{})
}

func TestLedger_AppendFillsDefaults(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	e, err := l.Append(ctx, ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(-50), Kind: ledger.KindCharge})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, ledger.StatusCompleted, e.Status)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestLedger_DuplicateIdempotencyKeyRejected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	charge := ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(-50), Kind: ledger.KindCharge, IdempotencyKey: "k1"}
	_, err := l.Append(ctx, charge)
	require.NoError(t, err)

	_, err = l.Append(ctx, charge)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	sum, err := l.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", sum.Balance.String())
}

func TestLedger_BatchIsAtomic(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(10), IdempotencyKey: "taken"})
	require.NoError(t, err)

	_, err = l.AppendBatch(ctx, []ledger.Entry{
		{ClientID: "c1", Amount: ledger.NewMoney(-100)},
		{ClientID: "c1", Amount: ledger.NewMoney(100), IdempotencyKey: "taken"},
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	entries, err := l.Entries(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "nothing from the failed batch is written")
}

func TestLedger_ZeroAmountRejected(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(context.Background(), ledger.Entry{ClientID: "c1"})
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)
}

func TestLedger_SettlePendingPayment(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(-80), Kind: ledger.KindCharge})
	require.NoError(t, err)
	p, err := l.Append(ctx, ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(80), Kind: ledger.KindPayment, Status: ledger.StatusPending})
	require.NoError(t, err)

	sum, _ := l.Summary(ctx, "c1")
	assert.Equal(t, "80.00", sum.Balance.String())

	_, err = l.Settle(ctx, p.ID, ledger.StatusCompleted)
	require.NoError(t, err)

	sum, _ = l.Summary(ctx, "c1")
	assert.True(t, sum.Balance.IsZero())

	// completed entries cannot be failed afterwards
	_, err = l.Settle(ctx, p.ID, ledger.StatusFailed)
	var settleErr *ledger.SettlementError
	assert.ErrorAs(t, err, &settleErr)
	assert.ErrorIs(t, err, ledger.ErrStatusTransition)
}

func TestLedger_ReverseOnce(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	c, err := l.Append(ctx, ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(-40), Kind: ledger.KindCharge})
	require.NoError(t, err)

	rev, err := l.Reverse(ctx, c.ID, "entered twice", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.KindReversal, rev.Kind)
	assert.Equal(t, c.ID, rev.Reference)

	_, err = l.Reverse(ctx, c.ID, "again", "staff-1")
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	sum, _ := l.Summary(ctx, "c1")
	assert.True(t, sum.Balance.IsZero())
}

func TestLedger_ReverseFollowsBalancePolicy(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		status     ledger.EntryStatus
		symmetric  bool
		reversible bool
	}{
		{"pending payment", 100, ledger.StatusPending, false, false},
		{"pending payment symmetric", 100, ledger.StatusPending, true, false},
		{"pending charge", -50, ledger.StatusPending, false, false},
		{"pending charge symmetric", -50, ledger.StatusPending, true, false},
		{"failed charge still counted", -50, ledger.StatusFailed, false, true},
		{"failed charge symmetric", -50, ledger.StatusFailed, true, false},
		{"failed payment", 100, ledger.StatusFailed, false, false},
		{"completed payment", 100, ledger.StatusCompleted, false, true},
		{"completed payment symmetric", 100, ledger.StatusCompleted, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: One entry in the given status
			l := ledger.New(store.NewMemory(), ledger.BalancePolicy{SymmetricStatus: tt.symmetric})
			ctx := context.Background()
			e, err := l.Append(ctx, ledger.Entry{ClientID: "c1", Amount: ledger.NewMoney(tt.amount), Kind: ledger.KindAdjustment, Status: tt.status})
			require.NoError(t, err)
			before, err := l.Summary(ctx, "c1")
			require.NoError(t, err)

			// WHEN: It is reversed
			rev, err := l.Reverse(ctx, e.ID, "correction", "staff-1")

			// THEN: Counted entries are cancelled out, the rest are refused
			after, serr := l.Summary(ctx, "c1")
			require.NoError(t, serr)
			if !tt.reversible {
				var revErr *ledger.ReversalError
				assert.ErrorAs(t, err, &revErr)
				assert.ErrorIs(t, err, ledger.ErrNotReversible)
				assert.Equal(t, before.Balance.String(), after.Balance.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ledger.StatusCompleted, rev.Status)
			assert.False(t, before.Balance.IsZero())
			assert.True(t, after.Balance.IsZero(), "balance after reversal: %s", after.Balance)
		})
	}
}

type failingStore struct{ *store.Memory }

func (failingStore) ClientEntries(context.Context, string) ([]ledger.Entry, error) {
	return nil, errors.New("connection reset")
}

func TestLedger_SummaryReadFailureIsHardError(t *testing.T) {
	l := ledger.New(failingStore{store.NewMemory()}, ledger.BalancePolicy{})

	_, err := l.Summary(context.Background(), "c1")
	assert.Error(t, err, "read failures must not degrade to a zero balance")
}
