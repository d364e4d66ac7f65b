package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triviabot/migrations"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.RunMigrations(ctx, migrations.Files))
	return store
}

func TestUpsertUserIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.UpsertUser(ctx, UserProfile{ID: 42, DisplayName: "Alice", Username: "alice"})
	require.NoError(t, err)
	require.Equal(t, int64(42), u.ID)
	require.Equal(t, ReferralCodeFor(42), u.ReferralCode)
	require.Zero(t, u.Tokens)
	require.Zero(t, u.Points)

	// Second upsert keeps balances and referral code, refreshes names.
	_, err = store.AdjustBalances(ctx, 42, 3, 20)
	require.NoError(t, err)

	again, err := store.UpsertUser(ctx, UserProfile{ID: 42, DisplayName: "Alice B"})
	require.NoError(t, err)
	require.Equal(t, "Alice B", again.DisplayName)
	require.Equal(t, "alice", again.Username)
	require.Equal(t, int64(3), again.Tokens)
	require.Equal(t, int64(20), again.Points)
}

func TestGetUserAbsent(t *testing.T) {
	store := newTestStore(t)

	u, err := store.GetUser(context.Background(), 999)
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestAdjustBalancesGuardsNegative(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 1, DisplayName: "Bob"})
	require.NoError(t, err)

	u, err := store.AdjustBalances(ctx, 1, 5, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), u.Tokens)

	_, err = store.AdjustBalances(ctx, 1, -6, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// The failed mutation must not have touched the row.
	u, err = store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), u.Tokens)

	_, err = store.AdjustBalances(ctx, 777, 1, 0)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestClaimPendingTransactionOnlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 7, DisplayName: "Carol"})
	require.NoError(t, err)

	rec, err := store.AppendTransaction(ctx, TransactionRecord{
		UserID:      7,
		Ref:         "TKN-7-1",
		TokenAmount: 10,
		Price:       1000,
		Method:      MethodPurchase,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.NotEmpty(t, rec.ID)

	claimed, err := store.ClaimPendingTransaction(ctx, "TKN-7-1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, claimed.Status)

	// Second claim against the same ref fails closed.
	_, err = store.ClaimPendingTransaction(ctx, "TKN-7-1")
	require.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = store.ClaimPendingTransaction(ctx, "no-such-ref")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestCancelPendingTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 8})
	require.NoError(t, err)

	_, err = store.AppendTransaction(ctx, TransactionRecord{
		UserID: 8, Ref: "TKN-8-1", TokenAmount: 3, Method: MethodPurchase,
	})
	require.NoError(t, err)

	require.NoError(t, store.CancelPendingTransaction(ctx, "TKN-8-1"))

	_, err = store.ClaimPendingTransaction(ctx, "TKN-8-1")
	require.ErrorIs(t, err, ErrTransactionNotFound)

	require.ErrorIs(t, store.CancelPendingTransaction(ctx, "TKN-8-1"), ErrTransactionNotFound)
}

func TestListPendingTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 9})
	require.NoError(t, err)

	for _, ref := range []string{"TKN-9-1", "TKN-9-2", "TKN-9-3"} {
		_, err = store.AppendTransaction(ctx, TransactionRecord{
			UserID: 9, Ref: ref, TokenAmount: 1, Method: MethodPurchase,
		})
		require.NoError(t, err)
	}
	_, err = store.ClaimPendingTransaction(ctx, "TKN-9-2")
	require.NoError(t, err)

	pending, err := store.ListPendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, rec := range pending {
		require.Equal(t, StatusPending, rec.Status)
	}
}

func TestSetReferrerOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 10})
	require.NoError(t, err)
	_, err = store.UpsertUser(ctx, UserProfile{ID: 11})
	require.NoError(t, err)
	_, err = store.UpsertUser(ctx, UserProfile{ID: 12})
	require.NoError(t, err)

	applied, err := store.SetReferrer(ctx, 10, 11)
	require.NoError(t, err)
	require.True(t, applied)

	// Referrer is immutable once set.
	applied, err = store.SetReferrer(ctx, 10, 12)
	require.NoError(t, err)
	require.False(t, applied)

	u, err := store.GetUser(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, u.ReferrerID)
	require.Equal(t, int64(11), *u.ReferrerID)
}

func TestDailyClaimAndMoMo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 13})
	require.NoError(t, err)

	claimAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastDailyClaim(ctx, 13, claimAt))
	require.NoError(t, store.SetMoMoNumber(ctx, 13, "677000111"))

	u, err := store.GetUser(ctx, 13)
	require.NoError(t, err)
	require.NotNil(t, u.LastDailyClaim)
	require.True(t, u.LastDailyClaim.Equal(claimAt))
	require.NotNil(t, u.MoMoNumber)
	require.Equal(t, "677000111", *u.MoMoNumber)
}

func TestFindByReferralCode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, UserProfile{ID: 99, DisplayName: "Ref"})
	require.NoError(t, err)

	u, err := store.GetUserByReferralCode(ctx, ReferralCodeFor(99))
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, int64(99), u.ID)

	missing, err := store.GetUserByReferralCode(ctx, "QZNOPE")
	require.NoError(t, err)
	require.Nil(t, missing)
}
