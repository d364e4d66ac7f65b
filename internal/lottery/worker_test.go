package lottery

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"triviabot/internal/ledger"
	"triviabot/internal/metrics"
	"triviabot/migrations"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[int64][]string
}

func (n *recordingNotifier) SendMessage(userID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = map[int64][]string{}
	}
	n.messages[userID] = append(n.messages[userID], text)
}

func (n *recordingNotifier) count(userID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages[userID])
}

func newTestWorker(t *testing.T) (*Worker, ledger.Store, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.NewSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx, migrations.Files))

	notifier := &recordingNotifier{}
	w := NewWorker(store, Config{
		DailyPrize:        5,
		WeeklyPrize:       10,
		RafflePointsFloor: 100,
	}, notifier, metrics.Registry("test"), slog.Default())
	return w, store, notifier
}

func seedUser(t *testing.T, store ledger.Store, id, tokens, points int64) {
	t.Helper()
	ctx := context.Background()
	_, err := store.UpsertUser(ctx, ledger.UserProfile{ID: id})
	require.NoError(t, err)
	if tokens != 0 || points != 0 {
		_, err = store.AdjustBalances(ctx, id, tokens, points)
		require.NoError(t, err)
	}
}

func TestDailyDrawCreditsWinner(t *testing.T) {
	w, store, notifier := newTestWorker(t)
	ctx := context.Background()

	seedUser(t, store, 1, 3, 0)

	res, err := w.RunDaily(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	require.Equal(t, int64(1), res.Winner.ID)
	require.Equal(t, int64(8), res.Winner.Tokens)
	require.Contains(t, res.Ref, "LTY-1-")
	require.Equal(t, 1, notifier.count(1))
}

func TestDailyDrawSkipsTokenlessUsers(t *testing.T) {
	w, store, _ := newTestWorker(t)
	ctx := context.Background()

	seedUser(t, store, 1, 0, 500)
	seedUser(t, store, 2, 1, 0)

	for i := 0; i < 10; i++ {
		res, err := w.RunDaily(ctx)
		require.NoError(t, err)
		require.NotNil(t, res.Winner)
		require.Equal(t, int64(2), res.Winner.ID)
	}
}

func TestWeeklyDrawRequiresPointsFloor(t *testing.T) {
	w, store, _ := newTestWorker(t)
	ctx := context.Background()

	seedUser(t, store, 1, 5, 99)
	seedUser(t, store, 2, 0, 100)

	res, err := w.RunWeekly(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	require.Equal(t, int64(2), res.Winner.ID)
	require.Equal(t, int64(10), res.Winner.Tokens)
	// Prize is paid in tokens; points are untouched.
	require.Equal(t, int64(100), res.Winner.Points)
}

func TestDrawWithNoEligibleUsersIsNoOp(t *testing.T) {
	w, store, notifier := newTestWorker(t)
	ctx := context.Background()

	seedUser(t, store, 1, 0, 0)

	res, err := w.RunDaily(ctx)
	require.NoError(t, err)
	require.Nil(t, res.Winner)
	require.Zero(t, notifier.count(1))

	res, err = w.RunWeekly(ctx)
	require.NoError(t, err)
	require.Nil(t, res.Winner)
}

func TestDrawLeavesAuditTransaction(t *testing.T) {
	w, store, _ := newTestWorker(t)
	ctx := context.Background()

	seedUser(t, store, 7, 1, 0)

	res, err := w.RunDaily(ctx)
	require.NoError(t, err)

	rec, err := store.GetTransactionByRef(ctx, res.Ref)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApproved, rec.Status)
	require.Equal(t, ledger.MethodDailyLottery, rec.Method)
	require.Equal(t, int64(5), rec.TokenAmount)
}
