package game

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triviabot/internal/ledger"
	"triviabot/internal/metrics"
	"triviabot/internal/quiz"
	"triviabot/migrations"
)

// testBankJSON holds twelve questions whose correct choice is always index 0,
// so tests can answer right or wrong deliberately.
func testBankJSON() []byte {
	out := "["
	for i := 1; i <= 12; i++ {
		if i > 1 {
			out += ","
		}
		out += fmt.Sprintf(
			`{"id":"q%d","text":"Question %d?","choices":["right","wrong","also wrong"],"answer":0}`, i, i)
	}
	return []byte(out + "]")
}

func newTestService(t *testing.T) (*Service, ledger.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.NewSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx, migrations.Files))

	bank, err := quiz.NewBankFromJSON(testBankJSON())
	require.NoError(t, err)

	logger := slog.Default()
	pool := quiz.NewPool(bank, nil, logger)
	tracker := quiz.NewTracker(10, nil, logger)

	svc := NewService(Config{
		QuestionCost:     1,
		PointsPerCorrect: 10,
		BonusTokens:      5,
		DailyTokens:      2,
		DailyCooldown:    24 * time.Hour,
		ReferralTokens:   2,
	}, store, bank, pool, tracker, nil, metrics.Registry("test"), logger)
	return svc, store
}

func register(t *testing.T, svc *Service, id int64) *ledger.UserAccount {
	t.Helper()
	res, err := svc.Register(context.Background(), ledger.UserProfile{ID: id, DisplayName: fmt.Sprintf("user%d", id)}, "")
	require.NoError(t, err)
	return res.Account
}

func fund(t *testing.T, store ledger.Store, id, tokens int64) {
	t.Helper()
	_, err := store.AdjustBalances(context.Background(), id, tokens, 0)
	require.NoError(t, err)
}

func TestRegisterLinksReferralOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	referrer := register(t, svc, 1)

	res, err := svc.Register(ctx, ledger.UserProfile{ID: 2, DisplayName: "newbie"}, referrer.ReferralCode)
	require.NoError(t, err)
	require.True(t, res.New)
	require.NotNil(t, res.Referrer)
	require.Equal(t, int64(2), res.Referrer.Tokens)

	updated, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated.ReferralCount)

	// Re-registering with a code changes nothing; the user already exists.
	res, err = svc.Register(ctx, ledger.UserProfile{ID: 2}, referrer.ReferralCode)
	require.NoError(t, err)
	require.False(t, res.New)
	require.Nil(t, res.Referrer)

	updated, err = store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Tokens)
}

func TestRegisterIgnoresSelfReferral(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// A user presenting their own deterministic code on first contact.
	res, err := svc.Register(ctx, ledger.UserProfile{ID: 3}, ledger.ReferralCodeFor(3))
	require.NoError(t, err)
	require.True(t, res.New)
	require.Nil(t, res.Referrer)

	u, err := store.GetUser(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, u.Tokens)
}

func TestStartQuestionChargesTokens(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 3)

	q, err := svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)
	require.NotEmpty(t, q.ID)

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), u.Tokens)
}

func TestStartQuestionRequiresRegistrationAndTokens(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartQuestion(ctx, 99, "")
	require.ErrorIs(t, err, ErrNotRegistered)

	register(t, svc, 1)
	_, err = svc.StartQuestion(ctx, 1, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, u.Tokens)
}

func TestAnswerGradesOnlyOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 5)

	_, err := svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)

	res, err := svc.Answer(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, res.Correct)
	require.Equal(t, int64(10), res.Points)
	require.Equal(t, int64(10), res.Account.Points)

	// The session was consumed; a duplicate answer grades nothing.
	_, err = svc.Answer(ctx, 1, 0)
	require.ErrorIs(t, err, ErrNoActiveQuestion)

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), u.Points)
}

func TestWrongAnswerAwardsNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 5)

	_, err := svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)

	res, err := svc.Answer(ctx, 1, 1)
	require.NoError(t, err)
	require.False(t, res.Correct)
	require.Zero(t, res.Points)

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, u.Points)
}

func TestStreakBonusPaysTokens(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 20)

	var last *AnswerResult
	for i := 0; i < 10; i++ {
		_, err := svc.StartQuestion(ctx, 1, "")
		require.NoError(t, err)
		res, err := svc.Answer(ctx, 1, 0)
		require.NoError(t, err)
		if i < 9 {
			require.False(t, res.Bonus)
		}
		last = res
	}

	require.True(t, last.Bonus)
	require.Equal(t, int64(5), last.BonusTokens)
	require.Equal(t, 10, last.Progress.BestStreak)
	require.Zero(t, last.Progress.Streak)

	// 20 funded, 10 spent on questions, 5 back from the bonus.
	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(15), u.Tokens)
	require.Equal(t, int64(100), u.Points)
}

func TestSkipIsFreeAndSingleUse(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 5)

	first, err := svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)

	replacement, err := svc.Skip(ctx, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, replacement.ID)

	_, err = svc.Skip(ctx, 1)
	require.ErrorIs(t, err, ErrSkipUsed)

	// Only the original question was charged.
	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), u.Tokens)

	// The replacement still grades.
	res, err := svc.Answer(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, replacement.ID, res.Question.ID)
}

func TestSkipRearmsOnNextQuestion(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 5)

	_, err := svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)
	_, err = svc.Skip(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Answer(ctx, 1, 0)
	require.NoError(t, err)

	_, err = svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)
	_, err = svc.Skip(ctx, 1)
	require.NoError(t, err)
}

func TestClaimDailyHonoursCooldown(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)

	account, remaining, err := svc.ClaimDaily(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, remaining)
	require.Equal(t, int64(2), account.Tokens)

	_, remaining, err = svc.ClaimDaily(ctx, 1)
	require.ErrorIs(t, err, ErrDailyNotReady)
	require.Greater(t, remaining, 23*time.Hour)

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), u.Tokens)
}

func TestSetMoMoNumberValidates(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)

	require.ErrorIs(t, svc.SetMoMoNumber(ctx, 1, "not-a-number"), ErrInvalidMoMoNumber)
	require.NoError(t, svc.SetMoMoNumber(ctx, 1, "+237670000001"))

	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u.MoMoNumber)
	require.Equal(t, "+237670000001", *u.MoMoNumber)
}

func TestPauseConsumesSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	register(t, svc, 1)
	fund(t, store, 1, 2)

	_, err := svc.StartQuestion(ctx, 1, "")
	require.NoError(t, err)
	require.NoError(t, svc.Pause(ctx, 1))
	require.ErrorIs(t, svc.Pause(ctx, 1), ErrNoActiveQuestion)

	_, err = svc.Answer(ctx, 1, 0)
	require.ErrorIs(t, err, ErrNoActiveQuestion)
}
