package lottery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"triviabot/internal/ledger"
	"triviabot/internal/metrics"
)

// Notifier delivers fire-and-forget chat messages to winners.
type Notifier interface {
	SendMessage(userID int64, text string)
}

// Config tunes draw cadence, prizes and eligibility.
type Config struct {
	DailyInterval     time.Duration
	WeeklyInterval    time.Duration
	DailyPrize        int64
	WeeklyPrize       int64
	RafflePointsFloor int64
}

// Result describes one draw. Winner is nil when nobody was eligible; that
// is a normal outcome, not an error.
type Result struct {
	Kind   string
	Winner *ledger.UserAccount
	Prize  int64
	Ref    string
}

// Worker runs the periodic lottery and raffle draws.
type Worker struct {
	store    ledger.Store
	cfg      Config
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker creates a lottery worker. Defaults: daily every 24h paying 5
// tokens, weekly every 7 days paying 10 tokens to holders of 100+ points.
func NewWorker(store ledger.Store, cfg Config, notifier Notifier, metricRegistry *metrics.Metrics, logger *slog.Logger) *Worker {
	if cfg.DailyInterval <= 0 {
		cfg.DailyInterval = 24 * time.Hour
	}
	if cfg.WeeklyInterval <= 0 {
		cfg.WeeklyInterval = 7 * 24 * time.Hour
	}
	if cfg.DailyPrize <= 0 {
		cfg.DailyPrize = 5
	}
	if cfg.WeeklyPrize <= 0 {
		cfg.WeeklyPrize = 10
	}
	if cfg.RafflePointsFloor <= 0 {
		cfg.RafflePointsFloor = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		metrics:  metricRegistry,
		logger:   logger.With("component", "lottery"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the background draw loops. Draws happen on ticks only, never
// at startup, so a restart cannot replay a payout.
func (w *Worker) Start() {
	w.logger.Info("lottery worker started",
		"daily_interval", w.cfg.DailyInterval, "weekly_interval", w.cfg.WeeklyInterval)

	go func() {
		daily := time.NewTicker(w.cfg.DailyInterval)
		weekly := time.NewTicker(w.cfg.WeeklyInterval)
		defer daily.Stop()
		defer weekly.Stop()

		for {
			select {
			case <-daily.C:
				if _, err := w.RunDaily(w.ctx); err != nil {
					w.logger.Error("daily lottery failed", "error", err)
				}
			case <-weekly.C:
				if _, err := w.RunWeekly(w.ctx); err != nil {
					w.logger.Error("weekly raffle failed", "error", err)
				}
			case <-w.ctx.Done():
				w.logger.Info("lottery worker stopped")
				return
			}
		}
	}()
}

// Stop halts the background loops.
func (w *Worker) Stop() {
	w.cancel()
}

// RunDaily draws the daily lottery among users holding at least one token.
func (w *Worker) RunDaily(ctx context.Context) (*Result, error) {
	return w.draw(ctx, "daily", ledger.MethodDailyLottery, w.cfg.DailyPrize, func(u ledger.UserAccount) bool {
		return u.Tokens > 0
	})
}

// RunWeekly draws the weekly raffle among users holding enough points.
func (w *Worker) RunWeekly(ctx context.Context) (*Result, error) {
	return w.draw(ctx, "weekly", ledger.MethodWeeklyRaffle, w.cfg.WeeklyPrize, func(u ledger.UserAccount) bool {
		return u.Points >= w.cfg.RafflePointsFloor
	})
}

func (w *Worker) draw(ctx context.Context, kind, method string, prize int64, eligible func(ledger.UserAccount) bool) (*Result, error) {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		w.metrics.LotteryDraws.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("list users: %w", err)
	}

	var pool []ledger.UserAccount
	for _, u := range users {
		if eligible(u) {
			pool = append(pool, u)
		}
	}
	if len(pool) == 0 {
		w.metrics.LotteryDraws.WithLabelValues(kind, "no_winner").Inc()
		w.logger.Info("no eligible users for draw", "kind", kind)
		return &Result{Kind: kind, Prize: prize}, nil
	}

	winner := pool[rand.Intn(len(pool))]

	updated, err := w.store.AdjustBalances(ctx, winner.ID, prize, 0)
	if err != nil {
		w.metrics.LotteryDraws.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("credit %s prize: %w", kind, err)
	}

	ref := fmt.Sprintf("LTY-%d-%d", winner.ID, time.Now().UnixNano())
	if _, err := w.store.AppendTransaction(ctx, ledger.TransactionRecord{
		UserID:      winner.ID,
		Ref:         ref,
		TokenAmount: prize,
		Method:      method,
		Status:      ledger.StatusApproved,
	}); err != nil {
		w.logger.Error("failed recording draw payout", "kind", kind, "ref", ref, "error", err)
	}

	w.metrics.LotteryDraws.WithLabelValues(kind, "ok").Inc()
	w.logger.Info("draw winner credited",
		"kind", kind, "user_id", winner.ID, "prize", prize, "ref", ref)

	if w.notifier != nil {
		w.notifier.SendMessage(winner.ID, fmt.Sprintf(
			"Congratulations! You won the %s draw and received %d tokens.", kind, prize))
	}

	return &Result{Kind: kind, Winner: updated, Prize: prize, Ref: ref}, nil
}
