package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const progressTTL = 90 * 24 * time.Hour

// ProgressCache snapshots per-user progress so streaks survive a restart.
// Implemented by the redis cache.
type ProgressCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
}

// Progress is the per-user streak and accuracy state.
type Progress struct {
	Streak         int  `json:"streak"`
	BestStreak     int  `json:"best_streak"`
	TotalCorrect   int  `json:"total_correct"`
	TotalQuestions int  `json:"total_questions"`
	UntilBonus     int  `json:"until_bonus"`
	SkipUsed       bool `json:"skip_used"`
	GamesPaused    int  `json:"games_paused"`
}

// Tracker keeps per-user progress, lazily initialised on first interaction.
type Tracker struct {
	window int
	cache  ProgressCache
	logger *slog.Logger

	mu     sync.Mutex
	states map[int64]*Progress
}

// NewTracker creates a tracker with the given bonus window. cache may be
// nil; progress is then in-memory only and lost on restart.
func NewTracker(window int, cache ProgressCache, logger *slog.Logger) *Tracker {
	if window <= 0 {
		window = 10
	}
	return &Tracker{
		window: window,
		cache:  cache,
		logger: logger.With("component", "progress"),
		states: map[int64]*Progress{},
	}
}

func progressKey(userID int64) string {
	return fmt.Sprintf("quiz:progress:%d", userID)
}

// state returns the user's progress, restoring a cached snapshot or
// initialising fresh state. Caller holds the mutex.
func (t *Tracker) state(ctx context.Context, userID int64) *Progress {
	if p, ok := t.states[userID]; ok {
		return p
	}

	p := &Progress{UntilBonus: t.window}
	if t.cache != nil {
		var snap Progress
		found, err := t.cache.GetJSON(ctx, progressKey(userID), &snap)
		if err != nil {
			t.logger.Warn("failed loading progress snapshot", "user_id", userID, "error", err)
		} else if found {
			if snap.UntilBonus <= 0 || snap.UntilBonus > t.window {
				snap.UntilBonus = t.window
			}
			p = &snap
		}
	}
	t.states[userID] = p
	return p
}

func (t *Tracker) snapshot(ctx context.Context, userID int64, p *Progress) {
	if t.cache == nil {
		return
	}
	if err := t.cache.SetJSON(ctx, progressKey(userID), p, progressTTL); err != nil {
		t.logger.Warn("failed persisting progress snapshot", "user_id", userID, "error", err)
	}
}

// RecordAnswer updates the user's streak state for one graded answer and
// reports whether the streak bonus fired. The best streak is taken from the
// streak value that actually reached the threshold, before the bonus reset
// zeroes it.
func (t *Tracker) RecordAnswer(ctx context.Context, userID int64, correct bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.state(ctx, userID)
	p.TotalQuestions++

	bonus := false
	if correct {
		p.TotalCorrect++
		p.Streak++
		p.UntilBonus--
		bonus = p.UntilBonus <= 0
	}

	if p.Streak > p.BestStreak {
		p.BestStreak = p.Streak
	}

	if !correct || bonus {
		p.Streak = 0
		p.UntilBonus = t.window
	}

	t.snapshot(ctx, userID, p)
	return bonus
}

// Snapshot returns a copy of the user's current progress.
func (t *Tracker) Snapshot(ctx context.Context, userID int64) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.state(ctx, userID)
}

// UseSkip marks the skip for the active question as consumed. It reports
// false when the skip was already used.
func (t *Tracker) UseSkip(ctx context.Context, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.state(ctx, userID)
	if p.SkipUsed {
		return false
	}
	p.SkipUsed = true
	t.snapshot(ctx, userID, p)
	return true
}

// ClearSkip re-arms the skip when a new question is served.
func (t *Tracker) ClearSkip(ctx context.Context, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.state(ctx, userID)
	if !p.SkipUsed {
		return
	}
	p.SkipUsed = false
	t.snapshot(ctx, userID, p)
}

// PauseGame counts an abandoned game.
func (t *Tracker) PauseGame(ctx context.Context, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.state(ctx, userID)
	p.GamesPaused++
	t.snapshot(ctx, userID, p)
}
