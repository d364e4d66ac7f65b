package quiz

import (
	"context"
	"log/slog"
	"math/rand"
	"testing"
)

func newTestTracker(window int) *Tracker {
	return NewTracker(window, nil, slog.Default())
}

func TestBonusFiresEveryWindow(t *testing.T) {
	tracker := newTestTracker(10)
	ctx := context.Background()

	bonuses := 0
	for i := 1; i <= 30; i++ {
		if tracker.RecordAnswer(ctx, 1, true) {
			bonuses++
			if i%10 != 0 {
				t.Fatalf("bonus fired at answer %d, want multiples of 10", i)
			}
		}
	}
	if bonuses != 3 {
		t.Fatalf("expected 3 bonuses over 30 correct answers, got %d", bonuses)
	}
}

func TestWrongAnswerResetsCountdown(t *testing.T) {
	tracker := newTestTracker(10)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		if tracker.RecordAnswer(ctx, 1, true) {
			t.Fatal("bonus fired before the window was complete")
		}
	}
	if tracker.RecordAnswer(ctx, 1, false) {
		t.Fatal("bonus fired on a wrong answer")
	}

	// The countdown restarted: nine more correct answers are not enough.
	for i := 0; i < 9; i++ {
		if tracker.RecordAnswer(ctx, 1, true) {
			t.Fatalf("bonus fired %d answers after reset", i+1)
		}
	}
	if !tracker.RecordAnswer(ctx, 1, true) {
		t.Fatal("bonus did not fire after a full fresh window")
	}
}

func TestBestStreakUsesPreResetValue(t *testing.T) {
	tracker := newTestTracker(10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		tracker.RecordAnswer(ctx, 1, true)
	}

	p := tracker.Snapshot(ctx, 1)
	if p.BestStreak != 10 {
		t.Fatalf("best streak should be the streak that reached the threshold, got %d", p.BestStreak)
	}
	if p.Streak != 0 {
		t.Fatalf("streak should be reset after the bonus, got %d", p.Streak)
	}
	if p.UntilBonus != 10 {
		t.Fatalf("countdown should be re-armed to the window, got %d", p.UntilBonus)
	}
}

func TestBestStreakInvariantOverRandomSequences(t *testing.T) {
	tracker := newTestTracker(10)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	prevBest := 0
	for i := 0; i < 500; i++ {
		tracker.RecordAnswer(ctx, 2, rng.Intn(3) != 0)
		p := tracker.Snapshot(ctx, 2)
		if p.BestStreak < p.Streak {
			t.Fatalf("best streak %d fell below current streak %d", p.BestStreak, p.Streak)
		}
		if p.BestStreak < prevBest {
			t.Fatalf("best streak decreased from %d to %d", prevBest, p.BestStreak)
		}
		prevBest = p.BestStreak
	}
}

func TestCountersAccumulate(t *testing.T) {
	tracker := newTestTracker(10)
	ctx := context.Background()

	tracker.RecordAnswer(ctx, 3, true)
	tracker.RecordAnswer(ctx, 3, false)
	tracker.RecordAnswer(ctx, 3, true)

	p := tracker.Snapshot(ctx, 3)
	if p.TotalQuestions != 3 || p.TotalCorrect != 2 {
		t.Fatalf("unexpected counters: %+v", p)
	}
}

func TestSkipIsOncePerQuestion(t *testing.T) {
	tracker := newTestTracker(10)
	ctx := context.Background()

	if !tracker.UseSkip(ctx, 4) {
		t.Fatal("first skip should be allowed")
	}
	if tracker.UseSkip(ctx, 4) {
		t.Fatal("second skip on the same question should be refused")
	}
	tracker.ClearSkip(ctx, 4)
	if !tracker.UseSkip(ctx, 4) {
		t.Fatal("skip should be re-armed for the next question")
	}
}
