package quiz

import (
	"context"
	"log/slog"
	"testing"
)

const testBankJSON = `[
  {"id": "a", "text": "A?", "choices": ["1", "2"], "answer": 0},
  {"id": "b", "text": "B?", "choices": ["1", "2"], "answer": 1},
  {"id": "c", "text": "C?", "choices": ["1", "2"], "answer": 0},
  {"id": "z1", "text": "Z?", "choices": ["1", "2"], "answer": 1, "zone": "littoral"}
]`

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	bank, err := NewBankFromJSON([]byte(testBankJSON))
	if err != nil {
		t.Fatalf("failed to build bank: %v", err)
	}
	return NewPool(bank, nil, slog.Default())
}

func TestNextNeverRepeatsUntilExhaustion(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		q, err := pool.Next(ctx, 1, "")
		if err != nil {
			t.Fatalf("draw %d failed: %v", i, err)
		}
		if seen[q.ID] {
			t.Fatalf("question %s repeated before exhaustion", q.ID)
		}
		seen[q.ID] = true
	}

	// Fifth draw restarts the cycle, so any of the four may come back.
	q, err := pool.Next(ctx, 1, "")
	if err != nil {
		t.Fatalf("post-exhaustion draw failed: %v", err)
	}
	if !seen[q.ID] {
		t.Fatalf("post-exhaustion draw returned unknown question %s", q.ID)
	}
}

func TestNextFiltersByZone(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := pool.Next(ctx, 2, "littoral")
		if err != nil {
			t.Fatalf("zone draw failed: %v", err)
		}
		if q.ID != "z1" {
			t.Fatalf("zone draw returned %s, want z1", q.ID)
		}
	}
}

func TestNextEmptyZoneSubset(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.Next(context.Background(), 3, "sahara")
	if err != ErrQuestionBankEmpty {
		t.Fatalf("expected ErrQuestionBankEmpty, got %v", err)
	}
}

func TestPoolsAreIndependentPerUser(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := pool.Next(ctx, 10, ""); err != nil {
			t.Fatalf("user 10 draw failed: %v", err)
		}
	}
	// User 10 exhausting the bank must not affect user 11.
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		q, err := pool.Next(ctx, 11, "")
		if err != nil {
			t.Fatalf("user 11 draw failed: %v", err)
		}
		if seen[q.ID] {
			t.Fatalf("user 11 saw %s twice before exhaustion", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestDefaultBankLoads(t *testing.T) {
	bank, err := NewBank()
	if err != nil {
		t.Fatalf("embedded bank failed to load: %v", err)
	}
	if bank.Size() == 0 {
		t.Fatal("embedded bank is empty")
	}
	if len(bank.Zones()) == 0 {
		t.Fatal("embedded bank has no zones")
	}
}
