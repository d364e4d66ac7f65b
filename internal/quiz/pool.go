package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const servedSetTTL = 30 * 24 * time.Hour

// ServedCache persists per-user served-question sets so a restart does not
// reset the no-repeat cycle. Implemented by the redis cache.
type ServedCache interface {
	AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

// Pool tracks which questions each user has already been served and draws
// the next one uniformly at random among the rest. When a user exhausts the
// catalog (or zone subset) the served set is cleared and the cycle restarts,
// so repeats become possible again.
type Pool struct {
	bank   *Bank
	cache  ServedCache
	logger *slog.Logger

	mu     sync.Mutex
	served map[string]map[string]struct{}
	loaded map[string]bool
}

// NewPool creates a pool over the given bank. cache may be nil; the pool
// then keeps served sets in memory only.
func NewPool(bank *Bank, cache ServedCache, logger *slog.Logger) *Pool {
	return &Pool{
		bank:   bank,
		cache:  cache,
		logger: logger.With("component", "question_pool"),
		served: map[string]map[string]struct{}{},
		loaded: map[string]bool{},
	}
}

func poolKey(userID int64, zone string) string {
	return fmt.Sprintf("quiz:served:%d:%s", userID, zone)
}

// Next draws the user's next question for the zone (empty zone means the
// whole catalog), marking it as served.
func (p *Pool) Next(ctx context.Context, userID int64, zone string) (Question, error) {
	catalog := p.bank.Questions(zone)
	if len(catalog) == 0 {
		return Question{}, ErrQuestionBankEmpty
	}

	key := poolKey(userID, zone)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.hydrate(ctx, key)
	served := p.served[key]
	if served == nil {
		served = map[string]struct{}{}
		p.served[key] = served
	}

	candidates := make([]Question, 0, len(catalog))
	for _, q := range catalog {
		if _, done := served[q.ID]; !done {
			candidates = append(candidates, q)
		}
	}

	// Cycle restart: the whole subset has been seen.
	if len(candidates) == 0 {
		p.served[key] = map[string]struct{}{}
		served = p.served[key]
		if p.cache != nil {
			if err := p.cache.Delete(ctx, key); err != nil {
				p.logger.Warn("failed clearing served set", "key", key, "error", err)
			}
		}
		candidates = catalog
	}

	chosen := candidates[rand.Intn(len(candidates))]
	served[chosen.ID] = struct{}{}
	if p.cache != nil {
		if err := p.cache.AddToSet(ctx, key, servedSetTTL, chosen.ID); err != nil {
			p.logger.Warn("failed persisting served set", "key", key, "error", err)
		}
	}
	return chosen, nil
}

// Reset forgets everything served to the user in the zone.
func (p *Pool) Reset(ctx context.Context, userID int64, zone string) {
	key := poolKey(userID, zone)

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.served, key)
	p.loaded[key] = true
	if p.cache != nil {
		if err := p.cache.Delete(ctx, key); err != nil {
			p.logger.Warn("failed clearing served set", "key", key, "error", err)
		}
	}
}

// hydrate restores the served set from the cache the first time a key is
// touched. Caller holds the mutex.
func (p *Pool) hydrate(ctx context.Context, key string) {
	if p.loaded[key] || p.cache == nil {
		p.loaded[key] = true
		return
	}
	p.loaded[key] = true

	members, err := p.cache.SetMembers(ctx, key)
	if err != nil {
		p.logger.Warn("failed loading served set", "key", key, "error", err)
		return
	}
	if len(members) == 0 {
		return
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	p.served[key] = set
}
