package rates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"triviabot/internal/metrics"
)

const snapshotTTL = 14 * 24 * time.Hour

// Cache mirrors the last good quote so a restart does not reset to the
// static fallback.
type Cache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
}

// Config holds exchange-rate service settings.
type Config struct {
	BaseCurrency    string
	TargetCurrency  string
	RefreshInterval time.Duration
	FallbackRate    float64
	SourceURLs      []string
}

// Quote is one base/target exchange rate observation.
type Quote struct {
	Rate      float64   `json:"rate"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service serves the base/target exchange rate, refreshed lazily from the
// configured sources. When every source fails the previous quote stays in
// effect; the static fallback is only used before any fetch ever succeeded.
type Service struct {
	client  *Client
	cfg     Config
	cache   Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	quote Quote
}

// NewService creates the exchange-rate service, seeding the quote from the
// redis snapshot when one exists, else from the static fallback.
func NewService(client *Client, cfg Config, rateCache Cache, metricRegistry *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}
	cfg.BaseCurrency = strings.ToUpper(cfg.BaseCurrency)
	cfg.TargetCurrency = strings.ToUpper(cfg.TargetCurrency)

	s := &Service{
		client:  client,
		cfg:     cfg,
		cache:   rateCache,
		metrics: metricRegistry,
		logger:  logger.With("component", "rates"),
		quote:   Quote{Rate: cfg.FallbackRate, Source: "fallback"},
	}

	if rateCache != nil {
		var snap Quote
		ok, err := rateCache.GetJSON(context.Background(), s.snapshotKey(), &snap)
		if err != nil {
			s.logger.Warn("read rate snapshot failed", "error", err)
		} else if ok && snap.Rate > 0 {
			s.quote = snap
		}
	}
	return s
}

func (s *Service) snapshotKey() string {
	return fmt.Sprintf("rates:%s:%s", s.cfg.BaseCurrency, s.cfg.TargetCurrency)
}

// Quote returns the current exchange rate, refreshing first when the held
// quote is older than the refresh interval. It never fails: a refresh that
// exhausts every source leaves the previous quote in place.
func (s *Service) Quote(ctx context.Context) Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.quote.UpdatedAt) > s.cfg.RefreshInterval {
		s.refreshLocked(ctx)
	}
	return s.quote
}

// Convert converts an amount in the base currency to the target currency
// using the current quote.
func (s *Service) Convert(ctx context.Context, amount float64) (float64, Quote) {
	q := s.Quote(ctx)
	return amount * q.Rate, q
}

// Refresh forces a fetch regardless of quote age.
func (s *Service) Refresh(ctx context.Context) Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(ctx)
	return s.quote
}

func (s *Service) refreshLocked(ctx context.Context) {
	start := time.Now()
	for _, src := range s.cfg.SourceURLs {
		rate, err := s.client.Fetch(ctx, src, s.cfg.BaseCurrency, s.cfg.TargetCurrency)
		if err != nil {
			s.metrics.RateRefreshes.WithLabelValues(src, "error").Inc()
			s.logger.Warn("rate source failed", "source", src, "error", err)
			continue
		}

		s.metrics.RateRefreshes.WithLabelValues(src, "ok").Inc()
		s.metrics.RateRefreshLag.Observe(time.Since(start).Seconds())

		s.quote = Quote{Rate: rate, Source: src, UpdatedAt: time.Now()}
		s.logger.Info("exchange rate refreshed",
			"pair", s.cfg.BaseCurrency+"/"+s.cfg.TargetCurrency, "rate", rate, "source", src)

		if s.cache != nil {
			if err := s.cache.SetJSON(ctx, s.snapshotKey(), s.quote, snapshotTTL); err != nil {
				s.logger.Warn("write rate snapshot failed", "error", err)
			}
		}
		return
	}

	s.metrics.RateRefreshLag.Observe(time.Since(start).Seconds())
	s.logger.Warn("all rate sources failed, keeping previous quote",
		"rate", s.quote.Rate, "age", time.Since(s.quote.UpdatedAt))
}
