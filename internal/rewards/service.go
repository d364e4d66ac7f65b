package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"triviabot/internal/ledger"
	"triviabot/internal/metrics"
)

// ErrRewardNotFound indicates the requested label is not in the catalog.
var ErrRewardNotFound = errors.New("reward not found")

// Service redeems catalog entries against the ledger.
type Service struct {
	catalog *Catalog
	store   ledger.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Result describes a successful redemption.
type Result struct {
	Entry   Entry
	Account *ledger.UserAccount
}

// NewService creates a redemption service.
func NewService(catalog *Catalog, store ledger.Store, metricRegistry *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		metrics: metricRegistry,
		logger:  logger.With("component", "rewards"),
	}
}

// Catalog exposes the static reward table.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Redeem spends points on the labelled reward. Point deduction and any token
// payout happen in one atomic ledger mutation; a balance short of the cost
// fails with ledger.ErrInsufficientBalance and mutates nothing.
func (s *Service) Redeem(ctx context.Context, userID int64, label string) (*Result, error) {
	entry, ok := s.catalog.Find(label)
	if !ok {
		return nil, ErrRewardNotFound
	}

	account, err := s.store.AdjustBalances(ctx, userID, entry.TokenPayout, -entry.PointCost)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			s.metrics.Redemptions.WithLabelValues("insufficient").Inc()
		}
		return nil, err
	}

	ref := fmt.Sprintf("RDM-%d-%d", userID, time.Now().UnixNano())
	if _, err := s.store.AppendTransaction(ctx, ledger.TransactionRecord{
		UserID:      userID,
		Ref:         ref,
		TokenAmount: entry.TokenPayout,
		Price:       entry.CashValue,
		Method:      ledger.MethodRedeem,
		Status:      ledger.StatusApproved,
	}); err != nil {
		// The balance change already happened; the missing audit row is
		// logged but not surfaced to the user.
		s.logger.Error("failed recording redemption", "user_id", userID, "ref", ref, "error", err)
	}

	s.metrics.Redemptions.WithLabelValues("ok").Inc()
	s.logger.Info("reward redeemed",
		"user_id", userID, "label", entry.Label, "points", entry.PointCost, "tokens", entry.TokenPayout)

	return &Result{Entry: entry, Account: account}, nil
}
