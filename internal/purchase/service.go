package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"triviabot/internal/ledger"
	"triviabot/internal/metrics"
)

var (
	// ErrUnauthorized indicates a non-admin invoked an admin operation, or
	// a user touched somebody else's transaction. No side effect.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidAmount indicates a non-positive token amount.
	ErrInvalidAmount = errors.New("invalid token amount")
)

// Notifier delivers fire-and-forget chat messages. Delivery errors are the
// implementation's problem; they are logged, never propagated here.
type Notifier interface {
	SendMessage(userID int64, text string)
}

// Service runs the token purchase reconciliation workflow:
// pending -> approved (terminal) or pending -> cancelled (terminal).
type Service struct {
	store    ledger.Store
	pricing  Pricing
	adminIDs map[int64]bool
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates the purchase workflow service.
func NewService(store ledger.Store, pricing Pricing, adminIDs []int64, notifier Notifier, metricRegistry *metrics.Metrics, logger *slog.Logger) *Service {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Service{
		store:    store,
		pricing:  pricing,
		adminIDs: admins,
		notifier: notifier,
		metrics:  metricRegistry,
		logger:   logger.With("component", "purchase"),
	}
}

// IsAdmin reports whether the identity may run admin operations.
func (s *Service) IsAdmin(id int64) bool {
	return s.adminIDs[id]
}

// Pricing exposes the static pricing table.
func (s *Service) Pricing() Pricing {
	return s.pricing
}

// Request records a pending purchase for the given token amount (package or
// custom) and notifies every configured admin. The ref is unique per
// (user, timestamp).
func (s *Service) Request(ctx context.Context, userID, tokens int64) (*ledger.TransactionRecord, error) {
	if tokens <= 0 {
		return nil, ErrInvalidAmount
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up buyer: %w", err)
	}
	if user == nil {
		return nil, ledger.ErrUserNotFound
	}

	ref := fmt.Sprintf("TKN-%d-%d", userID, time.Now().UnixNano())
	rec, err := s.store.AppendTransaction(ctx, ledger.TransactionRecord{
		UserID:      userID,
		Ref:         ref,
		TokenAmount: tokens,
		Price:       s.pricing.Price(tokens),
		Method:      ledger.MethodPurchase,
		Status:      ledger.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("record purchase request: %w", err)
	}

	kind := "custom"
	for _, p := range DefaultPackages {
		if p == tokens {
			kind = "package"
			break
		}
	}
	s.metrics.PurchaseRequests.WithLabelValues(kind).Inc()
	s.logger.Info("purchase requested",
		"user_id", userID, "ref", rec.Ref, "tokens", tokens, "price", rec.Price)

	notice := fmt.Sprintf(
		"Purchase request %s\n%s (@%s) wants %d tokens for %d.\nApprove with /approve %s",
		rec.Ref, user.DisplayName, user.Username, tokens, rec.Price, rec.Ref,
	)
	for adminID := range s.adminIDs {
		s.notifier.SendMessage(adminID, notice)
	}

	return rec, nil
}

// Approve credits the purchased tokens. The status compare-and-swap is the
// double-spend guard: of two concurrent approvals of the same ref, exactly
// one claims the pending row; the other sees ErrTransactionNotFound.
func (s *Service) Approve(ctx context.Context, adminID int64, ref string) (*ledger.TransactionRecord, error) {
	if !s.IsAdmin(adminID) {
		s.metrics.PurchaseApprovals.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorized
	}

	rec, err := s.store.ClaimPendingTransaction(ctx, ref)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			s.metrics.PurchaseApprovals.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	if _, err := s.store.AdjustBalances(ctx, rec.UserID, rec.TokenAmount, 0); err != nil {
		s.metrics.PurchaseApprovals.WithLabelValues("credit_failed").Inc()
		return nil, fmt.Errorf("credit purchased tokens: %w", err)
	}

	s.metrics.PurchaseApprovals.WithLabelValues("ok").Inc()
	s.logger.Info("purchase approved",
		"admin_id", adminID, "user_id", rec.UserID, "ref", rec.Ref, "tokens", rec.TokenAmount)

	s.notifier.SendMessage(rec.UserID, fmt.Sprintf(
		"Your purchase of %d tokens has been approved. Happy playing!", rec.TokenAmount))

	return rec, nil
}

// Cancel abandons the user's own pending request (custom-amount entry
// abandonment). Cancelled is terminal; the ref can never be approved after.
func (s *Service) Cancel(ctx context.Context, userID int64, ref string) error {
	rec, err := s.store.GetTransactionByRef(ctx, ref)
	if err != nil {
		return err
	}
	if rec.UserID != userID && !s.IsAdmin(userID) {
		return ErrUnauthorized
	}
	return s.store.CancelPendingTransaction(ctx, ref)
}

// ListPending returns the open requests, admin only.
func (s *Service) ListPending(ctx context.Context, adminID int64) ([]ledger.TransactionRecord, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	return s.store.ListPendingTransactions(ctx)
}
