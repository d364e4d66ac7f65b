package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"triviabot/internal/ledger"
	"triviabot/internal/metrics"
	"triviabot/internal/quiz"
)

const sessionTTL = 24 * time.Hour

var (
	// ErrNotRegistered indicates the user has no account yet; every play
	// operation requires /start first.
	ErrNotRegistered = errors.New("user not registered")

	// ErrNoActiveQuestion indicates an answer or skip arrived with no
	// question outstanding.
	ErrNoActiveQuestion = errors.New("no active question")

	// ErrSkipUsed indicates the single skip for the active question is
	// already consumed.
	ErrSkipUsed = errors.New("skip already used")

	// ErrDailyNotReady indicates the daily reward cooldown has not elapsed.
	ErrDailyNotReady = errors.New("daily reward not ready")

	// ErrInvalidMoMoNumber indicates a malformed mobile money number.
	ErrInvalidMoMoNumber = errors.New("invalid mobile money number")
)

var momoNumberRe = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// SessionCache persists the active question per user so an answer sent
// after a restart still grades. Implemented by the redis cache.
type SessionCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Config holds the gameplay economy settings.
type Config struct {
	QuestionCost     int64
	PointsPerCorrect int64
	BonusTokens      int64
	DailyTokens      int64
	DailyCooldown    time.Duration
	ReferralTokens   int64
}

// Session is the user's outstanding question.
type Session struct {
	QuestionID string    `json:"question_id"`
	Zone       string    `json:"zone"`
	AskedAt    time.Time `json:"asked_at"`
}

// AnswerResult describes one graded answer.
type AnswerResult struct {
	Question    quiz.Question
	Correct     bool
	Points      int64
	Bonus       bool
	BonusTokens int64
	Account     *ledger.UserAccount
	Progress    quiz.Progress
}

// RegisterResult describes one /start.
type RegisterResult struct {
	Account  *ledger.UserAccount
	New      bool
	Referrer *ledger.UserAccount
}

// Service orchestrates the quiz gameplay loop on top of the ledger, the
// question pool and the progress tracker.
type Service struct {
	cfg     Config
	store   ledger.Store
	bank    *quiz.Bank
	pool    *quiz.Pool
	tracker *quiz.Tracker
	cache   SessionCache
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
	loaded   map[int64]bool
}

// NewService creates the gameplay service. cache may be nil; sessions are
// then in-memory only.
func NewService(cfg Config, store ledger.Store, bank *quiz.Bank, pool *quiz.Pool, tracker *quiz.Tracker, cache SessionCache, metricRegistry *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.QuestionCost <= 0 {
		cfg.QuestionCost = 1
	}
	if cfg.PointsPerCorrect <= 0 {
		cfg.PointsPerCorrect = 10
	}
	if cfg.BonusTokens <= 0 {
		cfg.BonusTokens = 5
	}
	if cfg.DailyTokens <= 0 {
		cfg.DailyTokens = 2
	}
	if cfg.DailyCooldown <= 0 {
		cfg.DailyCooldown = 24 * time.Hour
	}
	if cfg.ReferralTokens <= 0 {
		cfg.ReferralTokens = 2
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		bank:     bank,
		pool:     pool,
		tracker:  tracker,
		cache:    cache,
		metrics:  metricRegistry,
		logger:   logger.With("component", "game"),
		sessions: map[int64]*Session{},
		loaded:   map[int64]bool{},
	}
}

// Config returns the economy settings in effect.
func (s *Service) Config() Config {
	return s.cfg
}

// Register creates or refreshes the user's account. A referral code on
// first contact links the new user to the referrer exactly once and pays
// the referrer the referral bonus.
func (s *Service) Register(ctx context.Context, profile ledger.UserProfile, referralCode string) (*RegisterResult, error) {
	existing, err := s.store.GetUser(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	account, err := s.store.UpsertUser(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	res := &RegisterResult{Account: account, New: existing == nil}
	if !res.New || referralCode == "" {
		return res, nil
	}

	referrer, err := s.applyReferral(ctx, account, referralCode)
	if err != nil {
		// A broken referral code never blocks registration.
		s.logger.Warn("referral link failed", "user_id", account.ID, "code", referralCode, "error", err)
		return res, nil
	}
	res.Referrer = referrer
	return res, nil
}

func (s *Service) applyReferral(ctx context.Context, account *ledger.UserAccount, code string) (*ledger.UserAccount, error) {
	if code == account.ReferralCode {
		return nil, errors.New("self referral")
	}
	referrer, err := s.store.GetUserByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer == nil || referrer.ID == account.ID {
		return nil, errors.New("unknown referral code")
	}

	applied, err := s.store.SetReferrer(ctx, account.ID, referrer.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, errors.New("referrer already set")
	}
	if err := s.store.IncrementReferralCount(ctx, referrer.ID); err != nil {
		return nil, err
	}

	updated, err := s.store.AdjustBalances(ctx, referrer.ID, s.cfg.ReferralTokens, 0)
	if err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("REF-%d-%d", referrer.ID, time.Now().UnixNano())
	if _, err := s.store.AppendTransaction(ctx, ledger.TransactionRecord{
		UserID:      referrer.ID,
		Ref:         ref,
		TokenAmount: s.cfg.ReferralTokens,
		Method:      ledger.MethodReferral,
		Status:      ledger.StatusApproved,
	}); err != nil {
		s.logger.Error("failed recording referral bonus", "ref", ref, "error", err)
	}

	s.logger.Info("referral linked",
		"user_id", account.ID, "referrer_id", referrer.ID, "bonus", s.cfg.ReferralTokens)
	return updated, nil
}

// StartQuestion charges the question cost and serves the user's next
// question in the zone (empty zone means the whole catalog). The charge and
// the draw are ordered so a user who cannot pay never consumes a question.
func (s *Service) StartQuestion(ctx context.Context, userID int64, zone string) (quiz.Question, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return quiz.Question{}, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return quiz.Question{}, ErrNotRegistered
	}

	if _, err := s.store.AdjustBalances(ctx, userID, -s.cfg.QuestionCost, 0); err != nil {
		return quiz.Question{}, err
	}

	question, err := s.pool.Next(ctx, userID, zone)
	if err != nil {
		// Refund the charge; the draw failed before anything was served.
		if _, refundErr := s.store.AdjustBalances(ctx, userID, s.cfg.QuestionCost, 0); refundErr != nil {
			s.logger.Error("failed refunding question cost", "user_id", userID, "error", refundErr)
		}
		return quiz.Question{}, err
	}

	s.putSession(ctx, userID, &Session{QuestionID: question.ID, Zone: zone, AskedAt: time.Now()})
	s.tracker.ClearSkip(ctx, userID)

	zoneLabel := zone
	if zoneLabel == "" {
		zoneLabel = "all"
	}
	s.metrics.QuestionsServed.WithLabelValues(zoneLabel).Inc()
	return question, nil
}

// Answer grades the user's choice against the active question. The session
// is consumed before grading, so a question can never be answered twice.
func (s *Service) Answer(ctx context.Context, userID int64, choice int) (*AnswerResult, error) {
	sess := s.takeSession(ctx, userID)
	if sess == nil {
		return nil, ErrNoActiveQuestion
	}

	question, ok := s.bank.ByID(sess.QuestionID)
	if !ok {
		return nil, fmt.Errorf("question %q missing from bank", sess.QuestionID)
	}

	res := &AnswerResult{Question: question, Correct: question.Correct(choice)}

	if res.Correct {
		account, err := s.store.AdjustBalances(ctx, userID, 0, s.cfg.PointsPerCorrect)
		if err != nil {
			return nil, fmt.Errorf("credit points: %w", err)
		}
		res.Points = s.cfg.PointsPerCorrect
		res.Account = account
		s.metrics.AnswersProcessed.WithLabelValues("correct").Inc()
	} else {
		s.metrics.AnswersProcessed.WithLabelValues("wrong").Inc()
	}

	res.Bonus = s.tracker.RecordAnswer(ctx, userID, res.Correct)
	if res.Bonus {
		account, err := s.store.AdjustBalances(ctx, userID, s.cfg.BonusTokens, 0)
		if err != nil {
			return nil, fmt.Errorf("credit streak bonus: %w", err)
		}
		res.BonusTokens = s.cfg.BonusTokens
		res.Account = account
		s.metrics.BonusesAwarded.Inc()
	}

	if res.Account == nil {
		account, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("look up user: %w", err)
		}
		res.Account = account
	}

	res.Progress = s.tracker.Snapshot(ctx, userID)
	return res, nil
}

// Skip discards the active question and serves a replacement for free. One
// skip per question; the replacement cannot be skipped again.
func (s *Service) Skip(ctx context.Context, userID int64) (quiz.Question, error) {
	sess := s.peekSession(ctx, userID)
	if sess == nil {
		return quiz.Question{}, ErrNoActiveQuestion
	}
	if !s.tracker.UseSkip(ctx, userID) {
		return quiz.Question{}, ErrSkipUsed
	}

	question, err := s.pool.Next(ctx, userID, sess.Zone)
	if err != nil {
		return quiz.Question{}, err
	}
	s.putSession(ctx, userID, &Session{QuestionID: question.ID, Zone: sess.Zone, AskedAt: time.Now()})
	return question, nil
}

// Pause abandons the active question without grading it. The question cost
// is not refunded.
func (s *Service) Pause(ctx context.Context, userID int64) error {
	if sess := s.takeSession(ctx, userID); sess == nil {
		return ErrNoActiveQuestion
	}
	s.tracker.PauseGame(ctx, userID)
	return nil
}

// ClaimDaily credits the daily token reward once per cooldown period. On
// cooldown it returns ErrDailyNotReady and the remaining wait.
func (s *Service) ClaimDaily(ctx context.Context, userID int64) (*ledger.UserAccount, time.Duration, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, 0, ErrNotRegistered
	}

	now := time.Now()
	if user.LastDailyClaim != nil {
		if elapsed := now.Sub(*user.LastDailyClaim); elapsed < s.cfg.DailyCooldown {
			return nil, s.cfg.DailyCooldown - elapsed, ErrDailyNotReady
		}
	}

	if err := s.store.SetLastDailyClaim(ctx, userID, now); err != nil {
		return nil, 0, fmt.Errorf("stamp daily claim: %w", err)
	}
	account, err := s.store.AdjustBalances(ctx, userID, s.cfg.DailyTokens, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("credit daily reward: %w", err)
	}

	s.logger.Info("daily reward claimed", "user_id", userID, "tokens", s.cfg.DailyTokens)
	return account, 0, nil
}

// SetMoMoNumber stores the user's mobile money payout number.
func (s *Service) SetMoMoNumber(ctx context.Context, userID int64, number string) error {
	if !momoNumberRe.MatchString(number) {
		return ErrInvalidMoMoNumber
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return ErrNotRegistered
	}
	return s.store.SetMoMoNumber(ctx, userID, number)
}

// SetLanguage stores the user's preferred reply language.
func (s *Service) SetLanguage(ctx context.Context, userID int64, lang string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return ErrNotRegistered
	}
	return s.store.SetLanguage(ctx, userID, lang)
}

// Profile returns the user's account and quiz progress.
func (s *Service) Profile(ctx context.Context, userID int64) (*ledger.UserAccount, quiz.Progress, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, quiz.Progress{}, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, quiz.Progress{}, ErrNotRegistered
	}
	return user, s.tracker.Snapshot(ctx, userID), nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("quiz:session:%d", userID)
}

func (s *Service) putSession(ctx context.Context, userID int64, sess *Session) {
	s.mu.Lock()
	s.sessions[userID] = sess
	s.loaded[userID] = true
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, sessionKey(userID), sess, sessionTTL); err != nil {
			s.logger.Warn("failed persisting session", "user_id", userID, "error", err)
		}
	}
}

// peekSession returns the active session without consuming it.
func (s *Service) peekSession(ctx context.Context, userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked(ctx, userID)
}

// takeSession consumes the active session. The memory map and the cache are
// both cleared so a duplicate answer finds nothing to grade.
func (s *Service) takeSession(ctx context.Context, userID int64) *Session {
	s.mu.Lock()
	sess := s.sessionLocked(ctx, userID)
	delete(s.sessions, userID)
	s.mu.Unlock()

	if sess != nil && s.cache != nil {
		if err := s.cache.Delete(ctx, sessionKey(userID)); err != nil {
			s.logger.Warn("failed clearing session", "user_id", userID, "error", err)
		}
	}
	return sess
}

// sessionLocked restores a cached session on first touch. Caller holds the
// mutex.
func (s *Service) sessionLocked(ctx context.Context, userID int64) *Session {
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	if s.loaded[userID] || s.cache == nil {
		s.loaded[userID] = true
		return nil
	}
	s.loaded[userID] = true

	var snap Session
	found, err := s.cache.GetJSON(ctx, sessionKey(userID), &snap)
	if err != nil {
		s.logger.Warn("failed loading session", "user_id", userID, "error", err)
		return nil
	}
	if !found || snap.QuestionID == "" {
		return nil
	}
	s.sessions[userID] = &snap
	return &snap
}
