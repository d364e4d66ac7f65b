package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triviabot/internal/bot"
	"triviabot/internal/cache"
	"triviabot/internal/config"
	"triviabot/internal/game"
	"triviabot/internal/httpserver"
	"triviabot/internal/ledger"
	"triviabot/internal/logging"
	"triviabot/internal/lottery"
	"triviabot/internal/metrics"
	"triviabot/internal/purchase"
	"triviabot/internal/quiz"
	"triviabot/internal/rates"
	"triviabot/internal/rewards"
	"triviabot/internal/translate"
	"triviabot/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting triviabot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var store ledger.Store
	if cfg.DatabaseURL != "" {
		store, err = ledger.NewPostgres(ctx, cfg.DatabaseURL, logger)
	} else {
		store, err = ledger.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		UseTLS:   cfg.Redis.UseTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed, progress snapshots disabled until it recovers", "error", err)
	}

	bank, err := quiz.NewBank()
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	logger.Info("question bank loaded", "questions", bank.Size(), "zones", bank.Zones())

	pool := quiz.NewPool(bank, redisClient, logger)
	tracker := quiz.NewTracker(cfg.Quiz.BonusWindow, redisClient, logger)

	rateSvc := rates.NewService(rates.NewClient(cfg.Rates.Timeout), rates.Config{
		BaseCurrency:    cfg.Rates.BaseCurrency,
		TargetCurrency:  cfg.Rates.TargetCurrency,
		RefreshInterval: cfg.Rates.RefreshInterval,
		FallbackRate:    cfg.Rates.FallbackRate,
		SourceURLs:      cfg.Rates.SourceURLs,
	}, redisClient, metricRegistry, logger)

	translator := translate.New(translate.Config{
		BaseURL: cfg.Translate.BaseURL,
		Timeout: cfg.Translate.Timeout,
	}, logger)

	gameSvc := game.NewService(game.Config{
		QuestionCost:     cfg.Quiz.QuestionCost,
		PointsPerCorrect: cfg.Quiz.PointsPerCorrect,
		BonusTokens:      cfg.Quiz.BonusTokens,
		DailyTokens:      cfg.Quiz.DailyTokens,
		DailyCooldown:    cfg.Quiz.DailyCooldown,
		ReferralTokens:   cfg.Quiz.ReferralTokens,
	}, store, bank, pool, tracker, redisClient, metricRegistry, logger)

	rewardSvc := rewards.NewService(rewards.DefaultCatalog(), store, metricRegistry, logger)

	// The bot is both the chat frontend and the notifier for purchases and
	// draws, so the notifier-dependent services are built in two steps.
	notifier := &lazyNotifier{logger: logger}

	purchaseSvc := purchase.NewService(store, purchase.Pricing{UnitPrice: cfg.Purchase.UnitPrice},
		cfg.Telegram.AdminIDs, notifier, metricRegistry, logger)

	lotteryWorker := lottery.NewWorker(store, lottery.Config{
		DailyInterval:     cfg.Lottery.DailyInterval,
		WeeklyInterval:    cfg.Lottery.WeeklyInterval,
		DailyPrize:        cfg.Lottery.DailyPrize,
		WeeklyPrize:       cfg.Lottery.WeeklyPrize,
		RafflePointsFloor: cfg.Lottery.RafflePointsFloor,
	}, notifier, metricRegistry, logger)

	chatBot, err := bot.New(bot.Config{
		Token:       cfg.Telegram.BotToken,
		PollTimeout: cfg.Telegram.PollTimeout,
	}, gameSvc, purchaseSvc, rewardSvc, lotteryWorker, rateSvc, translator, logger)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	notifier.delegate = chatBot

	lotteryWorker.Start()
	defer lotteryWorker.Stop()

	go chatBot.Start()
	defer chatBot.Stop()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, store, rateSvc, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

// lazyNotifier forwards messages to the bot once it exists. Messages sent
// before wiring completes are dropped with a log line; nothing sends that
// early in practice.
type lazyNotifier struct {
	delegate interface{ SendMessage(userID int64, text string) }
	logger   interface {
		Warn(msg string, args ...any)
	}
}

func (n *lazyNotifier) SendMessage(userID int64, text string) {
	if n.delegate == nil {
		n.logger.Warn("notifier not wired yet, dropping message", "user_id", userID)
		return
	}
	n.delegate.SendMessage(userID, text)
}
