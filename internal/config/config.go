package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config carries all runtime settings, parsed from the environment.
type Config struct {
	AppEnv           string `env:"APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"triviabot"`
	HTTPListenAddr   string `env:"HTTP_LISTEN_ADDR" envDefault:":8090"`

	Telegram struct {
		BotToken    string        `env:"BOT_TOKEN,required"`
		AdminIDs    []int64       `env:"ADMIN_IDS" envSeparator:","`
		PollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"10s"`
	}

	// DatabaseURL selects the Postgres ledger when set; otherwise the
	// SQLite ledger at SQLitePath is used.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/triviabot.db"`

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		UseTLS   bool   `env:"REDIS_TLS" envDefault:"false"`
	}

	Quiz struct {
		QuestionCost     int64         `env:"QUESTION_COST_TOKENS" envDefault:"1"`
		PointsPerCorrect int64         `env:"POINTS_PER_CORRECT" envDefault:"10"`
		BonusWindow      int           `env:"BONUS_WINDOW" envDefault:"10"`
		BonusTokens      int64         `env:"BONUS_TOKENS" envDefault:"5"`
		DailyTokens      int64         `env:"DAILY_REWARD_TOKENS" envDefault:"2"`
		DailyCooldown    time.Duration `env:"DAILY_REWARD_COOLDOWN" envDefault:"24h"`
		ReferralTokens   int64         `env:"REFERRAL_REWARD_TOKENS" envDefault:"2"`
	}

	Purchase struct {
		// UnitPrice is the reference-currency price of a single token.
		// Package and custom-amount prices derive from this constant,
		// never from the live exchange rate.
		UnitPrice int64 `env:"TOKEN_UNIT_PRICE" envDefault:"100"`
	}

	Lottery struct {
		DailyInterval     time.Duration `env:"LOTTERY_DAILY_INTERVAL" envDefault:"24h"`
		WeeklyInterval    time.Duration `env:"LOTTERY_WEEKLY_INTERVAL" envDefault:"168h"`
		DailyPrize        int64         `env:"LOTTERY_DAILY_PRIZE" envDefault:"5"`
		WeeklyPrize       int64         `env:"LOTTERY_WEEKLY_PRIZE" envDefault:"10"`
		RafflePointsFloor int64         `env:"RAFFLE_POINTS_FLOOR" envDefault:"100"`
	}

	Rates struct {
		BaseCurrency    string        `env:"RATES_BASE_CURRENCY" envDefault:"USD"`
		TargetCurrency  string        `env:"RATES_TARGET_CURRENCY" envDefault:"XAF"`
		RefreshInterval time.Duration `env:"RATES_REFRESH_INTERVAL" envDefault:"6h"`
		Timeout         time.Duration `env:"RATES_TIMEOUT" envDefault:"8s"`
		FallbackRate    float64       `env:"RATES_FALLBACK" envDefault:"600"`
		// SourceURLs are tried in order; {base} is replaced with the
		// base currency code.
		SourceURLs []string `env:"RATES_SOURCES" envSeparator:"," envDefault:"https://open.er-api.com/v6/latest/{base},https://api.frankfurter.dev/v1/latest?base={base}"`
	}

	Translate struct {
		BaseURL string        `env:"TRANSLATE_BASE_URL"`
		Timeout time.Duration `env:"TRANSLATE_TIMEOUT" envDefault:"5s"`
	}
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
