package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"triviabot/internal/game"
	"triviabot/internal/ledger"
	"triviabot/internal/lottery"
	"triviabot/internal/purchase"
	"triviabot/internal/quiz"
	"triviabot/internal/rates"
	"triviabot/internal/rewards"
	"triviabot/internal/translate"
)

// Config holds Telegram transport settings.
type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Bot wires the Telegram transport to the gameplay, purchase, rewards,
// lottery and rates services.
type Bot struct {
	tb         *telebot.Bot
	game       *game.Service
	purchases  *purchase.Service
	rewards    *rewards.Service
	lottery    *lottery.Worker
	rates      *rates.Service
	translator *translate.Client
	logger     *slog.Logger
}

// New creates the bot and registers every handler.
func New(cfg Config, gameSvc *game.Service, purchaseSvc *purchase.Service, rewardSvc *rewards.Service, lotteryWorker *lottery.Worker, rateSvc *rates.Service, translator *translate.Client, logger *slog.Logger) (*Bot, error) {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Token,
		Poller: &telebot.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b := &Bot{
		tb:         tb,
		game:       gameSvc,
		purchases:  purchaseSvc,
		rewards:    rewardSvc,
		lottery:    lotteryWorker,
		rates:      rateSvc,
		translator: translator,
		logger:     logger.With("component", "bot"),
	}
	b.registerHandlers()
	return b, nil
}

// Start begins long polling. Blocks until Stop is called.
func (b *Bot) Start() {
	b.logger.Info("telegram bot started", "username", b.tb.Me.Username)
	b.tb.Start()
}

// Stop halts long polling.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// SendMessage delivers a plain message to the user. Implements the Notifier
// used by the purchase service and the lottery worker; failures are logged
// and swallowed.
func (b *Bot) SendMessage(userID int64, text string) {
	if _, err := b.tb.Send(&telebot.User{ID: userID}, text); err != nil {
		b.logger.Warn("failed sending message", "user_id", userID, "error", err)
	}
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/play", b.handlePlay)
	b.tb.Handle("/skip", b.handleSkip)
	b.tb.Handle("/balance", b.handleBalance)
	b.tb.Handle("/me", b.handleMe)
	b.tb.Handle("/daily", b.handleDaily)
	b.tb.Handle("/buy", b.handleBuy)
	b.tb.Handle("/redeem", b.handleRedeem)
	b.tb.Handle("/momo", b.handleMoMo)
	b.tb.Handle("/lang", b.handleLang)
	b.tb.Handle("/rate", b.handleRate)
	b.tb.Handle("/cancel", b.handleCancel)

	b.tb.Handle("/pending", b.handlePending)
	b.tb.Handle("/approve", b.handleApprove)
	b.tb.Handle("/lottery", b.handleLottery)
	b.tb.Handle("/raffle", b.handleRaffle)

	b.tb.Handle(telebot.OnCallback, b.handleCallback)
}

// reply sends text to the user in their preferred language, markdown mode.
func (b *Bot) reply(c telebot.Context, text string, opts ...interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if account, _, err := b.game.Profile(ctx, c.Sender().ID); err == nil && account.Language != "" {
		text = b.translator.Translate(ctx, text, account.Language)
	}
	opts = append(opts, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	return c.Send(text, opts...)
}

// friendly maps service errors to user-facing messages. Unknown errors get
// a generic line; the detail stays in the log.
func (b *Bot) friendly(c telebot.Context, err error) error {
	switch {
	case errors.Is(err, game.ErrNotRegistered):
		return b.reply(c, "You are not registered yet. Send /start first!")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return b.reply(c, "Not enough balance for that. Check /balance, or top up with /buy or /daily.")
	case errors.Is(err, game.ErrNoActiveQuestion):
		return b.reply(c, "No question is waiting for you. Send /play to get one!")
	case errors.Is(err, game.ErrSkipUsed):
		return b.reply(c, "You already used your skip for this question. Give it a try!")
	case errors.Is(err, game.ErrDailyNotReady):
		return b.reply(c, "Your daily reward is not ready yet. Come back later!")
	case errors.Is(err, game.ErrInvalidMoMoNumber):
		return b.reply(c, "That does not look like a MoMo number. Example: /momo 237670000001")
	case errors.Is(err, quiz.ErrQuestionBankEmpty):
		return b.reply(c, "No questions available for that zone right now.")
	case errors.Is(err, rewards.ErrRewardNotFound):
		return b.reply(c, "That reward is not in the catalog. Send /redeem to see the list.")
	case errors.Is(err, purchase.ErrUnauthorized):
		return b.reply(c, "You are not allowed to do that.")
	case errors.Is(err, purchase.ErrInvalidAmount):
		return b.reply(c, "Token amount must be a positive number.")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return b.reply(c, "No pending transaction with that reference.")
	default:
		b.logger.Error("handler failed", "user_id", c.Sender().ID, "error", err)
		return b.reply(c, "Something went wrong. Please try again.")
	}
}

func (b *Bot) handleStart(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := c.Sender()
	profile := ledger.UserProfile{
		ID:          sender.ID,
		DisplayName: strings.TrimSpace(sender.FirstName + " " + sender.LastName),
		Username:    sender.Username,
	}

	// /start payload carries the referral code from invite links.
	referralCode := strings.TrimSpace(c.Message().Payload)

	res, err := b.game.Register(ctx, profile, referralCode)
	if err != nil {
		return b.friendly(c, err)
	}

	if res.New {
		msg := fmt.Sprintf("🎉 Welcome to the quiz, %s!\n\n%s\n\n"+
			"Each question costs %d token and a correct answer earns %d points. "+
			"Claim free tokens with /daily and invite friends with your code `%s`.\n\nSend /play to start!",
			escapeMarkdown(res.Account.DisplayName), formatBalance(res.Account),
			b.game.Config().QuestionCost, b.game.Config().PointsPerCorrect,
			res.Account.ReferralCode)
		if res.Referrer != nil {
			b.SendMessage(res.Referrer.ID, fmt.Sprintf(
				"Your referral joined! You earned %d tokens.", b.game.Config().ReferralTokens))
		}
		return b.reply(c, msg)
	}
	return b.reply(c, fmt.Sprintf("Welcome back, %s!\n\n%s\n\nSend /play to continue.",
		escapeMarkdown(res.Account.DisplayName), formatBalance(res.Account)))
}

func (b *Bot) handleHelp(c telebot.Context) error {
	text := helpText
	if b.purchases.IsAdmin(c.Sender().ID) {
		text += adminHelpText
	}
	return b.reply(c, text)
}

func (b *Bot) handlePlay(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zone := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	question, err := b.game.StartQuestion(ctx, c.Sender().ID, zone)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, formatQuestion(question), questionKeyboard(question))
}

func (b *Bot) handleSkip(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	question, err := b.game.Skip(ctx, c.Sender().ID)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, formatQuestion(question), questionKeyboard(question))
}

func (b *Bot) handleBalance(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, _, err := b.game.Profile(ctx, c.Sender().ID)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, "💰 *Your balance*\n\n"+formatBalance(account))
}

func (b *Bot) handleMe(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, progress, err := b.game.Profile(ctx, c.Sender().ID)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, formatProfile(account, progress))
}

func (b *Bot) handleDaily(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, remaining, err := b.game.ClaimDaily(ctx, c.Sender().ID)
	if errors.Is(err, game.ErrDailyNotReady) {
		return b.reply(c, fmt.Sprintf("⏳ Your daily reward is ready in %s.", remaining.Round(time.Minute)))
	}
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, fmt.Sprintf("🎁 Daily reward claimed: +%d tokens!\n\n%s",
		b.game.Config().DailyTokens, formatBalance(account)))
}

func (b *Bot) handleBuy(c telebot.Context) error {
	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return b.reply(c, "🛒 *Buy tokens*\n\nPick a package, or send /buy <tokens> for a custom amount. "+
			"An admin confirms your MoMo payment before tokens are credited.",
			buyKeyboard(b.purchases.Pricing()))
	}

	tokens, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return b.reply(c, "Token amount must be a number, e.g. /buy 15")
	}
	return b.requestPurchase(c, tokens)
}

func (b *Bot) requestPurchase(c telebot.Context, tokens int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := b.purchases.Request(ctx, c.Sender().ID, tokens)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, fmt.Sprintf(
		"🧾 Purchase request `%s`\n\n%d tokens for %d XAF.\n"+
			"Pay by MoMo and wait for admin approval. Cancel anytime with /cancel %s",
		rec.Ref, rec.TokenAmount, rec.Price, rec.Ref))
}

func (b *Bot) handleRedeem(c telebot.Context) error {
	return b.reply(c, "🎁 *Reward catalog*\n\nPick a reward to trade your points for:",
		redeemKeyboard(b.rewards.Catalog()))
}

func (b *Bot) handleMoMo(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	number := strings.TrimSpace(c.Message().Payload)
	if number == "" {
		return b.reply(c, "Usage: /momo <number>, e.g. /momo 237670000001")
	}
	if err := b.game.SetMoMoNumber(ctx, c.Sender().ID, number); err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, "📱 MoMo number saved. Airtime rewards go there.")
}

func (b *Bot) handleLang(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lang := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	if lang == "" {
		return b.reply(c, "Usage: /lang <code>, e.g. /lang fr")
	}
	if err := b.game.SetLanguage(ctx, c.Sender().ID, lang); err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, "🌍 Language updated.")
}

func (b *Bot) handleRate(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	quote := b.rates.Quote(ctx)
	age := "just now"
	if !quote.UpdatedAt.IsZero() {
		age = time.Since(quote.UpdatedAt).Round(time.Minute).String() + " ago"
	} else if quote.Source == "fallback" {
		age = "static fallback"
	}
	return b.reply(c, fmt.Sprintf("💱 1 USD = %.2f XAF\n(updated %s)", quote.Rate, age))
}

func (b *Bot) handleCancel(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ref := strings.TrimSpace(c.Message().Payload)
	if ref == "" {
		return b.reply(c, "Usage: /cancel <ref>")
	}
	if err := b.purchases.Cancel(ctx, c.Sender().ID, ref); err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, fmt.Sprintf("🚫 Request `%s` cancelled.", ref))
}

func (b *Bot) handlePending(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := b.purchases.ListPending(ctx, c.Sender().ID)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, formatPending(pending))
}

func (b *Bot) handleApprove(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ref := strings.TrimSpace(c.Message().Payload)
	if ref == "" {
		return b.reply(c, "Usage: /approve <ref>")
	}
	rec, err := b.purchases.Approve(ctx, c.Sender().ID, ref)
	if err != nil {
		return b.friendly(c, err)
	}
	return b.reply(c, fmt.Sprintf("✅ Approved `%s`: %d tokens credited to user %d.",
		rec.Ref, rec.TokenAmount, rec.UserID))
}

func (b *Bot) handleLottery(c telebot.Context) error {
	return b.runDraw(c, b.lottery.RunDaily)
}

func (b *Bot) handleRaffle(c telebot.Context) error {
	return b.runDraw(c, b.lottery.RunWeekly)
}

func (b *Bot) runDraw(c telebot.Context, run func(context.Context) (*lottery.Result, error)) error {
	if !b.purchases.IsAdmin(c.Sender().ID) {
		return b.reply(c, "You are not allowed to do that.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := run(ctx)
	if err != nil {
		return b.friendly(c, err)
	}
	if res.Winner == nil {
		return b.reply(c, fmt.Sprintf("🎰 No eligible users for the %s draw.", res.Kind))
	}
	return b.reply(c, fmt.Sprintf("🎰 %s draw: user %d won %d tokens (`%s`).",
		res.Kind, res.Winner.ID, res.Prize, res.Ref))
}

// handleCallback dispatches inline keyboard presses. Data formats:
// "ans:<choice>", "skip", "buy:<tokens>", "rdm:<label>".
func (b *Bot) handleCallback(c telebot.Context) error {
	data := strings.TrimSpace(strings.TrimPrefix(c.Callback().Data, "\f"))

	switch {
	case strings.HasPrefix(data, "ans:"):
		choice, err := strconv.Atoi(strings.TrimPrefix(data, "ans:"))
		if err != nil {
			return c.Respond()
		}
		return b.handleAnswer(c, choice)
	case data == "skip":
		if err := c.Respond(); err != nil {
			return err
		}
		return b.handleSkip(c)
	case strings.HasPrefix(data, "buy:"):
		tokens, err := strconv.ParseInt(strings.TrimPrefix(data, "buy:"), 10, 64)
		if err != nil {
			return c.Respond()
		}
		if err := c.Respond(); err != nil {
			return err
		}
		return b.requestPurchase(c, tokens)
	case strings.HasPrefix(data, "rdm:"):
		if err := c.Respond(); err != nil {
			return err
		}
		return b.handleRedeemChoice(c, strings.TrimPrefix(data, "rdm:"))
	default:
		return c.Respond()
	}
}

func (b *Bot) handleAnswer(c telebot.Context, choice int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := b.game.Answer(ctx, c.Sender().ID, choice)
	if err != nil {
		if respondErr := c.Respond(); respondErr != nil {
			return respondErr
		}
		return b.friendly(c, err)
	}

	if res.Correct {
		if err := c.Respond(&telebot.CallbackResponse{Text: "Correct! 🎉"}); err != nil {
			return err
		}
		msg := fmt.Sprintf("✅ Correct! +%d points.", res.Points)
		if res.Bonus {
			msg += fmt.Sprintf("\n\n🔥 Streak bonus! +%d tokens.", res.BonusTokens)
		}
		msg += fmt.Sprintf("\n\n%s\n🔥 Streak: %d | Next /play?", formatBalance(res.Account), res.Progress.Streak)
		return b.reply(c, msg)
	}

	if err := c.Respond(&telebot.CallbackResponse{Text: "Wrong 😔"}); err != nil {
		return err
	}
	correct := res.Question.Choices[res.Question.Answer]
	return b.reply(c, fmt.Sprintf("❌ Wrong! The answer was: *%s*\n\nYour streak is reset. Try another /play!",
		escapeMarkdown(correct)))
}

func (b *Bot) handleRedeemChoice(c telebot.Context, label string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := b.rewards.Redeem(ctx, c.Sender().ID, label)
	if err != nil {
		return b.friendly(c, err)
	}

	msg := fmt.Sprintf("🎁 Redeemed *%s* for %d points!", escapeMarkdown(res.Entry.Label), res.Entry.PointCost)
	if res.Entry.TokenPayout > 0 {
		msg += fmt.Sprintf(" %d tokens credited.", res.Entry.TokenPayout)
	} else {
		msg += " An admin sends the airtime to your MoMo number shortly."
	}
	msg += "\n\n" + formatBalance(res.Account)
	return b.reply(c, msg)
}
