package bot

import (
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"triviabot/internal/ledger"
	"triviabot/internal/purchase"
	"triviabot/internal/quiz"
	"triviabot/internal/rewards"
)

// escapeMarkdown escapes user-supplied text for Telegram Markdown mode.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"[", `\[`,
		"]", `\]`,
	)
	return replacer.Replace(s)
}

func formatBalance(u *ledger.UserAccount) string {
	return fmt.Sprintf("🎟 Tokens: %d\n⭐ Points: %d", u.Tokens, u.Points)
}

func formatProfile(u *ledger.UserAccount, p quiz.Progress) string {
	momo := "not set"
	if u.MoMoNumber != nil {
		momo = *u.MoMoNumber
	}
	return fmt.Sprintf("👤 *%s*\n\n%s\n\n"+
		"🔥 Streak: %d (best %d)\n"+
		"✅ Correct: %d of %d\n"+
		"🎯 Next bonus in: %d correct answers\n\n"+
		"📱 MoMo: %s\n"+
		"🔗 Referral code: `%s` (%d invited)",
		escapeMarkdown(u.DisplayName), formatBalance(u),
		p.Streak, p.BestStreak,
		p.TotalCorrect, p.TotalQuestions,
		p.UntilBonus,
		momo,
		u.ReferralCode, u.ReferralCount)
}

// questionKeyboard renders the answer choices as one inline button per row,
// plus a skip button. Callback data carries the choice index.
func questionKeyboard(q quiz.Question) *telebot.ReplyMarkup {
	rows := make([][]telebot.InlineButton, 0, len(q.Choices)+1)
	for i, choice := range q.Choices {
		rows = append(rows, []telebot.InlineButton{{
			Text: choice,
			Data: fmt.Sprintf("ans:%d", i),
		}})
	}
	rows = append(rows, []telebot.InlineButton{{Text: "⏭ Skip", Data: "skip"}})
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

func formatQuestion(q quiz.Question) string {
	if q.Zone != "" {
		return fmt.Sprintf("❓ *[%s]* %s", strings.ToUpper(q.Zone[:1])+q.Zone[1:], escapeMarkdown(q.Text))
	}
	return "❓ " + escapeMarkdown(q.Text)
}

// buyKeyboard offers the fixed token packages. A custom amount goes through
// "/buy <tokens>" instead.
func buyKeyboard(pricing purchase.Pricing) *telebot.ReplyMarkup {
	rows := make([][]telebot.InlineButton, 0, len(purchase.DefaultPackages))
	for _, tokens := range purchase.DefaultPackages {
		rows = append(rows, []telebot.InlineButton{{
			Text: fmt.Sprintf("%d tokens — %d XAF", tokens, pricing.Price(tokens)),
			Data: fmt.Sprintf("buy:%d", tokens),
		}})
	}
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

func redeemKeyboard(catalog *rewards.Catalog) *telebot.ReplyMarkup {
	entries := catalog.Entries()
	rows := make([][]telebot.InlineButton, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []telebot.InlineButton{{
			Text: fmt.Sprintf("%s — %d pts", e.Label, e.PointCost),
			Data: "rdm:" + e.Label,
		}})
	}
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

func formatPending(pending []ledger.TransactionRecord) string {
	if len(pending) == 0 {
		return "No pending purchase requests."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Pending purchases* (%d)\n", len(pending))
	for i, rec := range pending {
		fmt.Fprintf(&b, "\n*%d.* `%s`\n   user %d | %d tokens | %d XAF\n   /approve %s",
			i+1, rec.Ref, rec.UserID, rec.TokenAmount, rec.Price, rec.Ref)
	}
	return b.String()
}

const helpText = "📚 *Commands*\n\n" +
	"/play [zone] - Buy a question and play\n" +
	"/skip - Swap the current question (once)\n" +
	"/balance - Tokens and points\n" +
	"/me - Profile, streak and referral code\n" +
	"/daily - Claim the daily token reward\n" +
	"/buy [tokens] - Buy tokens (admin approves)\n" +
	"/redeem - Trade points for rewards\n" +
	"/momo <number> - Set your MoMo payout number\n" +
	"/lang <code> - Set your reply language\n" +
	"/rate - Current USD/XAF rate\n" +
	"/cancel <ref> - Cancel your pending purchase\n" +
	"/help - This message"

const adminHelpText = "\n\n🛠 *Admin*\n" +
	"/pending - Open purchase requests\n" +
	"/approve <ref> - Approve a purchase\n" +
	"/lottery - Run the daily draw now\n" +
	"/raffle - Run the weekly draw now"
