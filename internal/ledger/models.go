package ledger

import (
	"strconv"
	"strings"
	"time"
)

// Transaction statuses. A transaction is mutated exactly once: the claim
// moves it from pending to approved (or cancelled) and no further writes
// are possible.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCancelled = "cancelled"
)

// Method tags recorded on transactions for audit.
const (
	MethodPurchase     = "purchase"
	MethodRedeem       = "redeem"
	MethodReferral     = "referral"
	MethodDailyLottery = "lottery:daily"
	MethodWeeklyRaffle = "raffle:weekly"
)

// UserAccount represents the users table row. Token and point balances are
// whole units and never go negative.
type UserAccount struct {
	ID             int64
	DisplayName    string
	Username       string
	Tokens         int64
	Points         int64
	MoMoNumber     *string
	ReferralCode   string
	ReferrerID     *int64
	ReferralCount  int64
	LastDailyClaim *time.Time
	Language       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserProfile carries data used to upsert a user.
type UserProfile struct {
	ID          int64
	DisplayName string
	Username    string
	Language    string
}

// TransactionRecord is a row in the transactions table. Ref is the caller
// facing identifier, globally unique.
type TransactionRecord struct {
	ID          string
	UserID      int64
	Ref         string
	TokenAmount int64
	Price       int64
	Method      string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReferralCodeFor derives the user's referral code deterministically from
// the account ID.
func ReferralCodeFor(id int64) string {
	return "QZ" + strings.ToUpper(strconv.FormatInt(id, 36))
}
