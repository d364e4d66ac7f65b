package ledger

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

var (
	// ErrInsufficientBalance indicates a balance mutation would drive a
	// token or point balance below zero. No mutation is applied.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUserNotFound indicates a balance mutation targeted an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrTransactionNotFound indicates a claim targeted an unknown ref or
	// one that is no longer pending. The first successful claim wins.
	ErrTransactionNotFound = errors.New("transaction not found or not pending")
)

// Store defines the interface for the account ledger.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	UpsertUser(ctx context.Context, profile UserProfile) (*UserAccount, error)
	GetUser(ctx context.Context, id int64) (*UserAccount, error)
	GetUserByReferralCode(ctx context.Context, code string) (*UserAccount, error)
	ListUsers(ctx context.Context) ([]UserAccount, error)
	SetMoMoNumber(ctx context.Context, id int64, number string) error
	SetLanguage(ctx context.Context, id int64, lang string) error
	SetLastDailyClaim(ctx context.Context, id int64, at time.Time) error
	SetReferrer(ctx context.Context, id, referrerID int64) (bool, error)
	IncrementReferralCount(ctx context.Context, id int64) error

	// AdjustBalances applies both deltas in a single guarded update so a
	// concurrent mutation for the same user can never be lost or drive a
	// balance negative.
	AdjustBalances(ctx context.Context, id, tokenDelta, pointDelta int64) (*UserAccount, error)

	// Transactions (append-only; status flips once via the claim)
	AppendTransaction(ctx context.Context, rec TransactionRecord) (*TransactionRecord, error)
	GetTransactionByRef(ctx context.Context, ref string) (*TransactionRecord, error)
	ClaimPendingTransaction(ctx context.Context, ref string) (*TransactionRecord, error)
	CancelPendingTransaction(ctx context.Context, ref string) error
	ListPendingTransactions(ctx context.Context) ([]TransactionRecord, error)
}
