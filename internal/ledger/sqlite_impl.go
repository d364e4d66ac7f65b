package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, display_name, username, tokens, points, momo_number, referral_code, referrer_id, referral_count, last_daily_claim, language, created_at, updated_at`

const txColumns = `id, user_id, ref, token_amount, price, method, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*UserAccount, error) {
	var u UserAccount
	var momo sql.NullString
	var referrer sql.NullInt64
	var lastClaim sql.NullTime
	if err := row.Scan(
		&u.ID, &u.DisplayName, &u.Username, &u.Tokens, &u.Points,
		&momo, &u.ReferralCode, &referrer, &u.ReferralCount,
		&lastClaim, &u.Language, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if momo.Valid {
		u.MoMoNumber = &momo.String
	}
	if referrer.Valid {
		u.ReferrerID = &referrer.Int64
	}
	if lastClaim.Valid {
		u.LastDailyClaim = &lastClaim.Time
	}
	return &u, nil
}

func scanTransaction(row rowScanner) (*TransactionRecord, error) {
	var rec TransactionRecord
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Ref, &rec.TokenAmount, &rec.Price,
		&rec.Method, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

// -- Users --

func (s *SQLiteStore) UpsertUser(ctx context.Context, profile UserProfile) (*UserAccount, error) {
	q := `
INSERT INTO users (id, display_name, username, referral_code, language, updated_at)
VALUES (?, ?, ?, ?, COALESCE(NULLIF(?, ''), 'en'), CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET
    display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name),
    username = COALESCE(NULLIF(excluded.username, ''), users.username),
    updated_at = CURRENT_TIMESTAMP
RETURNING ` + userColumns + `;`

	row := s.db.QueryRowContext(ctx, q,
		profile.ID,
		profile.DisplayName,
		profile.Username,
		ReferralCodeFor(profile.ID),
		profile.Language,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1;`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByReferralCode(ctx context.Context, code string) (*UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE referral_code = ? LIMIT 1;`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by referral code: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC;`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []UserAccount
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) SetMoMoNumber(ctx context.Context, id int64, number string) error {
	const q = `UPDATE users SET momo_number = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, number, id)
	if err != nil {
		return fmt.Errorf("set momo number: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLiteStore) SetLanguage(ctx context.Context, id int64, lang string) error {
	const q = `UPDATE users SET language = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, lang, id)
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLiteStore) SetLastDailyClaim(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET last_daily_claim = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("set last daily claim: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetReferrer links the referrer once; a second call is a no-op and reports
// false.
func (s *SQLiteStore) SetReferrer(ctx context.Context, id, referrerID int64) (bool, error) {
	const q = `
UPDATE users SET referrer_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND referrer_id IS NULL;`
	ct, err := s.db.ExecContext(ctx, q, referrerID, id)
	if err != nil {
		return false, fmt.Errorf("set referrer: %w", err)
	}
	n, _ := ct.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) IncrementReferralCount(ctx context.Context, id int64) error {
	const q = `UPDATE users SET referral_count = referral_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	ct, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("increment referral count: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AdjustBalances applies both deltas in one guarded update. The WHERE clause
// is the negative-balance guard: when it filters the row out, no mutation
// happens at all.
func (s *SQLiteStore) AdjustBalances(ctx context.Context, id, tokenDelta, pointDelta int64) (*UserAccount, error) {
	q := `
UPDATE users
SET tokens = tokens + ?, points = points + ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND tokens + ? >= 0 AND points + ? >= 0
RETURNING ` + userColumns + `;`

	row := s.db.QueryRowContext(ctx, q, tokenDelta, pointDelta, id, tokenDelta, pointDelta)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		var exists int
		checkErr := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?;`, id).Scan(&exists)
		if checkErr == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		if checkErr != nil {
			return nil, fmt.Errorf("adjust balances lookup: %w", checkErr)
		}
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, fmt.Errorf("adjust balances: %w", err)
	}
	return u, nil
}

// -- Transactions --

func (s *SQLiteStore) AppendTransaction(ctx context.Context, rec TransactionRecord) (*TransactionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	q := `
INSERT INTO transactions (id, user_id, ref, token_amount, price, method, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + txColumns + `;`

	row := s.db.QueryRowContext(ctx, q,
		rec.ID, rec.UserID, rec.Ref, rec.TokenAmount, rec.Price, rec.Method, rec.Status,
	)
	inserted, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStore) GetTransactionByRef(ctx context.Context, ref string) (*TransactionRecord, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE ref = ? LIMIT 1;`
	rec, err := scanTransaction(s.db.QueryRowContext(ctx, q, ref))
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by ref: %w", err)
	}
	return rec, nil
}

// ClaimPendingTransaction flips pending to approved in a single
// compare-and-swap update, so only the first of two concurrent approvals
// can succeed.
func (s *SQLiteStore) ClaimPendingTransaction(ctx context.Context, ref string) (*TransactionRecord, error) {
	q := `
UPDATE transactions
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE ref = ? AND status = ?
RETURNING ` + txColumns + `;`

	row := s.db.QueryRowContext(ctx, q, StatusApproved, ref, StatusPending)
	rec, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim transaction: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) CancelPendingTransaction(ctx context.Context, ref string) error {
	const q = `
UPDATE transactions
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE ref = ? AND status = ?;`
	ct, err := s.db.ExecContext(ctx, q, StatusCancelled, ref, StatusPending)
	if err != nil {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *SQLiteStore) ListPendingTransactions(ctx context.Context) ([]TransactionRecord, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE status = ? ORDER BY created_at ASC;`
	rows, err := s.db.QueryContext(ctx, q, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}
