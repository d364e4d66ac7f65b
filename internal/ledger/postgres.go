package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore provides a ledger backed by a Postgres connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres opens a new connection pool to the database.
func NewPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "ledger_postgres"),
	}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations applies the Postgres migration files in lexicographical order.
func (s *PostgresStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, "postgres")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(filesystem, "postgres/"+entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, string(sqlBytes))
			return err
		}); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func scanUserPG(row pgx.Row) (*UserAccount, error) {
	var u UserAccount
	if err := row.Scan(
		&u.ID, &u.DisplayName, &u.Username, &u.Tokens, &u.Points,
		&u.MoMoNumber, &u.ReferralCode, &u.ReferrerID, &u.ReferralCount,
		&u.LastDailyClaim, &u.Language, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanTransactionPG(row pgx.Row) (*TransactionRecord, error) {
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

func (s *PostgresStore) UpsertUser(ctx context.Context, profile UserProfile) (*UserAccount, error) {
	q := `
INSERT INTO users (id, display_name, username, referral_code, language, updated_at)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'en'), NOW())
ON CONFLICT (id) DO UPDATE SET
    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
    username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
    updated_at = NOW()
RETURNING ` + userColumns + `;`

	row := s.pool.QueryRow(ctx, q,
		profile.ID, profile.DisplayName, profile.Username,
		ReferralCodeFor(profile.ID), profile.Language,
	)
	u, err := scanUserPG(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1;`
	u, err := scanUserPG(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByReferralCode(ctx context.Context, code string) (*UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1 LIMIT 1;`
	u, err := scanUserPG(s.pool.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by referral code: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC;`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []UserAccount
	for rows.Next() {
		u, err := scanUserPG(rows)
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

func (s *PostgresStore) SetMoMoNumber(ctx context.Context, id int64, number string) error {
	const q = `UPDATE users SET momo_number = $2, updated_at = NOW() WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, number)
	if err != nil {
		return fmt.Errorf("set momo number: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) SetLanguage(ctx context.Context, id int64, lang string) error {
	const q = `UPDATE users SET language = $2, updated_at = NOW() WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, lang)
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) SetLastDailyClaim(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET last_daily_claim = $2, updated_at = NOW() WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return fmt.Errorf("set last daily claim: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) SetReferrer(ctx context.Context, id, referrerID int64) (bool, error) {
	const q = `UPDATE users SET referrer_id = $2, updated_at = NOW() WHERE id = $1 AND referrer_id IS NULL;`
	ct, err := s.pool.Exec(ctx, q, id, referrerID)
	if err != nil {
		return false, fmt.Errorf("set referrer: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PostgresStore) IncrementReferralCount(ctx context.Context, id int64) error {
	const q = `UPDATE users SET referral_count = referral_count + 1, updated_at = NOW() WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("increment referral count: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) AdjustBalances(ctx context.Context, id, tokenDelta, pointDelta int64) (*UserAccount, error) {
	q := `
UPDATE users
SET tokens = tokens + $2, points = points + $3, updated_at = NOW()
WHERE id = $1 AND tokens + $2 >= 0 AND points + $3 >= 0
RETURNING ` + userColumns + `;`

	u, err := scanUserPG(s.pool.QueryRow(ctx, q, id, tokenDelta, pointDelta))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists int
		checkErr := s.pool.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1;`, id).Scan(&exists)
		if errors.Is(checkErr, pgx.ErrNoRows) {
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

func (s *PostgresStore) AppendTransaction(ctx context.Context, rec TransactionRecord) (*TransactionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	q := `
INSERT INTO transactions (id, user_id, ref, token_amount, price, method, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + txColumns + `;`

	row := s.pool.QueryRow(ctx, q,
		rec.ID, rec.UserID, rec.Ref, rec.TokenAmount, rec.Price, rec.Method, rec.Status,
	)
	inserted, err := scanTransactionPG(row)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetTransactionByRef(ctx context.Context, ref string) (*TransactionRecord, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE ref = $1 LIMIT 1;`
	rec, err := scanTransactionPG(s.pool.QueryRow(ctx, q, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by ref: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ClaimPendingTransaction(ctx context.Context, ref string) (*TransactionRecord, error) {
	q := `
UPDATE transactions
SET status = $2, updated_at = NOW()
WHERE ref = $1 AND status = $3
RETURNING ` + txColumns + `;`

	rec, err := scanTransactionPG(s.pool.QueryRow(ctx, q, ref, StatusApproved, StatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim transaction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CancelPendingTransaction(ctx context.Context, ref string) error {
	const q = `
UPDATE transactions
SET status = $2, updated_at = NOW()
WHERE ref = $1 AND status = $3;`
	ct, err := s.pool.Exec(ctx, q, ref, StatusCancelled, StatusPending)
	if err != nil {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *PostgresStore) ListPendingTransactions(ctx context.Context) ([]TransactionRecord, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE status = $1 ORDER BY created_at ASC;`
	rows, err := s.pool.Query(ctx, q, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		rec, err := scanTransactionPG(rows)
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
