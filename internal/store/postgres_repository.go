/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All money
 * movement runs inside explicit transactions with `SELECT ... FOR UPDATE`
 * row locks, making the database the sole arbiter of atomicity: concurrent
 * webhook deliveries or withdrawal attempts touching the same user or
 * reference serialize on the row lock.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 * - github.com/shopspring/decimal: NUMERIC column values.
 */

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iabbakr/callondemand-backend/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository is the pgx-backed ledger store.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository backed by the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema applies the embedded DDL. All statements are idempotent.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}

// FindUserByID returns a wallet holder by id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, `
		SELECT id, email, balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindTransactionByReference returns the ledger record for a reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.QueryRow(ctx, `
		SELECT id, reference, user_id, amount, type, category, status, created_at, verified_at
		FROM transactions
		WHERE reference = $1
	`, reference).Scan(&t.ID, &t.Reference, &t.UserID, &t.Amount, &t.Type, &t.Category, &t.Status, &t.CreatedAt, &t.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreatePendingDeposit inserts the pending credit record for an initialized deposit.
func (r *PostgresRepository) CreatePendingDeposit(ctx context.Context, tx *domain.Transaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, reference, user_id, amount, type, category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tx.ID, tx.Reference, tx.UserID, tx.Amount, domain.TypeCredit, domain.CategoryDeposit, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to create pending deposit %s: %w", tx.Reference, err)
	}
	return nil
}

// SettleDeposit credits the balance and marks the transaction successful as
// one all-or-nothing operation. The FOR UPDATE read is the idempotency gate:
// once a row has left pending, every later delivery of the same reference
// observes the terminal status under the lock and backs out untouched.
func (r *PostgresRepository) SettleDeposit(ctx context.Context, reference string, amount decimal.Decimal) (*domain.Transaction, error) {
	dbtx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbtx.Rollback(ctx)

	var t domain.Transaction
	err = dbtx.QueryRow(ctx, `
		SELECT id, reference, user_id, amount, type, category, status, created_at, verified_at
		FROM transactions
		WHERE reference = $1
		FOR UPDATE
	`, reference).Scan(&t.ID, &t.Reference, &t.UserID, &t.Amount, &t.Type, &t.Category, &t.Status, &t.CreatedAt, &t.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if t.Status != domain.StatusPending {
		return nil, ErrTransactionSettled
	}

	tag, err := dbtx.Exec(ctx, `
		UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id = $2
	`, amount, t.UserID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}

	var verifiedAt time.Time
	err = dbtx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $1, amount = $2, verified_at = NOW()
		WHERE id = $3
		RETURNING verified_at
	`, domain.StatusSuccess, amount, t.ID).Scan(&verifiedAt)
	if err != nil {
		return nil, err
	}

	_, err = dbtx.Exec(ctx, `
		INSERT INTO wallet_entries (user_id, transaction_id, reference, direction, amount)
		VALUES ($1, $2, $3, $4, $5)
	`, t.UserID, t.ID, t.Reference, domain.TypeCredit, amount)
	if err != nil {
		return nil, err
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, err
	}

	t.Status = domain.StatusSuccess
	t.Amount = amount
	t.VerifiedAt = &verifiedAt
	return &t, nil
}

// MarkDepositFailed moves a pending deposit to failed. The status guard in
// the WHERE clause keeps terminal states terminal.
func (r *PostgresRepository) MarkDepositFailed(ctx context.Context, reference string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET status = $1, verified_at = NOW()
		WHERE reference = $2 AND status = $3
	`, domain.StatusFailed, reference, domain.StatusPending)
	return err
}

// WithdrawForPayout performs the read-check-debit-payout-record sequence
// under a single row lock. The payout callback runs while the store
// transaction is open; if it returns an error the rollback discards the
// debit, so the external transfer's success is a precondition for the local
// debit becoming durable.
func (r *PostgresRepository) WithdrawForPayout(ctx context.Context, tx *domain.Transaction, payout func(ctx context.Context) error) error {
	dbtx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbtx.Rollback(ctx)

	var balance decimal.Decimal
	err = dbtx.QueryRow(ctx, `
		SELECT balance FROM users WHERE id = $1 FOR UPDATE
	`, tx.UserID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if balance.LessThan(tx.Amount) {
		return ErrInsufficientFunds
	}

	_, err = dbtx.Exec(ctx, `
		UPDATE users SET balance = balance - $1, updated_at = NOW() WHERE id = $2
	`, tx.Amount, tx.UserID)
	if err != nil {
		return err
	}

	if err := payout(ctx); err != nil {
		return err
	}

	_, err = dbtx.Exec(ctx, `
		INSERT INTO transactions (id, reference, user_id, amount, type, category, status, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, tx.ID, tx.Reference, tx.UserID, tx.Amount, tx.Type, tx.Category, tx.Status)
	if err != nil {
		return err
	}

	_, err = dbtx.Exec(ctx, `
		INSERT INTO wallet_entries (user_id, transaction_id, reference, direction, amount)
		VALUES ($1, $2, $3, $4, $5)
	`, tx.UserID, tx.ID, tx.Reference, domain.TypeDebit, tx.Amount)
	if err != nil {
		return err
	}

	return dbtx.Commit(ctx)
}

// ListPendingDeposits returns pending credits created before the cutoff.
func (r *PostgresRepository) ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, reference, user_id, amount, type, category, status, created_at, verified_at
		FROM transactions
		WHERE status = $1 AND type = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`, domain.StatusPending, domain.TypeCredit, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactionsByUserID returns the user's ledger records, newest first.
func (r *PostgresRepository) ListTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, reference, user_id, amount, type, category, status, created_at, verified_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.Reference, &t.UserID, &t.Amount, &t.Type, &t.Category, &t.Status, &t.CreatedAt, &t.VerifiedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
