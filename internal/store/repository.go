/**
 * @description
 * This file defines the `Repository` interface, the contract for all ledger
 * store access required by the backend. The interface decouples the wallet
 * business logic from the PostgreSQL implementation so the reconciler and
 * the withdrawal orchestrator can be tested against stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Major-unit money amounts.
 * - internal/domain: The ledger domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iabbakr/callondemand-backend/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrTransactionSettled is returned when a settlement is attempted on a
	// transaction already in a terminal state. It is the idempotency gate:
	// callers treat it as "nothing to do", never as a failure.
	ErrTransactionSettled = errors.New("transaction already settled")
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// FindUserByID returns the wallet holder or ErrUserNotFound.
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)

	// FindTransactionByReference returns the ledger record for a reference
	// or ErrTransactionNotFound.
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)

	// CreatePendingDeposit persists the pending credit record written when a
	// deposit is initialized, ahead of the gateway webhook.
	CreatePendingDeposit(ctx context.Context, tx *domain.Transaction) error

	// SettleDeposit atomically credits the user's balance by the verified
	// amount, moves the transaction to success, and appends the wallet
	// history entry. The status check and the mutation run under one row
	// lock so concurrent deliveries of the same reference credit at most
	// once. Returns ErrTransactionNotFound, ErrTransactionSettled or
	// ErrUserNotFound without mutating anything.
	SettleDeposit(ctx context.Context, reference string, amount decimal.Decimal) (*domain.Transaction, error)

	// MarkDepositFailed moves a pending deposit to failed. Terminal states
	// are left untouched.
	MarkDepositFailed(ctx context.Context, reference string) error

	// WithdrawForPayout runs the whole withdrawal as one atomic operation:
	// lock the user row, check funds, debit, invoke the payout callback
	// while the store transaction is still open, record the debit
	// transaction and history entry, then commit. A payout error aborts the
	// operation so the local debit never becomes durable without it.
	WithdrawForPayout(ctx context.Context, tx *domain.Transaction, payout func(ctx context.Context) error) error

	// ListPendingDeposits returns pending credit transactions created before
	// the cutoff, oldest first, for the reconciliation sweep.
	ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error)

	// ListTransactionsByUserID returns the user's ledger records, newest first.
	ListTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, error)
}
