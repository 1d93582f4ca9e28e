/**
 * @description
 * This file defines the core domain models for the callondemand backend.
 * These structs represent the wallet ledger entities and the data transfer
 * objects (DTOs) exchanged with the mobile client.
 *
 * @notes
 * - Balances and client-facing amounts are major currency units held in
 *   shopspring decimals. The payment gateway speaks minor units (kobo);
 *   conversion happens exactly once at each gateway boundary.
 * - A Transaction is identified by its `reference`: provider-assigned for
 *   deposits, generated locally for withdrawals.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction statuses. A transaction transitions pending -> success or
// pending -> failed and never leaves a terminal state.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction types.
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Transaction categories.
const (
	CategoryDeposit    = "deposit"
	CategoryWithdrawal = "withdrawal"
)

// User represents a wallet holder. Balance is mutated only by the deposit
// reconciler (credit) and the withdrawal orchestrator (debit).
type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is the central ledger record for any money movement.
// It maps directly to the `transactions` table.
type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	Reference  string          `json:"reference"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	VerifiedAt *time.Time      `json:"verified_at,omitempty"`
}

// WalletEntry is an immutable per-user history record appended inside the
// same store transaction as the balance mutation it mirrors.
type WalletEntry struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Direction     string          `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InitializeDepositRequest is the DTO for starting a card deposit.
type InitializeDepositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Email     string          `json:"email"`
	Reference string          `json:"reference"`
}

// WithdrawRequest is the DTO for moving wallet funds out to a bank account.
type WithdrawRequest struct {
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	RecipientCode string          `json:"recipientCode"`
}

// WalletEvent is the message payload published when the ledger settles a
// deposit or completes a withdrawal.
type WalletEvent struct {
	UserID    string          `json:"user_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
}
