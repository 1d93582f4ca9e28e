/**
 * @description
 * This file contains the core business logic of the wallet backend. The
 * `Service` struct orchestrates money movement between the payment gateway
 * and the ledger store and is the only writer of user balances and
 * transaction statuses.
 *
 * Key features:
 * - Withdrawal orchestration: reserve funds, call the gateway payout, and
 *   record the outcome as a single atomic operation against the store.
 * - Dependency-injected collaborators (repository, gateway, event producer)
 *   so the core is testable in isolation.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: Withdrawal reference suffixes and row ids.
 * - github.com/shopspring/decimal: Major-unit money amounts.
 * - internal/domain, internal/store: Domain models and ledger access.
 * - pkg/paystack, pkg/rabbitmq: Gateway payloads and event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iabbakr/callondemand-backend/internal/domain"
	"github.com/iabbakr/callondemand-backend/internal/store"
	"github.com/iabbakr/callondemand-backend/pkg/paystack"
	"github.com/iabbakr/callondemand-backend/pkg/rabbitmq"
)

// ErrInvalidAmount is returned for non-positive withdrawal or deposit amounts.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// minorUnitFactor converts between the gateway's minor units and the major
// units held in the ledger.
var minorUnitFactor = decimal.NewFromInt(100)

// Gateway is the subset of the payment gateway used by the core flows.
// *paystack.Client satisfies it.
type Gateway interface {
	InitializeTransaction(ctx context.Context, email, reference string, amountMinor int64) (*paystack.InitializeData, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.VerifyData, error)
	InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amountMinor int64) (*paystack.TransferData, error)
}

// RateLimiter is the optional distributed limiter applied to bill purchases.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core wallet business logic.
type Service struct {
	repo          store.Repository
	gateway       Gateway
	producer      rabbitmq.Publisher
	webhookSecret string
	eventExchange string
	payoutTimeout time.Duration

	purchaseLimiter     RateLimiter
	purchaseLimitPerMin int
}

// NewService creates a new wallet service instance. The producer may be nil
// when no broker is configured.
func NewService(repo store.Repository, gateway Gateway, producer rabbitmq.Publisher, webhookSecret, eventExchange string, payoutTimeout time.Duration) *Service {
	if producer == nil {
		producer = rabbitmq.NoopPublisher{}
	}
	if payoutTimeout <= 0 {
		payoutTimeout = 30 * time.Second
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		producer:      producer,
		webhookSecret: webhookSecret,
		eventExchange: eventExchange,
		payoutTimeout: payoutTimeout,
	}
}

// SetPurchaseRateLimiter enables distributed rate limiting on bill purchases.
func (s *Service) SetPurchaseRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.purchaseLimiter = limiter
	s.purchaseLimitPerMin = limitPerMinute
}

// AllowPurchase consumes one rate-limit token for the user. Limiter outages
// fail open: a purchase is never blocked because Redis was unreachable.
func (s *Service) AllowPurchase(ctx context.Context, userID string) (allowed bool, retryAfterSeconds int) {
	if s.purchaseLimiter == nil || s.purchaseLimitPerMin <= 0 {
		return true, 0
	}
	count, retryAfter, err := s.purchaseLimiter.ConsumeRateLimit(ctx, "bill_purchase", userID, s.purchaseLimitPerMin, time.Minute)
	if err != nil {
		log.Printf("level=warn component=service msg=\"purchase rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return true, 0
	}
	if count > s.purchaseLimitPerMin {
		return false, retryAfter
	}
	return true, 0
}

// Withdraw moves wallet funds out to a bank recipient. The balance check,
// the debit, the gateway payout and the debit record execute as one atomic
// operation: if the payout call fails or times out, the store transaction
// aborts and the balance is untouched.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, recipientCode string) (*paystack.TransferData, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, store.ErrUserNotFound
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	reference := newWithdrawalReference(time.Now())
	// Withdrawals have no local pending state: the record is written as
	// success inside the same atomic operation as the debit, or not at all.
	txRecord := &domain.Transaction{
		ID:        uuid.New(),
		Reference: reference,
		UserID:    userID,
		Amount:    amount,
		Type:      domain.TypeDebit,
		Category:  domain.CategoryWithdrawal,
		Status:    domain.StatusSuccess,
	}

	var payoutResp *paystack.TransferData
	err := s.repo.WithdrawForPayout(ctx, txRecord, func(ctx context.Context) error {
		// Bounded timeout on the external call; a timeout aborts the store
		// transaction and must never be treated as success.
		payoutCtx, cancel := context.WithTimeout(ctx, s.payoutTimeout)
		defer cancel()

		resp, err := s.gateway.InitiateTransfer(payoutCtx, recipientCode, reference, "Wallet withdrawal", toMinorUnits(amount))
		if err != nil {
			// The lost-response case (payout durably initiated, response
			// never received) aborts the local debit while money may have
			// left the pool. Logged for manual reconciliation.
			if payoutCtx.Err() != nil {
				log.Printf("level=error component=service op=withdraw msg=\"payout call timed out; local debit aborted, provider state unknown\" reference=%s user_id=%s", reference, userID)
			}
			return err
		}
		payoutResp = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=service op=withdraw msg=\"withdrawal completed\" reference=%s user_id=%s amount=%s", reference, userID, amount.String())
	s.publishWalletEvent(ctx, rabbitmq.RouteWithdrawalCompleted, userID, reference, amount)

	return payoutResp, nil
}

// InitializeDeposit starts a card charge at the gateway and persists the
// pending credit record the webhook reconciler will later settle against.
func (s *Service) InitializeDeposit(ctx context.Context, userID string, req domain.InitializeDepositRequest) (*paystack.InitializeData, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	data, err := s.gateway.InitializeTransaction(ctx, req.Email, req.Reference, toMinorUnits(req.Amount))
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:        uuid.New(),
		Reference: req.Reference,
		UserID:    userID,
		Amount:    req.Amount,
		Type:      domain.TypeCredit,
		Category:  domain.CategoryDeposit,
		Status:    domain.StatusPending,
	}
	if err := s.repo.CreatePendingDeposit(ctx, tx); err != nil {
		// The charge exists at the gateway but has no local record; the
		// reconciler treats its eventual webhook as a logged no-op.
		log.Printf("level=error component=service op=initialize_deposit msg=\"pending record persist failed after gateway initialize\" reference=%s err=%v", req.Reference, err)
		return nil, err
	}

	return data, nil
}

// WalletBalance returns the user's current major-unit balance.
func (s *Service) WalletBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// ListTransactions returns the user's ledger records, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactionsByUserID(ctx, userID, limit, offset)
}

func (s *Service) publishWalletEvent(ctx context.Context, routingKey, userID, reference string, amount decimal.Decimal) {
	event := domain.WalletEvent{
		UserID:    userID,
		Reference: reference,
		Amount:    amount,
		Kind:      routingKey,
		Timestamp: time.Now().UTC(),
	}
	if err := s.producer.PublishWalletEvent(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"wallet event publish failed\" routing_key=%s reference=%s err=%v", routingKey, reference, err)
	}
}

// newWithdrawalReference builds a unique locally-generated transfer reference.
func newWithdrawalReference(now time.Time) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("WITHDRAW-%d-%s", now.UnixMilli(), suffix)
}

// toMinorUnits converts a major-unit amount to the gateway's minor units.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitFactor).IntPart()
}

// fromMinorUnits converts the gateway's minor units to a major-unit amount.
func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorUnitFactor)
}
