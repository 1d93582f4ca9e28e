package app

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iabbakr/callondemand-backend/internal/domain"
	"github.com/iabbakr/callondemand-backend/internal/store"
	"github.com/iabbakr/callondemand-backend/pkg/paystack"
)

// withdrawRepoStub mirrors the store's transaction semantics: the debit and
// the recorded transaction become durable only when the payout callback
// returns nil, otherwise nothing changes.
type withdrawRepoStub struct {
	store.Repository

	userExists bool
	balance    decimal.Decimal
	recorded   []*domain.Transaction
	pending    []*domain.Transaction
}

func (s *withdrawRepoStub) WithdrawForPayout(ctx context.Context, tx *domain.Transaction, payout func(ctx context.Context) error) error {
	if !s.userExists {
		return store.ErrUserNotFound
	}
	if s.balance.LessThan(tx.Amount) {
		return store.ErrInsufficientFunds
	}
	if err := payout(ctx); err != nil {
		return err
	}
	s.balance = s.balance.Sub(tx.Amount)
	s.recorded = append(s.recorded, tx)
	return nil
}

func (s *withdrawRepoStub) CreatePendingDeposit(ctx context.Context, tx *domain.Transaction) error {
	s.pending = append(s.pending, tx)
	return nil
}

type withdrawGatewayStub struct {
	transferData *paystack.TransferData
	transferErr  error

	transferCalls  int
	lastReference  string
	lastAmount     int64
	lastRecipient  string
	initializeData *paystack.InitializeData
	initializeErr  error
}

func (g *withdrawGatewayStub) InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amountMinor int64) (*paystack.TransferData, error) {
	g.transferCalls++
	g.lastReference = reference
	g.lastAmount = amountMinor
	g.lastRecipient = recipientCode
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	if g.transferData != nil {
		return g.transferData, nil
	}
	return &paystack.TransferData{TransferCode: "TRF_ok", Reference: reference, Status: "success", Amount: amountMinor}, nil
}

func (g *withdrawGatewayStub) VerifyTransaction(ctx context.Context, reference string) (*paystack.VerifyData, error) {
	return nil, errors.New("not implemented")
}

func (g *withdrawGatewayStub) InitializeTransaction(ctx context.Context, email, reference string, amountMinor int64) (*paystack.InitializeData, error) {
	if g.initializeErr != nil {
		return nil, g.initializeErr
	}
	if g.initializeData != nil {
		return g.initializeData, nil
	}
	return &paystack.InitializeData{Reference: reference, AccessCode: "ac_test"}, nil
}

func newWithdrawService(repo *withdrawRepoStub, gateway *withdrawGatewayStub) *Service {
	return NewService(repo, gateway, nil, "sk_test", "test.events", time.Second)
}

var withdrawalReferencePattern = regexp.MustCompile(`^WITHDRAW-\d+-[0-9a-f]{8}$`)

func TestWithdraw_Success(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true, balance: decimal.NewFromInt(600)}
	gateway := &withdrawGatewayStub{}
	svc := newWithdrawService(repo, gateway)

	result, err := svc.Withdraw(context.Background(), "user-1", decimal.NewFromInt(200), "RCP_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Status != "success" {
		t.Fatalf("expected gateway payout confirmation, got %+v", result)
	}

	if !repo.balance.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected balance 400 after withdrawal, got %s", repo.balance)
	}
	if len(repo.recorded) != 1 {
		t.Fatalf("expected one debit transaction recorded, got %d", len(repo.recorded))
	}
	tx := repo.recorded[0]
	if tx.Type != domain.TypeDebit || tx.Status != domain.StatusSuccess || tx.Category != domain.CategoryWithdrawal {
		t.Fatalf("unexpected transaction record: %+v", tx)
	}
	if !withdrawalReferencePattern.MatchString(tx.Reference) {
		t.Fatalf("unexpected reference format: %s", tx.Reference)
	}
	if gateway.lastAmount != 20000 {
		t.Fatalf("expected payout of 20000 minor units, got %d", gateway.lastAmount)
	}
	if gateway.lastRecipient != "RCP_123" {
		t.Fatalf("expected recipient RCP_123, got %s", gateway.lastRecipient)
	}
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true, balance: decimal.NewFromInt(100)}
	gateway := &withdrawGatewayStub{}
	svc := newWithdrawService(repo, gateway)

	_, err := svc.Withdraw(context.Background(), "user-1", decimal.NewFromInt(200), "RCP_123")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !repo.balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance unchanged at 100, got %s", repo.balance)
	}
	if len(repo.recorded) != 0 {
		t.Fatalf("expected no transaction recorded, got %d", len(repo.recorded))
	}
	if gateway.transferCalls != 0 {
		t.Fatalf("expected no payout attempt, got %d", gateway.transferCalls)
	}
}

func TestWithdraw_UserNotFound(t *testing.T) {
	repo := &withdrawRepoStub{userExists: false}
	gateway := &withdrawGatewayStub{}
	svc := newWithdrawService(repo, gateway)

	_, err := svc.Withdraw(context.Background(), "ghost", decimal.NewFromInt(50), "RCP_123")
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if gateway.transferCalls != 0 {
		t.Fatalf("expected no payout attempt, got %d", gateway.transferCalls)
	}
}

func TestWithdraw_PayoutFailureLeavesBalanceUntouched(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true, balance: decimal.NewFromInt(600)}
	gateway := &withdrawGatewayStub{transferErr: errors.New("transfer rejected")}
	svc := newWithdrawService(repo, gateway)

	_, err := svc.Withdraw(context.Background(), "user-1", decimal.NewFromInt(200), "RCP_123")
	if err == nil {
		t.Fatal("expected payout failure to surface")
	}
	if !repo.balance.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected balance unchanged at 600, got %s", repo.balance)
	}
	if len(repo.recorded) != 0 {
		t.Fatalf("expected no transaction recorded, got %d", len(repo.recorded))
	}
}

func TestWithdraw_RejectsNonPositiveAmounts(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true, balance: decimal.NewFromInt(600)}
	gateway := &withdrawGatewayStub{}
	svc := newWithdrawService(repo, gateway)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := svc.Withdraw(context.Background(), "user-1", amount, "RCP_123"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if gateway.transferCalls != 0 {
		t.Fatalf("expected no payout attempt, got %d", gateway.transferCalls)
	}
}

func TestWithdraw_GeneratesUniqueReferences(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true, balance: decimal.NewFromInt(1000)}
	gateway := &withdrawGatewayStub{}
	svc := newWithdrawService(repo, gateway)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		if _, err := svc.Withdraw(context.Background(), "user-1", decimal.NewFromInt(10), "RCP_123"); err != nil {
			t.Fatalf("withdrawal %d failed: %v", i+1, err)
		}
	}
	for _, tx := range repo.recorded {
		if seen[tx.Reference] {
			t.Fatalf("duplicate withdrawal reference generated: %s", tx.Reference)
		}
		seen[tx.Reference] = true
	}
}

func TestInitializeDeposit_PersistsPendingRecord(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true}
	gateway := &withdrawGatewayStub{}
	svc := newWithdrawService(repo, gateway)

	req := domain.InitializeDepositRequest{
		Amount:    decimal.NewFromInt(100),
		Email:     "user@example.com",
		Reference: "dep_42",
	}
	data, err := svc.InitializeDeposit(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Reference != "dep_42" {
		t.Fatalf("expected gateway payload for dep_42, got %+v", data)
	}
	if len(repo.pending) != 1 {
		t.Fatalf("expected one pending record, got %d", len(repo.pending))
	}
	p := repo.pending[0]
	if p.Status != domain.StatusPending || p.Type != domain.TypeCredit || p.UserID != "user-1" {
		t.Fatalf("unexpected pending record: %+v", p)
	}
}

func TestInitializeDeposit_GatewayFailureSkipsPendingRecord(t *testing.T) {
	repo := &withdrawRepoStub{userExists: true}
	gateway := &withdrawGatewayStub{initializeErr: errors.New("gateway down")}
	svc := newWithdrawService(repo, gateway)

	req := domain.InitializeDepositRequest{
		Amount:    decimal.NewFromInt(100),
		Email:     "user@example.com",
		Reference: "dep_43",
	}
	if _, err := svc.InitializeDeposit(context.Background(), "user-1", req); err == nil {
		t.Fatal("expected gateway failure to surface")
	}
	if len(repo.pending) != 0 {
		t.Fatalf("expected no pending record after gateway failure, got %d", len(repo.pending))
	}
}
