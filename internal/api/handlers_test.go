package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iabbakr/callondemand-backend/internal/app"
	"github.com/iabbakr/callondemand-backend/internal/domain"
	"github.com/iabbakr/callondemand-backend/internal/store"
	"github.com/iabbakr/callondemand-backend/pkg/paystack"
)

const apiTestSecret = "sk_test_handlers"

type apiRepoStub struct {
	store.Repository

	balance     decimal.Decimal
	settleCalls int
	payoutCalls int

	settleErr   error
	withdrawErr error
}

func (s *apiRepoStub) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "missing" {
		return nil, store.ErrUserNotFound
	}
	return &domain.User{ID: userID, Balance: s.balance}, nil
}

func (s *apiRepoStub) SettleDeposit(ctx context.Context, reference string, amount decimal.Decimal) (*domain.Transaction, error) {
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	s.settleCalls++
	s.balance = s.balance.Add(amount)
	return &domain.Transaction{Reference: reference, UserID: "user-1", Amount: amount}, nil
}

func (s *apiRepoStub) WithdrawForPayout(ctx context.Context, tx *domain.Transaction, payout func(ctx context.Context) error) error {
	if s.withdrawErr != nil {
		return s.withdrawErr
	}
	if s.balance.LessThan(tx.Amount) {
		return store.ErrInsufficientFunds
	}
	s.payoutCalls++
	if err := payout(ctx); err != nil {
		return err
	}
	s.balance = s.balance.Sub(tx.Amount)
	return nil
}

type apiGatewayStub struct {
	verifyStatus string
	transferErr  error
}

func (g *apiGatewayStub) InitializeTransaction(ctx context.Context, email, reference string, amountMinor int64) (*paystack.InitializeData, error) {
	return &paystack.InitializeData{Reference: reference, AuthorizationURL: "https://checkout.example/" + reference}, nil
}

func (g *apiGatewayStub) VerifyTransaction(ctx context.Context, reference string) (*paystack.VerifyData, error) {
	return &paystack.VerifyData{Status: g.verifyStatus, Reference: reference, Amount: 10000}, nil
}

func (g *apiGatewayStub) InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amountMinor int64) (*paystack.TransferData, error) {
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	return &paystack.TransferData{TransferCode: "TRF_api", Reference: reference, Status: "pending", Amount: amountMinor}, nil
}

func newTestHandlers(repo *apiRepoStub, gateway *apiGatewayStub) *Handlers {
	svc := app.NewService(repo, gateway, nil, apiTestSecret, "test.events", time.Second)
	return NewHandlers(svc, nil, nil, nil)
}

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestDepositWebhookHandler_Always200(t *testing.T) {
	repo := &apiRepoStub{balance: decimal.NewFromInt(500)}
	h := newTestHandlers(repo, &apiGatewayStub{verifyStatus: "success"})

	body := []byte(`{"event":"charge.success","data":{"reference":"dep_web_1"}}`)

	cases := []struct {
		name      string
		signature string
	}{
		{name: "valid signature", signature: signWebhookBody(apiTestSecret, body)},
		{name: "bad signature", signature: "deadbeef"},
		{name: "missing signature", signature: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/deposit", bytes.NewReader(body))
			if tc.signature != "" {
				req.Header.Set("x-paystack-signature", tc.signature)
			}
			rec := httptest.NewRecorder()

			h.DepositWebhookHandler(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if rec.Body.String() != "ok" {
				t.Fatalf("expected plain ok body, got %q", rec.Body.String())
			}
		})
	}

	if repo.settleCalls != 1 {
		t.Fatalf("expected exactly one settlement from the validly signed delivery, got %d", repo.settleCalls)
	}
}

func TestWithdrawHandler_Success(t *testing.T) {
	repo := &apiRepoStub{balance: decimal.NewFromInt(600)}
	h := newTestHandlers(repo, &apiGatewayStub{})

	body := `{"userId":"user-1","amount":"200","recipientCode":"RCP_123"}`
	req := httptest.NewRequest(http.MethodPost, "/withdraw", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.WithdrawHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !repo.balance.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected balance 400 after withdrawal, got %s", repo.balance)
	}

	var resp struct {
		Status bool                   `json:"status"`
		Data   *paystack.TransferData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal: %v", err)
	}
	if !resp.Status || resp.Data == nil || resp.Data.TransferCode != "TRF_api" {
		t.Fatalf("unexpected response payload: %s", rec.Body.String())
	}
}

func TestWithdrawHandler_InsufficientFundsIs400(t *testing.T) {
	repo := &apiRepoStub{balance: decimal.NewFromInt(100)}
	h := newTestHandlers(repo, &apiGatewayStub{})

	body := `{"userId":"user-1","amount":"200","recipientCode":"RCP_123"}`
	req := httptest.NewRequest(http.MethodPost, "/withdraw", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.WithdrawHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !repo.balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance must be untouched, got %s", repo.balance)
	}
}

func TestWithdrawHandler_MissingFieldsIs400(t *testing.T) {
	h := newTestHandlers(&apiRepoStub{balance: decimal.NewFromInt(100)}, &apiGatewayStub{})

	req := httptest.NewRequest(http.MethodPost, "/withdraw", strings.NewReader(`{"amount":"50"}`))
	rec := httptest.NewRecorder()

	h.WithdrawHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing userId/recipientCode, got %d", rec.Code)
	}
}

func TestWithdrawHandler_ProviderFailureSurfacesMessage(t *testing.T) {
	repo := &apiRepoStub{balance: decimal.NewFromInt(600)}
	gateway := &apiGatewayStub{transferErr: &paystack.APIError{StatusCode: 400, Message: "Transfer recipient not found"}}
	h := newTestHandlers(repo, gateway)

	body := `{"userId":"user-1","amount":"200","recipientCode":"RCP_bad"}`
	req := httptest.NewRequest(http.MethodPost, "/withdraw", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.WithdrawHandler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Transfer recipient not found") {
		t.Fatalf("expected provider message in response, got %s", rec.Body.String())
	}
	if !repo.balance.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("failed payout must not debit, balance=%s", repo.balance)
	}
}

func TestWalletBalanceHandler(t *testing.T) {
	h := newTestHandlers(&apiRepoStub{balance: decimal.RequireFromString("123.45")}, &apiGatewayStub{})

	req := httptest.NewRequest(http.MethodGet, "/wallet/balance?userId=user-1", nil)
	rec := httptest.NewRecorder()

	h.WalletBalanceHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "123.45") {
		t.Fatalf("expected balance in payload, got %s", rec.Body.String())
	}
}

func TestWalletBalanceHandler_UnknownUserIs400(t *testing.T) {
	h := newTestHandlers(&apiRepoStub{}, &apiGatewayStub{})

	req := httptest.NewRequest(http.MethodGet, "/wallet/balance?userId=missing", nil)
	rec := httptest.NewRecorder()

	h.WalletBalanceHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInitializeDepositHandler_Validation(t *testing.T) {
	h := newTestHandlers(&apiRepoStub{}, &apiGatewayStub{})

	req := httptest.NewRequest(http.MethodPost, "/deposit/initialize", strings.NewReader(`{"amount":"0","email":"a@b.c","reference":"dep_1"}`))
	rec := httptest.NewRecorder()

	h.InitializeDepositHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-positive amount, got %d", rec.Code)
	}
}
