/**
 * @description
 * HTTP handlers for the wallet core: the deposit webhook, withdrawal,
 * deposit initialization/verification, and wallet reads.
 *
 * The webhook handler is deliberately asymmetric: the gateway is always
 * answered 200, whatever happens internally, because the gateway's delivery
 * retries plus the ledger's idempotency gate are the recovery mechanism and
 * a non-200 would only trigger redundant redelivery.
 *
 * @dependencies
 * - encoding/json, io, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Core service and models.
 * - pkg/paystack, pkg/vtpass, pkg/cloudinary: Provider clients.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/iabbakr/callondemand-backend/internal/app"
	"github.com/iabbakr/callondemand-backend/internal/domain"
	"github.com/iabbakr/callondemand-backend/internal/store"
	"github.com/iabbakr/callondemand-backend/pkg/cloudinary"
	"github.com/iabbakr/callondemand-backend/pkg/paystack"
	"github.com/iabbakr/callondemand-backend/pkg/vtpass"
)

// Handlers bundles the HTTP handlers with their dependencies.
type Handlers struct {
	service *app.Service
	gateway *paystack.Client
	bills   *vtpass.Client
	images  *cloudinary.Client
}

// NewHandlers creates the handler set.
func NewHandlers(service *app.Service, gateway *paystack.Client, bills *vtpass.Client, images *cloudinary.Client) *Handlers {
	return &Handlers{
		service: service,
		gateway: gateway,
		bills:   bills,
		images:  images,
	}
}

// DepositWebhookHandler receives signed charge notifications from the
// gateway. Always answers 200 with a short plain-text status.
func (h *Handlers) DepositWebhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("level=warn component=api msg=\"webhook body read failed\" err=%v", err)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}

	signature := r.Header.Get("x-paystack-signature")
	if err := h.service.HandleDepositWebhook(r.Context(), rawBody, signature); err != nil {
		// Logged inside the reconciler; the gateway still gets 200 so it
		// does not hammer us with redeliveries we cannot use.
		log.Printf("level=warn component=api msg=\"webhook processing incomplete\" err=%v", err)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// WithdrawHandler moves wallet funds out to a saved bank recipient.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.RecipientCode) == "" {
		writeError(w, http.StatusBadRequest, "userId and recipientCode are required")
		return
	}

	result, err := h.service.Withdraw(r.Context(), req.UserID, req.Amount, req.RecipientCode)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			writeError(w, http.StatusBadRequest, "insufficient balance for this withdrawal")
		case errors.Is(err, store.ErrUserNotFound):
			writeError(w, http.StatusBadRequest, "user not found")
		case errors.Is(err, app.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		default:
			writeError(w, http.StatusInternalServerError, providerMessage(err, "could not complete withdrawal"))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": result})
}

// InitializeDepositHandler starts a card charge for the authenticated user.
func (h *Handlers) InitializeDepositHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.InitializeDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Amount.IsPositive() || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Reference) == "" {
		writeError(w, http.StatusBadRequest, "amount, email and reference are required")
		return
	}

	userID := UserIDFromContext(r.Context())
	data, err := h.service.InitializeDeposit(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, "amount must be greater than zero")
			return
		}
		writeError(w, http.StatusInternalServerError, providerMessage(err, "could not initialize deposit"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": data})
}

// VerifyDepositHandler is a pass-through for client-side charge confirmation.
// It never mutates the ledger; settlement belongs to the webhook reconciler.
func (h *Handlers) VerifyDepositHandler(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	data, err := h.gateway.VerifyTransaction(r.Context(), reference)
	if err != nil {
		writeError(w, http.StatusInternalServerError, providerMessage(err, "could not verify transaction"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": data})
}

// WalletBalanceHandler returns the caller's current balance.
func (h *Handlers) WalletBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		userID = UserIDFromContext(r.Context())
	}

	balance, err := h.service.WalletBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusBadRequest, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"balance": balance}})
}

// ListTransactionsHandler returns the caller's ledger history, newest first.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		userID = UserIDFromContext(r.Context())
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": transactions})
}

// providerMessage unwraps a provider error envelope into a human-readable
// message, falling back to the generic one.
func providerMessage(err error, fallback string) string {
	var payErr *paystack.APIError
	if errors.As(err, &payErr) && payErr.Message != "" {
		return payErr.Message
	}
	var billErr *vtpass.APIError
	if errors.As(err, &billErr) && billErr.Description != "" {
		return billErr.Description
	}
	var imgErr *cloudinary.APIError
	if errors.As(err, &imgErr) && imgErr.Message != "" {
		return imgErr.Message
	}
	return fallback
}
