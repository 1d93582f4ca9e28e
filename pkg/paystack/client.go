/**
 * @description
 * This package provides a client for the Paystack payment gateway. It
 * encapsulates authenticated HTTP requests to Paystack's endpoints, request
 * body construction, response envelope decoding, and webhook signature
 * verification.
 *
 * Amounts cross this boundary in minor units (kobo), matching the gateway's
 * API contract.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha512, encoding/hex: Webhook signature checks.
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */

package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production Paystack API host.
const DefaultBaseURL = "https://api.paystack.co"

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error surfaced by the Paystack API. Message carries
// the provider's human-readable explanation.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error: %s", e.Message)
	}
	return fmt.Sprintf("paystack api error: status %d", e.StatusCode)
}

// envelope is the wrapper Paystack puts around every response.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeData is returned when a transaction is initialized.
type InitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyData is the authoritative record for a transaction reference.
type VerifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"` // minor units
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// ResolveData is the result of a bank account resolution.
type ResolveData struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankID        int    `json:"bank_id"`
}

// TransferData is the payout confirmation for an initiated transfer.
type TransferData struct {
	ID           int64  `json:"id"`
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"` // minor units
	Currency     string `json:"currency"`
}

// RecipientData is the saved transfer recipient for a bank account.
type RecipientData struct {
	RecipientCode string `json:"recipient_code"`
	Type          string `json:"type"`
	Name          string `json:"name"`
}

// InitializeTransaction starts a card charge for the given email and amount.
func (c *Client) InitializeTransaction(ctx context.Context, email, reference string, amountMinor int64) (*InitializeData, error) {
	payload := map[string]interface{}{
		"email":     email,
		"amount":    amountMinor,
		"reference": reference,
	}
	var data InitializeData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// VerifyTransaction fetches the authoritative record for a reference.
// Webhook payloads are never trusted for amount or status; this call is.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyData, error) {
	var data VerifyData
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ResolveAccount resolves a bank account number to an account name.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolveData, error) {
	var data ResolveData
	path := fmt.Sprintf("/bank/resolve?account_number=%s&bank_code=%s",
		url.QueryEscape(accountNumber), url.QueryEscape(bankCode))
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// CreateTransferRecipient registers a bank account as a payout recipient.
func (c *Client) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*RecipientData, error) {
	payload := map[string]interface{}{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	}
	var data RecipientData
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// InitiateTransfer moves funds from the Paystack balance pool out to a
// saved recipient.
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amountMinor int64) (*TransferData, error) {
	payload := map[string]interface{}{
		"source":    "balance",
		"recipient": recipientCode,
		"reference": reference,
		"reason":    reason,
		"amount":    amountMinor,
	}
	var data TransferData
	if err := c.do(ctx, http.MethodPost, "/transfer", payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// do executes a request against the Paystack API and decodes the envelope.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal paystack request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute paystack request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode paystack response data: %w", err)
		}
	}
	return nil
}

// VerifyWebhookSignature reports whether the signature header matches the
// HMAC-SHA512 of the raw, unparsed body under the shared secret. The body
// must be the exact bytes received on the wire; re-serializing the parsed
// payload breaks the signature.
func VerifyWebhookSignature(secret string, rawBody []byte, signatureHeader string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
