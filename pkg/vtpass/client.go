/**
 * @description
 * This package provides a thin client for the VTpass bill-payment
 * aggregator. The backend is a pure pass-through for bill purchases, so the
 * client forwards the caller's payload and returns the provider's JSON body
 * verbatim, surfacing the provider's response description on failure.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */

package vtpass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the VTpass live API host.
const DefaultBaseURL = "https://vtpass.com/api"

// Client is a client for the VTpass API.
type Client struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new VTpass API client.
func NewClient(baseURL, apiKey, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents a failed purchase or requery.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("vtpass api error: %s", e.Description)
	}
	return fmt.Sprintf("vtpass api error: status %d code %s", e.StatusCode, e.Code)
}

// responseProbe picks out just the fields needed to judge success; the full
// body is passed through to the caller untouched.
type responseProbe struct {
	Code                string `json:"code"`
	ResponseDescription string `json:"response_description"`
}

// Pay forwards a purchase payload to the aggregator and returns the
// provider's response body verbatim.
func (c *Client) Pay(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	return c.post(ctx, "/pay", payload)
}

// Requery fetches the status of a previously submitted purchase.
func (c *Client) Requery(ctx context.Context, requestID string) (json.RawMessage, error) {
	return c.post(ctx, "/requery", map[string]interface{}{"request_id": requestID})
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vtpass request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create vtpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("secret-key", c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vtpass request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vtpass response: %w", err)
	}

	var probe responseProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	// "000" is the aggregator's success code for both pay and requery.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || probe.Code != "000" {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Code:        probe.Code,
			Description: probe.ResponseDescription,
		}
	}

	return json.RawMessage(body), nil
}
