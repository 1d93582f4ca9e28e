/**
 * @description
 * This package provides a client for the Cloudinary image host. Uploads are
 * signed per Cloudinary's API contract: a SHA-1 digest over the sorted
 * request parameters concatenated with the API secret. Destroy supports the
 * old-image cleanup performed before replacing a user's photo.
 *
 * @dependencies
 * - crypto/sha1: Cloudinary mandates SHA-1 request signatures.
 * - mime/multipart: Upload bodies.
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */

package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the Cloudinary upload API.
type Client struct {
	CloudName  string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

// NewClient creates a new Cloudinary client for the given cloud.
func NewClient(cloudName, apiKey, apiSecret string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// UploadResult is the provider's record for a stored image.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// APIError represents an error envelope from Cloudinary.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cloudinary api error: %s", e.Message)
	}
	return fmt.Sprintf("cloudinary api error: status %d", e.StatusCode)
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload stores an image and returns the provider's record for it.
func (c *Client) Upload(ctx context.Context, file io.Reader, filename, folder string) (*UploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if folder != "" {
		params["folder"] = folder
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := mw.WriteField("api_key", c.APIKey); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.WriteField("signature", c.sign(params)); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.execute(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Destroy removes a previously uploaded image by public id. Used to clean up
// the old image before a replacement upload.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}

	form := make([]string, 0, len(params)+2)
	for k, v := range params {
		form = append(form, k+"="+v)
	}
	form = append(form, "api_key="+c.APIKey, "signature="+c.sign(params))

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/destroy", c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(strings.Join(form, "&")))
	if err != nil {
		return fmt.Errorf("failed to create destroy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.execute(req, nil)
}

func (c *Client) execute(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute cloudinary request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read cloudinary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && env.Error.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: env.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode cloudinary response: %w", err)
		}
	}
	return nil
}

// sign produces the SHA-1 signature Cloudinary expects: parameters sorted by
// name, joined as key=value with '&', with the API secret appended.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.APISecret))
	return hex.EncodeToString(sum[:])
}
