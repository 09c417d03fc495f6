package phone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider error codes as reported by the identity toolkit API.
type ErrorCode string

const (
	CodeInvalidCode       ErrorCode = "INVALID_CODE"
	CodeSessionExpired    ErrorCode = "SESSION_EXPIRED"
	CodeInvalidAPIKey     ErrorCode = "INVALID_API_KEY"
	CodeBillingNotEnabled ErrorCode = "BILLING_NOT_ENABLED"
	CodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	CodeUnknown           ErrorCode = "UNKNOWN"
)

// Error is a provider-level failure with its upstream code preserved.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("phone provider: %s: %s", e.Code, e.Message)
}

// teardownDelay gives the provider time to release a challenge container
// before a new one is initialized. Re-initializing too quickly makes the
// provider report the challenge as already rendered.
const teardownDelay = 100 * time.Millisecond

const defaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// challenge is the human-verification artifact required before an SMS send.
type challenge struct {
	token  string
	active bool
}

// ChallengeFunc produces a solved challenge token. In a browser this is the
// invisible captcha widget; server-side callers supply their own source.
type ChallengeFunc func(ctx context.Context) (string, error)

// Client talks to the phone identity provider. A Client owns at most one
// live challenge at a time; RequestCode tears down the previous one before
// initializing the next.
type Client struct {
	APIKey  string
	BaseURL string
	DryRun  bool

	// DryRunSecret signs dry-run proof tokens so the dev backend can
	// validate them like real ones.
	DryRunSecret string
	Audience     string

	ChallengeFn ChallengeFunc
	HTTPClient  *http.Client

	mu      sync.Mutex
	current *challenge
}

func NewClient(apiKey string, dryRun bool) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		DryRun:     dryRun,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Session is the handle returned after an SMS send; it is required to
// confirm the code and obtain a proof token.
type Session struct {
	client      *Client
	sessionInfo string
	phone       string
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) createChallenge(ctx context.Context) (*challenge, error) {
	if c.DryRun || c.ChallengeFn == nil {
		return &challenge{token: "dry-run-challenge", active: true}, nil
	}
	token, err := c.ChallengeFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("challenge init: %w", err)
	}
	return &challenge{token: token, active: true}, nil
}

// invalidateChallenge is best-effort and safe to call twice.
func (c *Client) invalidateChallenge(ch *challenge) {
	if ch == nil || !ch.active {
		return
	}
	ch.active = false
	ch.token = ""
}

// Teardown drops any pending challenge. Used when the caller abandons the
// phone flow (reset, stale session) without requesting a new code.
func (c *Client) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateChallenge(c.current)
	c.current = nil
}

// RequestCode sends an SMS code to fullPhone. Any prior challenge is torn
// down first, then after a short settle delay a fresh one is initialized;
// the provider errors on duplicate challenge containers otherwise.
func (c *Client) RequestCode(ctx context.Context, fullPhone string) (*Session, error) {
	c.mu.Lock()
	c.invalidateChallenge(c.current)
	c.current = nil
	c.mu.Unlock()

	select {
	case <-time.After(teardownDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ch, err := c.createChallenge(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.current = ch
	c.mu.Unlock()

	if c.DryRun {
		log.Printf("[phone][dry-run] send code to=%s", fullPhone)
		return &Session{client: c, sessionInfo: "dry-run-session", phone: fullPhone}, nil
	}

	body := map[string]string{
		"phoneNumber":    fullPhone,
		"recaptchaToken": ch.token,
	}
	var out struct {
		SessionInfo string `json:"sessionInfo"`
	}
	if err := c.post(ctx, "accounts:sendVerificationCode", body, &out); err != nil {
		c.Teardown()
		return nil, err
	}
	if out.SessionInfo == "" {
		c.Teardown()
		return nil, &Error{Code: CodeUnknown, Message: "empty sessionInfo in send response"}
	}
	return &Session{client: c, sessionInfo: out.SessionInfo, phone: fullPhone}, nil
}

// Confirm exchanges the SMS code for a proof token. Provider-side failures
// come back as *Error with the upstream code preserved.
func (s *Session) Confirm(ctx context.Context, code string) (string, error) {
	if s.client.DryRun {
		return s.client.dryRunProof(s.phone)
	}

	body := map[string]string{
		"sessionInfo": s.sessionInfo,
		"code":        code,
	}
	var out struct {
		IDToken string `json:"idToken"`
	}
	if err := s.client.post(ctx, "accounts:signInWithPhoneNumber", body, &out); err != nil {
		return "", err
	}
	if out.IDToken == "" {
		return "", &Error{Code: CodeUnknown, Message: "empty idToken in confirm response"}
	}
	return out.IDToken, nil
}

func (c *Client) post(ctx context.Context, method string, in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("phone provider marshal: %w", err)
	}
	url := fmt.Sprintf("%s/%s?key=%s", c.BaseURL, method, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("phone provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		return &Error{Code: mapErrorMessage(ae.Error.Message), Message: ae.Error.Message}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("phone provider parse: %w", err)
	}
	return nil
}

// mapErrorMessage matches the upstream error identifier. The API prefixes
// some messages with detail after a colon ("INVALID_CODE : ..."), so match
// on the leading token.
func mapErrorMessage(msg string) ErrorCode {
	head := msg
	if i := strings.IndexAny(msg, " :"); i > 0 {
		head = msg[:i]
	}
	switch ErrorCode(head) {
	case CodeInvalidCode, CodeSessionExpired, CodeInvalidAPIKey,
		CodeBillingNotEnabled, CodeQuotaExceeded:
		return ErrorCode(head)
	}
	if strings.Contains(msg, "API key not valid") {
		return CodeInvalidAPIKey
	}
	return CodeUnknown
}

// dryRunProof mints a signed stand-in proof token carrying the same claims
// the dev backend checks on real ones.
func (c *Client) dryRunProof(fullPhone string) (string, error) {
	secret := c.DryRunSecret
	if secret == "" {
		secret = "dry-run"
	}
	claims := jwt.MapClaims{
		"aud":          c.Audience,
		"phone_number": fullPhone,
		"exp":          time.Now().Add(5 * time.Minute).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("dry-run proof sign: %w", err)
	}
	return signed, nil
}
