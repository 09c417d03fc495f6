package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"signupd/internal/backend"
	"signupd/internal/middleware"
	"signupd/internal/services"
	"signupd/internal/verification"
)

type scriptedBackend struct {
	verifyEmailRes backend.Result
}

func (b *scriptedBackend) SendEmailOTP(context.Context, string) (backend.Result, error) {
	return backend.Result{OK: true}, nil
}
func (b *scriptedBackend) VerifyEmailOTP(context.Context, string, string) (backend.Result, error) {
	return b.verifyEmailRes, nil
}
func (b *scriptedBackend) VerifyPhoneProof(context.Context, string, string) (backend.Result, error) {
	return backend.Result{OK: true}, nil
}

type stubProvider struct{}

func (stubProvider) RequestCode(context.Context, string) (verification.PhoneSession, error) {
	return stubSession{}, nil
}
func (stubProvider) Teardown() {}

type stubSession struct{}

func (stubSession) Confirm(context.Context, string) (string, error) { return "proof", nil }

func newTestRouter(b verification.Backend) (*gin.Engine, *services.SessionService) {
	gin.SetMode(gin.TestMode)
	sessions := services.NewSessionService(b, stubProvider{}, nil, "test-secret", time.Minute)

	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	sh := NewSignupHandler(sessions, nil)
	r.POST("/signup/session", sh.StartSession)
	r.Use(middleware.SessionAuthMiddleware(sessions.ParseTokenFields))
	r.GET("/signup/state", sh.GetState)
	r.GET("/signup/attempts", sh.GetAttempts)
	vh := NewVerifyHandler(sessions, nil)
	r.POST("/verify/email/send", vh.SendEmailCode)
	r.POST("/verify/email", vh.VerifyEmailCode)
	r.POST("/verify/phone/send", vh.SendPhoneCode)
	r.POST("/verify/phone", vh.VerifyPhoneCode)
	return r, sessions
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/signup/session", "", `{"tenant":"acme","email":"user@example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start session: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("bad start response: %s", w.Body.String())
	}
	return resp.Token
}

func TestVerifyRoutes_RequireToken(t *testing.T) {
	r, sessions := newTestRouter(&scriptedBackend{})
	defer sessions.Stop()

	w := doJSON(t, r, http.MethodPost, "/verify/email/send", "", `{}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGetAttempts_AuditDisabled(t *testing.T) {
	r, sessions := newTestRouter(&scriptedBackend{})
	defer sessions.Stop()
	token := startSession(t, r)

	w := doJSON(t, r, http.MethodGet, "/signup/attempts", token, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without an audit store, got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/signup/attempts", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}
}

func TestEmailFlowOverHTTP(t *testing.T) {
	b := &scriptedBackend{verifyEmailRes: backend.Result{OK: true}}
	r, sessions := newTestRouter(b)
	defer sessions.Stop()
	token := startSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/verify/email/send", token, `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	var state struct {
		Email struct {
			DialogOpen bool `json:"dialog_open"`
			Verified   bool `json:"verified"`
		} `json:"email"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if !state.Email.DialogOpen {
		t.Fatalf("dialog should open after send: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/verify/email", token, `{"code":"123456"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if !state.Email.Verified {
		t.Fatalf("expected verified: %s", w.Body.String())
	}
}

func TestEmailWrongCodeOverHTTP(t *testing.T) {
	b := &scriptedBackend{verifyEmailRes: backend.Result{OK: false, Message: "invalid code"}}
	r, sessions := newTestRouter(b)
	defer sessions.Stop()
	token := startSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/verify/email", token, `{"code":"000000"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Kind != string(verification.KindWrongCode) {
		t.Fatalf("expected wrong_code kind, got %s", w.Body.String())
	}
	if strings.Contains(resp.Error, "invalid code") {
		t.Fatalf("backend phrasing must not leak: %q", resp.Error)
	}
}

func TestPhoneSend_RequiresVerifiedEmail(t *testing.T) {
	r, sessions := newTestRouter(&scriptedBackend{verifyEmailRes: backend.Result{OK: true}})
	defer sessions.Stop()
	token := startSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/verify/phone/send", token, `{"phone":"+15551234567"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before email verifies, got %d", w.Code)
	}

	_ = doJSON(t, r, http.MethodPost, "/verify/email", token, `{"code":"123456"}`)
	w = doJSON(t, r, http.MethodPost, "/verify/phone/send", token, `{"phone":"+15551234567"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after email verifies, got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/verify/phone", token, `{"code":"111111"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("phone verify: %d %s", w.Code, w.Body.String())
	}
	var state struct {
		Phone struct {
			Verified bool `json:"verified"`
		} `json:"phone"`
		Completed bool `json:"completed"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if !state.Phone.Verified || !state.Completed {
		t.Fatalf("expected completed signup: %s", w.Body.String())
	}
}
