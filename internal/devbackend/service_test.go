package devbackend

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"signupd/internal/models"
)

// memStore keeps code rows in memory; same contract as the Postgres repo.
type memStore struct {
	mu   sync.Mutex
	rows []*models.EmailCode
	next int64
}

func (m *memStore) Create(email, codeHash string, sentAt, expiresAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.rows = append(m.rows, &models.EmailCode{
		ID: m.next, Email: email, CodeHash: codeHash,
		SentAt: sentAt, ExpiresAt: expiresAt,
	})
	return m.next, nil
}

func (m *memStore) GetLatestByEmail(email string) (*models.EmailCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].Email == email {
			cp := *m.rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CountRecentSends(email string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Email == email && !r.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) IncrementAttempts(id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Attempts++
			return r.Attempts, nil
		}
	}
	return 0, nil
}

func (m *memStore) MarkConfirmed(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Confirmed = true
		}
	}
	return nil
}

func (m *memStore) ExpireNow(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.ExpiresAt = time.Now()
		}
	}
	return nil
}

type capturingMailer struct {
	mu    sync.Mutex
	codes []string
}

func (c *capturingMailer) SendOTPEmail(_ string, code string, _ time.Duration) error {
	c.mu.Lock()
	c.codes = append(c.codes, code)
	c.mu.Unlock()
	return nil
}

func newTestService() (*Service, *memStore, *capturingMailer) {
	store := &memStore{}
	mailer := &capturingMailer{}
	return NewService(store, mailer, "proof-secret", "demo-project"), store, mailer
}

const addr = "user@example.com"

func TestSendAndVerifyEmailOTP(t *testing.T) {
	svc, _, mailer := newTestService()

	res, err := svc.SendEmailOTP(context.Background(), addr)
	if err != nil || !res.OK {
		t.Fatalf("send: res=%+v err=%v", res, err)
	}
	if len(mailer.codes) != 1 || len(mailer.codes[0]) != 6 {
		t.Fatalf("expected one 6-digit code, got %v", mailer.codes)
	}

	res, err = svc.VerifyEmailOTP(context.Background(), addr, mailer.codes[0])
	if err != nil || !res.OK {
		t.Fatalf("verify: res=%+v err=%v", res, err)
	}

	// A confirmed code cannot be replayed.
	res, _ = svc.VerifyEmailOTP(context.Background(), addr, mailer.codes[0])
	if res.OK {
		t.Fatalf("confirmed code must not verify twice")
	}
}

func TestVerifyEmailOTP_WrongCodeAndAttemptCap(t *testing.T) {
	svc, store, _ := newTestService()
	if _, err := svc.SendEmailOTP(context.Background(), addr); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < maxConfirmAttempts; i++ {
		res, err := svc.VerifyEmailOTP(context.Background(), addr, "000000")
		if err != nil || res.OK {
			t.Fatalf("attempt %d: res=%+v err=%v", i, res, err)
		}
	}
	// The attempt cap burned the code.
	row, _ := store.GetLatestByEmail(addr)
	if row.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected code expired after attempt cap")
	}
	res, _ := svc.VerifyEmailOTP(context.Background(), addr, "000000")
	if res.OK || !strings.Contains(res.Message, "expired") {
		t.Fatalf("expected expired message, got %+v", res)
	}
}

func TestSendEmailOTP_Throttled(t *testing.T) {
	svc, _, _ := newTestService()
	for i := 0; i < maxResendsPerWindow; i++ {
		if res, err := svc.SendEmailOTP(context.Background(), addr); err != nil || !res.OK {
			t.Fatalf("send %d: res=%+v err=%v", i, res, err)
		}
	}
	res, err := svc.SendEmailOTP(context.Background(), addr)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.OK {
		t.Fatalf("expected throttled send to fail")
	}
}

func TestVerifyEmailOTP_Expired(t *testing.T) {
	svc, store, _ := newTestService()
	hash, _ := bcrypt.GenerateFromPassword([]byte("123456"), bcrypt.MinCost)
	sent := time.Now().Add(-10 * time.Minute)
	_, _ = store.Create(addr, string(hash), sent, sent.Add(5*time.Minute))

	res, err := svc.VerifyEmailOTP(context.Background(), addr, "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.OK || !strings.Contains(res.Message, "expired") {
		t.Fatalf("expected expired failure, got %+v", res)
	}
}

func signProof(t *testing.T, secret, aud, phone string) string {
	t.Helper()
	claims := jwt.MapClaims{"aud": aud, "phone_number": phone, "exp": time.Now().Add(time.Minute).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestVerifyPhoneProof(t *testing.T) {
	svc, _, _ := newTestService()

	res, err := svc.VerifyPhoneProof(context.Background(), addr, signProof(t, "proof-secret", "demo-project", "+15551234567"))
	if err != nil || !res.OK {
		t.Fatalf("valid proof: res=%+v err=%v", res, err)
	}

	// Wrong audience: the message must trip the aud-mismatch heuristic.
	res, _ = svc.VerifyPhoneProof(context.Background(), addr, signProof(t, "proof-secret", "other-project", "+15551234567"))
	if res.OK || !strings.Contains(res.Message, "aud") {
		t.Fatalf("expected aud mismatch, got %+v", res)
	}

	// Bad signature.
	res, _ = svc.VerifyPhoneProof(context.Background(), addr, signProof(t, "wrong-secret", "demo-project", "+15551234567"))
	if res.OK {
		t.Fatalf("expected signature failure")
	}
}
