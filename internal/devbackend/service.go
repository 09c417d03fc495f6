// Package devbackend implements the verification backend contract
// in-process. It exists so the service runs end-to-end in development and
// integration tests without a deployed backend; it is not the production
// backend.
package devbackend

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"signupd/internal/backend"
	"signupd/internal/models"
	"signupd/internal/services"
)

// Security limits for issued codes.
const (
	maxResendsPerWindow = 3
	resendWindow        = 10 * time.Minute
	maxConfirmAttempts  = 5
	defaultCodeTTL      = 5 * time.Minute
)

// CodeStore persists issued email codes. *repositories.EmailCodeRepository
// satisfies it; tests use an in-memory fake.
type CodeStore interface {
	Create(email, codeHash string, sentAt, expiresAt time.Time) (int64, error)
	GetLatestByEmail(email string) (*models.EmailCode, error)
	CountRecentSends(email string, since time.Time) (int, error)
	IncrementAttempts(id int64) (int, error)
	MarkConfirmed(id int64) error
	ExpireNow(id int64) error
}

// Service issues and checks email OTPs and validates phone proof tokens.
// Codes are stored bcrypt-hashed, a fresh code per send.
type Service struct {
	Store  CodeStore
	Mailer services.OTPMailer

	// ProofSecret verifies HMAC-signed proof tokens; Audience is the
	// expected aud claim.
	ProofSecret string
	Audience    string

	CodeTTL time.Duration
}

func NewService(store CodeStore, mailer services.OTPMailer, proofSecret, audience string) *Service {
	return &Service{
		Store:       store,
		Mailer:      mailer,
		ProofSecret: proofSecret,
		Audience:    audience,
		CodeTTL:     defaultCodeTTL,
	}
}

func (s *Service) generateCode() string {
	src := rand.NewSource(time.Now().UnixNano())
	rnd := rand.New(src)
	return fmt.Sprintf("%06d", rnd.Intn(1000000))
}

func (s *Service) ttl() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return defaultCodeTTL
}

// SendEmailOTP issues a new code for email, throttled per address.
func (s *Service) SendEmailOTP(_ context.Context, email string) (backend.Result, error) {
	since := time.Now().Add(-resendWindow)
	cnt, err := s.Store.CountRecentSends(email, since)
	if err != nil {
		return backend.Result{}, err
	}
	if cnt >= maxResendsPerWindow {
		return backend.Result{OK: false, Message: "too many requests, try again later"}, nil
	}

	code := s.generateCode()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return backend.Result{}, fmt.Errorf("bcrypt generate: %w", err)
	}

	sentAt := time.Now()
	if _, err := s.Store.Create(email, string(hash), sentAt, sentAt.Add(s.ttl())); err != nil {
		return backend.Result{}, err
	}

	if s.Mailer != nil {
		if err := s.Mailer.SendOTPEmail(email, code, s.ttl()); err != nil {
			return backend.Result{OK: false, Message: "failed to deliver the code"}, nil
		}
	} else {
		log.Printf("[devbackend][send] email=%s code=%s (no mailer)", email, code)
	}

	log.Printf("[devbackend][send] ok: email=%s", email)
	return backend.Result{OK: true}, nil
}

// VerifyEmailOTP checks code against the latest send for email, with TTL
// and attempt limits.
func (s *Service) VerifyEmailOTP(_ context.Context, email, code string) (backend.Result, error) {
	ec, err := s.Store.GetLatestByEmail(email)
	if err != nil {
		return backend.Result{}, err
	}
	if ec == nil || ec.Confirmed {
		return backend.Result{OK: false, Message: "invalid code"}, nil
	}
	if time.Now().After(ec.ExpiresAt) {
		return backend.Result{OK: false, Message: "code expired, please request a new one"}, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ec.CodeHash), []byte(code)); err != nil {
		attempts, incErr := s.Store.IncrementAttempts(ec.ID)
		if incErr != nil {
			return backend.Result{}, incErr
		}
		if attempts >= maxConfirmAttempts {
			_ = s.Store.ExpireNow(ec.ID)
			return backend.Result{OK: false, Message: "too many attempts, code expired"}, nil
		}
		return backend.Result{OK: false, Message: "invalid code"}, nil
	}

	if err := s.Store.MarkConfirmed(ec.ID); err != nil {
		return backend.Result{}, err
	}
	log.Printf("[devbackend][verify] ok: email=%s", email)
	return backend.Result{OK: true}, nil
}

// VerifyPhoneProof accepts an HMAC-signed proof token whose aud claim
// matches the configured audience.
func (s *Service) VerifyPhoneProof(_ context.Context, email, proofToken string) (backend.Result, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(proofToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(s.ProofSecret), nil
	})
	if err != nil || !token.Valid {
		return backend.Result{OK: false, Message: "invalid proof token"}, nil
	}

	aud, _ := claims.GetAudience()
	matched := false
	for _, a := range aud {
		if a == s.Audience {
			matched = true
			break
		}
	}
	if !matched {
		// Phrased so the controller's staleness classification picks the
		// aud mismatch up.
		return backend.Result{OK: false, Message: "proof token aud mismatch"}, nil
	}
	if v, ok := claims["phone_number"]; !ok || v == "" {
		return backend.Result{OK: false, Message: "proof token missing phone number"}, nil
	}

	log.Printf("[devbackend][proof] ok: email=%s", email)
	return backend.Result{OK: true}, nil
}
