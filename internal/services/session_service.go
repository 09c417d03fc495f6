package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"signupd/internal/models"
	"signupd/internal/utils"
	"signupd/internal/verification"
)

var (
	ErrSessionNotFound = errors.New("signup session not found")
	ErrSessionExpired  = errors.New("signup session expired")
)

const defaultSessionTTL = 30 * time.Minute

// SessionClaims is the JWT payload for a signup session token.
type SessionClaims struct {
	SessionID string `json:"session_id"`
	Tenant    string `json:"tenant"`
	jwt.RegisteredClaims
}

// SessionService owns the in-memory registry of signup sessions, one
// verification controller per session. Sessions are scoped to one signup
// and swept after their TTL.
type SessionService struct {
	backend  verification.Backend
	provider verification.PhoneProvider
	audit    *AuditService

	jwtSecret []byte
	ttl       time.Duration

	mu       sync.Mutex
	sessions map[string]*models.SignupSession

	stop chan struct{}
	once sync.Once
}

func NewSessionService(
	b verification.Backend,
	p verification.PhoneProvider,
	audit *AuditService,
	jwtSecret string,
	ttl time.Duration,
) *SessionService {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	s := &SessionService{
		backend:   b,
		provider:  p,
		audit:     audit,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		sessions:  make(map[string]*models.SignupSession),
		stop:      make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Start creates a session with its own controller and returns it together
// with a signed bearer token for the follow-up verification calls.
func (s *SessionService) Start(tenant, email string) (*models.SignupSession, string, error) {
	id, err := utils.NewSessionID(16)
	if err != nil {
		return nil, "", err
	}

	var rec verification.Recorder
	if s.audit != nil {
		rec = s.audit.ForSession(id)
	}
	now := time.Now()
	sess := &models.SignupSession{
		ID:         id,
		Tenant:     tenant,
		Email:      email,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		Controller: verification.NewController(s.backend, s.provider, rec),
	}

	token, err := s.issueToken(sess)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Printf("[session][start] id=%s tenant=%s", id, tenant)
	return sess, token, nil
}

// Get returns a live session or a not-found/expired error.
func (s *SessionService) Get(id string) (*models.SignupSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(sess.ExpiresAt) {
		s.Remove(id)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Remove tears the session down, resetting its controller so any phone
// challenge is invalidated.
func (s *SessionService) Remove(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.Controller.Reset()
		log.Printf("[session][remove] id=%s", id)
	}
}

// ParseToken validates a session bearer token and returns its claims.
func (s *SessionService) ParseToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrSessionNotFound
	}
	return claims, nil
}

// ParseTokenFields adapts ParseToken to the middleware's signature.
func (s *SessionService) ParseTokenFields(tokenStr string) (string, string, error) {
	claims, err := s.ParseToken(tokenStr)
	if err != nil {
		return "", "", err
	}
	return claims.SessionID, claims.Tenant, nil
}

func (s *SessionService) issueToken(sess *models.SignupSession) (string, error) {
	claims := &SessionClaims{
		SessionID: sess.ID,
		Tenant:    sess.Tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.jwtSecret)
}

// Stop halts the background sweeper.
func (s *SessionService) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *SessionService) sweep() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			var expired []string
			s.mu.Lock()
			for id, sess := range s.sessions {
				if now.After(sess.ExpiresAt) {
					expired = append(expired, id)
				}
			}
			s.mu.Unlock()
			for _, id := range expired {
				s.Remove(id)
			}
		}
	}
}
