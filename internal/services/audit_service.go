package services

import (
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"signupd/internal/models"
	"signupd/internal/repositories"
	"signupd/internal/verification"
)

// AuditService records every submitted code and its outcome. Codes are
// hashed with bcrypt before they touch storage. Writes happen off the
// action path; a failed insert is logged, never surfaced.
type AuditService struct {
	Repo *repositories.VerificationAttemptRepository
}

func NewAuditService(repo *repositories.VerificationAttemptRepository) *AuditService {
	return &AuditService{Repo: repo}
}

// History returns the session's recorded attempts, oldest first. Nil when
// no store is configured.
func (s *AuditService) History(sessionID string) ([]models.VerificationAttempt, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListBySession(sessionID)
}

// ForSession returns a recorder bound to one signup session, suitable for
// handing to its controller.
func (s *AuditService) ForSession(sessionID string) verification.Recorder {
	return &sessionRecorder{svc: s, sessionID: sessionID}
}

type sessionRecorder struct {
	svc       *AuditService
	sessionID string
}

func (r *sessionRecorder) RecordAttempt(channel verification.Channel, code, outcome string) {
	if r.svc == nil || r.svc.Repo == nil {
		log.Printf("[audit] session=%s channel=%s outcome=%s (no store)", r.sessionID, channel, outcome)
		return
	}
	go func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[audit] bcrypt failed: session=%s err=%v", r.sessionID, err)
			return
		}
		_, err = r.svc.Repo.Create(&models.VerificationAttempt{
			SessionID: r.sessionID,
			Channel:   string(channel),
			CodeHash:  string(hash),
			Outcome:   outcome,
			CreatedAt: time.Now(),
		})
		if err != nil {
			log.Printf("[audit] insert failed: session=%s err=%v", r.sessionID, err)
		}
	}()
}
