package repositories

import (
	"database/sql"
	"fmt"

	"signupd/internal/models"
)

// VerificationAttemptRepository is the insert-mostly audit trail of code
// submissions. The verification core itself keeps no persistent state.
type VerificationAttemptRepository struct {
	DB *sql.DB
}

func NewVerificationAttemptRepository(db *sql.DB) *VerificationAttemptRepository {
	return &VerificationAttemptRepository{DB: db}
}

func (r *VerificationAttemptRepository) Create(a *models.VerificationAttempt) (int64, error) {
	const q = `
		INSERT INTO verification_attempts (session_id, channel, code_hash, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	if err := r.DB.QueryRow(q, a.SessionID, a.Channel, a.CodeHash, a.Outcome, a.CreatedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("verification_attempt create: %w", err)
	}
	return id, nil
}

// ListBySession returns a session's attempts, oldest first.
func (r *VerificationAttemptRepository) ListBySession(sessionID string) ([]models.VerificationAttempt, error) {
	const q = `
		SELECT id, session_id, channel, code_hash, outcome, created_at
		FROM verification_attempts
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.DB.Query(q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("verification_attempt list: %w", err)
	}
	defer rows.Close()

	var out []models.VerificationAttempt
	for rows.Next() {
		var a models.VerificationAttempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Channel, &a.CodeHash, &a.Outcome, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("verification_attempt scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
