package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"signupd/internal/models"
)

type EmailCodeRepository struct {
	DB *sql.DB
}

func NewEmailCodeRepository(db *sql.DB) *EmailCodeRepository {
	return &EmailCodeRepository{DB: db}
}

// Create inserts a fresh code row; every send is a new row.
func (r *EmailCodeRepository) Create(email, codeHash string, sentAt, expiresAt time.Time) (int64, error) {
	const q = `
		INSERT INTO signup_email_codes (email, code_hash, sent_at, expires_at, confirmed, attempts)
		VALUES ($1, $2, $3, $4, FALSE, 0)
		RETURNING id
	`
	var id int64
	if err := r.DB.QueryRow(q, email, codeHash, sentAt, expiresAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("email_code create: %w", err)
	}
	return id, nil
}

// GetLatestByEmail returns the most recent send, nil when none.
func (r *EmailCodeRepository) GetLatestByEmail(email string) (*models.EmailCode, error) {
	const q = `
		SELECT id, email, code_hash, sent_at, expires_at, confirmed, attempts
		FROM signup_email_codes
		WHERE email = $1
		ORDER BY sent_at DESC
		LIMIT 1
	`
	row := r.DB.QueryRow(q, email)
	var ec models.EmailCode
	if err := row.Scan(&ec.ID, &ec.Email, &ec.CodeHash, &ec.SentAt, &ec.ExpiresAt, &ec.Confirmed, &ec.Attempts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("email_code latest: %w", err)
	}
	return &ec, nil
}

// CountRecentSends counts sends in the throttling window.
func (r *EmailCodeRepository) CountRecentSends(email string, since time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM signup_email_codes
		WHERE email = $1 AND sent_at >= $2
	`
	var n int
	if err := r.DB.QueryRow(q, email, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("email_code count recent: %w", err)
	}
	return n, nil
}

// IncrementAttempts adds one failed attempt and returns the new count.
func (r *EmailCodeRepository) IncrementAttempts(id int64) (int, error) {
	const q = `
		UPDATE signup_email_codes
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.DB.QueryRow(q, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("email_code increment attempts: %w", err)
	}
	return attempts, nil
}

func (r *EmailCodeRepository) MarkConfirmed(id int64) error {
	_, err := r.DB.Exec(`UPDATE signup_email_codes SET confirmed=TRUE WHERE id=$1`, id)
	return err
}

// ExpireNow burns the code immediately (used after too many attempts).
func (r *EmailCodeRepository) ExpireNow(id int64) error {
	_, err := r.DB.Exec(`UPDATE signup_email_codes SET expires_at = NOW() WHERE id=$1`, id)
	return err
}
