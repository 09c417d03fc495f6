package models

import "time"

// VerificationAttempt is one audit row per submitted code. Only a bcrypt
// hash of the code is stored.
type VerificationAttempt struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Channel   string    `json:"channel"`
	CodeHash  string    `json:"-"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}
