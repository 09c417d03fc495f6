package models

import "time"

// EmailCode is one issued email OTP in the dev backend, a fresh row per
// send. Only the bcrypt hash of the code is kept.
type EmailCode struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"-"`
	SentAt    time.Time `json:"sent_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Confirmed bool      `json:"confirmed"`
	Attempts  int       `json:"attempts"`
}
