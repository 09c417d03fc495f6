package models

import (
	"time"

	"signupd/internal/verification"
)

// SignupSession is one signup flow in progress. It owns the verification
// controller for both channels; everything else about the form lives
// client-side.
type SignupSession struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Controller *verification.Controller `json:"-"`
}

// SessionState is the consumer-facing view of a session.
type SessionState struct {
	ID        string                `json:"id"`
	Tenant    string                `json:"tenant"`
	Email     verification.Snapshot `json:"email"`
	Phone     verification.Snapshot `json:"phone"`
	Completed bool                  `json:"completed"`
}
