package verification

import (
	"errors"
	"strings"
)

// Kind classifies a verification failure at the controller boundary.
// Everything the two channels can report is normalized into one of these.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindWrongCode       Kind = "wrong_code"
	KindExpiredCode     Kind = "expired_code"
	KindNoSession       Kind = "no_session"
	KindProviderConfig  Kind = "provider_config"
	KindSessionMismatch Kind = "session_mismatch"
	KindUnknown         Kind = "unknown"
)

// Fixed user-facing texts. The wrong-code text never echoes backend or
// provider wording.
const (
	msgWrongOTP        = "Wrong OTP. Please check the code and try again."
	msgSendFailed      = "Failed to send the code. Please try again."
	msgVerifyFailed    = "Verification failed. Please try again."
	msgNoSession       = "No active phone verification. Request a new code first."
	msgCodeExpired     = "This code has expired. Please request a new one."
	msgInvalidEmail    = "Please enter a valid email address."
	msgInvalidPhone    = "Please enter a valid phone number with country code."
	msgInvalidCode     = "Please enter the 6-digit code."
	msgRequestNewCode  = "Please request a new code."
	msgBadAPIKey       = "Phone verification is misconfigured (invalid API key). Contact support."
	msgBillingDisabled = "Phone verification is unavailable (billing not enabled). Contact support."
	msgQuotaExceeded   = "SMS quota exceeded. Please try again later."
)

// Error is a channel failure exposed to the consumer. Controller actions
// return it instead of raising; the same value is mirrored into the
// channel's last-error state for rendering.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Guard failures. These are synchronous no-ops: they mutate nothing and are
// not recorded as channel errors.
var (
	ErrInFlight  = errors.New("verification already in progress")
	ErrDuplicate = errors.New("this code was already attempted")
	// ErrStale marks a resolution whose controller epoch advanced while the
	// call was outstanding; its state mutation was discarded.
	ErrStale = errors.New("stale verification resolution discarded")
)

// looksLikeWrongCode matches backend free text that means "bad code".
// Keyword-based on purpose: the backend has no structured error contract,
// and these are the phrasings it is known to use.
func looksLikeWrongCode(msg string) bool {
	m := strings.ToLower(msg)
	if !strings.Contains(m, "code") && !strings.Contains(m, "otp") {
		return false
	}
	return strings.Contains(m, "invalid") ||
		strings.Contains(m, "incorrect") ||
		strings.Contains(m, "wrong") ||
		strings.Contains(m, "not match")
}

// looksLikeSessionMismatch matches backend text that means the phone proof
// token did not correspond to the expected identity.
func looksLikeSessionMismatch(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "token") ||
		strings.Contains(m, "aud") ||
		strings.Contains(m, "firebase")
}
