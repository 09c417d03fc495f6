package verification

import (
	"regexp"
	"strings"
)

// Channel names the two independent verification tracks.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

const codeLength = 6

// channelState is the per-channel verification lifecycle. It is owned and
// mutated exclusively by the controller; consumers read Snapshot copies.
//
// lastAttemptedCode and inFlight are real fields here rather than
// side-channel variables so the de-dup and re-entry invariants stay
// auditable and testable.
type channelState struct {
	verified   bool
	verifying  bool
	codeInput  string
	dialogOpen bool
	lastError  *Error

	lastAttemptedCode string
	inFlight          bool
}

// Snapshot is the consumer-facing view of one channel.
type Snapshot struct {
	Verified   bool   `json:"verified"`
	Verifying  bool   `json:"verifying"`
	CodeInput  string `json:"code_input"`
	DialogOpen bool   `json:"dialog_open"`
	Error      string `json:"error,omitempty"`
	ErrorKind  Kind   `json:"error_kind,omitempty"`
}

func (s *channelState) snapshot() Snapshot {
	snap := Snapshot{
		Verified:   s.verified,
		Verifying:  s.verifying,
		CodeInput:  s.codeInput,
		DialogOpen: s.dialogOpen,
	}
	if s.lastError != nil {
		snap.Error = s.lastError.Message
		snap.ErrorKind = s.lastError.Kind
	}
	return snap
}

var digitsOnly = regexp.MustCompile(`[^0-9]`)

// sanitizeCodeInput strips non-digits at input time and caps the field at
// the code length; submit-time guards then only need an exact-length check.
func sanitizeCodeInput(s string) string {
	d := digitsOnly.ReplaceAllString(s, "")
	if len(d) > codeLength {
		d = d[:codeLength]
	}
	return d
}

func isSixDigits(code string) bool {
	if len(code) != codeLength {
		return false
	}
	return digitsOnly.ReplaceAllString(code, "") == code
}

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func isValidEmail(address string) bool {
	return emailShape.MatchString(strings.TrimSpace(address))
}

// phoneDigitCount counts digits after stripping formatting; a full number
// with country code has at least ten.
func phoneDigitCount(fullPhone string) int {
	return len(digitsOnly.ReplaceAllString(fullPhone, ""))
}
