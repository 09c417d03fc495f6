package verification

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"signupd/internal/backend"
	"signupd/internal/phone"
)

// Backend is the verification backend contract the controller requires.
// Result.OK already folds the backend's lenient success predicate; err is
// transport-level failure.
type Backend interface {
	SendEmailOTP(ctx context.Context, email string) (backend.Result, error)
	VerifyEmailOTP(ctx context.Context, email, code string) (backend.Result, error)
	VerifyPhoneProof(ctx context.Context, email, proofToken string) (backend.Result, error)
}

// PhoneSession confirms an SMS code and yields a proof token.
type PhoneSession interface {
	Confirm(ctx context.Context, code string) (string, error)
}

// PhoneProvider issues SMS codes. RequestCode owns the full challenge
// choreography (teardown, settle delay, re-init) so the controller stays
// free of provider timing quirks. Teardown drops any pending challenge and
// must tolerate being called twice.
type PhoneProvider interface {
	RequestCode(ctx context.Context, fullPhone string) (PhoneSession, error)
	Teardown()
}

// Recorder receives the outcome of every code submission that reached a
// client call. Implementations must not block.
type Recorder interface {
	RecordAttempt(channel Channel, code, outcome string)
}

// Controller is the single source of truth for both channels' verification
// lifecycle. One instance per signup session. Safe for concurrent use; a
// second verify on a channel while one is outstanding fails fast rather
// than queueing.
type Controller struct {
	backend  Backend
	provider PhoneProvider
	recorder Recorder

	mu    sync.Mutex
	email channelState
	phone channelState
	// session is created by SendPhoneCode, consumed by VerifyPhoneCode and
	// nulled by success, reset and staleness paths.
	session PhoneSession
	// epoch suppresses resolutions that land after a Reset. An action
	// captures the epoch at start and discards its own result if the epoch
	// has advanced by the time its call resolves.
	epoch uint64
}

func NewController(b Backend, p PhoneProvider, rec Recorder) *Controller {
	return &Controller{backend: b, provider: p, recorder: rec}
}

// SendEmailCode asks the backend to email a one-time code to address.
func (c *Controller) SendEmailCode(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if !isValidEmail(address) {
		return c.failChannel(&c.email, newError(KindInvalidInput, msgInvalidEmail))
	}

	c.mu.Lock()
	ep := c.epoch
	c.email.verifying = true
	c.email.lastError = nil
	// A fresh send re-arms resubmission checking.
	c.email.lastAttemptedCode = ""
	c.mu.Unlock()

	res, err := c.backend.SendEmailOTP(ctx, address)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		return ErrStale
	}
	c.email.verifying = false

	if err == nil && res.OK {
		c.email.dialogOpen = true
		c.email.codeInput = ""
		return nil
	}
	msg := res.Message
	if msg == "" {
		msg = msgSendFailed
	}
	if err != nil {
		log.Printf("[verify][email][send] backend error: %v", err)
	}
	verr := newError(KindUnknown, msg)
	c.email.lastError = verr
	return verr
}

// VerifyEmailCode submits code for the email channel. Identical
// resubmissions of an already-attempted code are rejected locally with no
// backend call.
func (c *Controller) VerifyEmailCode(ctx context.Context, code, address string) error {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	if c.email.inFlight {
		c.mu.Unlock()
		return ErrInFlight
	}
	if code != "" && code == c.email.lastAttemptedCode {
		c.mu.Unlock()
		return ErrDuplicate
	}
	if !isSixDigits(code) {
		verr := newError(KindInvalidInput, msgInvalidCode)
		c.email.lastError = verr
		c.mu.Unlock()
		return verr
	}
	ep := c.epoch
	c.email.inFlight = true
	c.email.verifying = true
	c.email.lastAttemptedCode = code
	c.mu.Unlock()

	// Release the guard on every exit path, including panics in the
	// classification below.
	defer func() {
		c.mu.Lock()
		if ep == c.epoch {
			c.email.inFlight = false
			c.email.verifying = false
		}
		c.mu.Unlock()
	}()

	res, err := c.backend.VerifyEmailOTP(ctx, address, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		return ErrStale
	}

	if err == nil && res.OK {
		c.email.verified = true
		c.email.dialogOpen = false
		c.email.codeInput = ""
		c.email.lastError = nil
		// lastAttemptedCode stays set: a verified channel must not be
		// re-triggered by an accidental resubmission.
		c.record(ChannelEmail, code, "verified")
		return nil
	}

	if err != nil {
		log.Printf("[verify][email][verify] backend error: %v", err)
	}
	verr := c.normalizeEmailFailure(res.Message)
	c.email.lastError = verr
	c.record(ChannelEmail, code, string(verr.Kind))
	return verr
}

func (c *Controller) normalizeEmailFailure(msg string) *Error {
	if looksLikeWrongCode(msg) {
		return newError(KindWrongCode, msgWrongOTP)
	}
	if msg == "" {
		msg = msgVerifyFailed
	}
	return newError(KindUnknown, msg)
}

// SendPhoneCode requests an SMS code for fullPhone (digits incl. country
// code). The provider adapter tears down any pending challenge before
// initializing a fresh one.
func (c *Controller) SendPhoneCode(ctx context.Context, fullPhone string) error {
	if phoneDigitCount(fullPhone) < 10 {
		return c.failChannel(&c.phone, newError(KindInvalidInput, msgInvalidPhone))
	}

	c.mu.Lock()
	ep := c.epoch
	c.phone.verifying = true
	c.phone.lastError = nil
	c.phone.lastAttemptedCode = ""
	// Any prior session is unusable once its challenge is torn down.
	c.session = nil
	c.mu.Unlock()

	sess, err := c.provider.RequestCode(ctx, fullPhone)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		return ErrStale
	}
	c.phone.verifying = false

	if err == nil {
		c.session = sess
		c.phone.dialogOpen = true
		c.phone.codeInput = ""
		return nil
	}

	log.Printf("[verify][phone][send] provider error: %v", err)
	c.provider.Teardown()
	verr := mapProviderSendError(err)
	c.phone.lastError = verr
	return verr
}

func mapProviderSendError(err error) *Error {
	var perr *phone.Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case phone.CodeInvalidAPIKey:
			return newError(KindProviderConfig, msgBadAPIKey)
		case phone.CodeBillingNotEnabled:
			return newError(KindProviderConfig, msgBillingDisabled)
		case phone.CodeQuotaExceeded:
			return newError(KindProviderConfig, msgQuotaExceeded)
		}
	}
	return newError(KindUnknown, msgSendFailed)
}

// VerifyPhoneCode confirms code against the active phone session, then
// exchanges the resulting proof token with the backend for authoritative
// success.
func (c *Controller) VerifyPhoneCode(ctx context.Context, code, address string) error {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	if c.phone.inFlight {
		c.mu.Unlock()
		return ErrInFlight
	}
	if code != "" && code == c.phone.lastAttemptedCode {
		c.mu.Unlock()
		return ErrDuplicate
	}
	if !isSixDigits(code) {
		verr := newError(KindInvalidInput, msgInvalidCode)
		c.phone.lastError = verr
		c.mu.Unlock()
		return verr
	}
	if c.session == nil {
		verr := newError(KindNoSession, msgNoSession)
		c.phone.lastError = verr
		c.mu.Unlock()
		return verr
	}
	ep := c.epoch
	sess := c.session
	c.phone.inFlight = true
	c.phone.verifying = true
	c.phone.lastAttemptedCode = code
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if ep == c.epoch {
			c.phone.inFlight = false
			c.phone.verifying = false
		}
		c.mu.Unlock()
	}()

	proof, err := sess.Confirm(ctx, code)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if ep != c.epoch {
			return ErrStale
		}
		log.Printf("[verify][phone][confirm] provider error: %v", err)
		verr := c.applyProviderConfirmError(err)
		c.phone.lastError = verr
		c.record(ChannelPhone, code, string(verr.Kind))
		return verr
	}

	res, err := c.backend.VerifyPhoneProof(ctx, address, proof)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		return ErrStale
	}

	if err == nil && res.OK {
		c.phone.verified = true
		c.phone.dialogOpen = false
		c.phone.codeInput = ""
		c.phone.lastError = nil
		// Proof is single-use; the session is fully consumed.
		c.session = nil
		c.record(ChannelPhone, code, "verified")
		return nil
	}

	if err != nil {
		log.Printf("[verify][phone][proof] backend error: %v", err)
	}
	verr := c.applyBackendProofFailure(res.Message)
	c.phone.lastError = verr
	c.record(ChannelPhone, code, string(verr.Kind))
	return verr
}

// applyProviderConfirmError maps a provider confirm failure and performs
// the invalidation that belongs to that failure class. Caller holds c.mu.
func (c *Controller) applyProviderConfirmError(err error) *Error {
	var perr *phone.Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case phone.CodeInvalidCode:
			// Session stays valid; the same wrong digits are blocked until
			// a new sequence is entered.
			return newError(KindWrongCode, msgWrongOTP)
		case phone.CodeSessionExpired:
			c.session = nil
			c.phone.lastAttemptedCode = ""
			c.provider.Teardown()
			return newError(KindExpiredCode, msgCodeExpired)
		}
	}
	return newError(KindUnknown, msgVerifyFailed)
}

// applyBackendProofFailure classifies the backend's free-text answer to a
// proof exchange. Caller holds c.mu.
func (c *Controller) applyBackendProofFailure(msg string) *Error {
	if looksLikeSessionMismatch(msg) {
		// The proof no longer matches the expected identity: treat the
		// whole session as stale and re-arm resubmission.
		c.session = nil
		c.phone.lastAttemptedCode = ""
		c.provider.Teardown()
		return newError(KindSessionMismatch, strings.TrimSpace(msg+" "+msgRequestNewCode))
	}
	if looksLikeWrongCode(msg) {
		return newError(KindWrongCode, msgWrongOTP)
	}
	if msg == "" {
		msg = msgVerifyFailed
	}
	return newError(KindUnknown, msg)
}

// Reset returns both channels to their initial state and invalidates any
// outstanding phone session. Idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.epoch++
	c.email = channelState{}
	c.phone = channelState{}
	c.session = nil
	c.mu.Unlock()
	c.provider.Teardown()
}

// SetEmailCodeInput stores the email dialog's code field, digits only.
func (c *Controller) SetEmailCodeInput(s string) {
	c.mu.Lock()
	c.email.codeInput = sanitizeCodeInput(s)
	c.mu.Unlock()
}

// SetPhoneCodeInput stores the phone dialog's code field, digits only.
func (c *Controller) SetPhoneCodeInput(s string) {
	c.mu.Lock()
	c.phone.codeInput = sanitizeCodeInput(s)
	c.mu.Unlock()
}

func (c *Controller) SetEmailDialogOpen(open bool) {
	c.mu.Lock()
	c.email.dialogOpen = open
	c.mu.Unlock()
}

func (c *Controller) SetPhoneDialogOpen(open bool) {
	c.mu.Lock()
	c.phone.dialogOpen = open
	c.mu.Unlock()
}

// EmailState returns a copy of the email channel's consumer-facing state.
func (c *Controller) EmailState() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email.snapshot()
}

// PhoneState returns a copy of the phone channel's consumer-facing state.
func (c *Controller) PhoneState() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phone.snapshot()
}

// Completed reports whether both channels are verified.
func (c *Controller) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email.verified && c.phone.verified
}

// failChannel records an immediate (pre-network) failure on the channel.
func (c *Controller) failChannel(ch *channelState, verr *Error) error {
	c.mu.Lock()
	ch.lastError = verr
	c.mu.Unlock()
	return verr
}

// record forwards an attempt outcome to the recorder, if any. Caller may
// hold c.mu; recorders must not call back into the controller.
func (c *Controller) record(channel Channel, code, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordAttempt(channel, code, outcome)
	}
}
