package services

import (
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// OTPMailer delivers one-time codes by email. Used by the dev backend and
// easy to fake in tests.
type OTPMailer interface {
	SendOTPEmail(to, code string, ttl time.Duration) error
}

type otpMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewOTPMailer(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) OTPMailer {
	return &otpMailer{
		dialer: gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword),
		from:   fromEmail,
	}
}

func (s *otpMailer) SendOTPEmail(to, code string, ttl time.Duration) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your verification code")

	body := fmt.Sprintf(`
		<h3>Email verification</h3>
		<p>Your verification code is: <strong>%s</strong></p>
		<p>It is valid for %d minutes.</p>
		<p>If you did not request this code, you can ignore this email.</p>
	`, code, int(ttl.Minutes()))

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
