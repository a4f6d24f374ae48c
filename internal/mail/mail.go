// Package mail is the external collaborator that sends job-completion
// notifications.
//
// Built directly on net/smtp: no third-party mail client or
// transactional-email SDK is warranted for a single best-effort
// notification per job.
package mail

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Service is the mail collaborator's contract.
type Service interface {
	SendEmail(to, subject, body string) error
}

// SMTPService sends mail through a single upstream SMTP relay.
type SMTPService struct {
	addr string
	from string
	auth smtp.Auth
}

// New returns an SMTPService that dials addr (host:port) for every send,
// authenticating with auth if non-nil (nil is valid for relays that only
// accept connections from trusted internal hosts).
func New(addr, from string, auth smtp.Auth) *SMTPService {
	return &SMTPService{addr: addr, from: from, auth: auth}
}

// SendEmail sends a single plain-text message to to with the given
// subject and body.
func (s *SMTPService) SendEmail(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("mail: send to %q: %w", to, err)
	}
	return nil
}
