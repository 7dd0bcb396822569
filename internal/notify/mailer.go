// Package notify delivers the small set of transactional emails this
// service sends: approval requests to organization admins and magic-link
// logins for the dashboard.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	from string
}

// NewSMTPMailer creates a mailer for the relay at addr ("host:port").
func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from}
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// Dollars formats a cent amount for display, e.g. 12345 -> "$123.45".
func Dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// ApprovalEmail renders the subject and body of an approval request.
func ApprovalEmail(amountCents int64, purpose, approveURL, declineURL string) (subject, body string) {
	if purpose == "" {
		purpose = "(not given)"
	}
	subject = fmt.Sprintf("AgentPay: Approve payment of %s", Dollars(amountCents))
	body = fmt.Sprintf(`<p>A payment request requires your approval.</p>
<p><strong>Amount:</strong> %s</p>
<p><strong>Purpose:</strong> %s</p>
<p><a href="%s">Approve</a> | <a href="%s">Decline</a></p>
<p><small>This link expires in 1 hour and can only be used once.</small></p>`,
		Dollars(amountCents), purpose, approveURL, declineURL)
	return subject, body
}

// LoginEmail renders the subject and body of a dashboard magic-link login.
func LoginEmail(orgName, loginURL string) (subject, body string) {
	subject = "AgentPay: Sign in to your dashboard"
	body = fmt.Sprintf(`<p>Click the link below to sign in to the %s dashboard.</p>
<p><a href="%s">Sign in</a></p>
<p><small>This link expires in 30 minutes and can only be used once.</small></p>`,
		orgName, loginURL)
	return subject, body
}
