package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPMailer sends plain-text mail through a single SMTP relay.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPMailer constructs a mailer. Username may be empty for relays that
// accept unauthenticated mail (Mailpit in development).
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{addr: fmt.Sprintf("%s:%d", host, port), from: from, auth: auth}
}

// Send delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg))
}

// LogMailer writes mail to the log instead of the network. Used when no SMTP
// relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the message headers.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Logger.Info("mail suppressed", slog.String("to", to), slog.String("subject", subject))
	return nil
}
