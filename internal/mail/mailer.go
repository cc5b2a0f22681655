// Package mail is the outbound mail boundary. The rest of the application
// only sees the Mailer interface; the SMTP implementation lives behind it
// so tests and the queue consumer can swap in fakes.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is one outbound mail.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
}

// Mailer sends a single message.
type Mailer interface {
	SendMail(ctx context.Context, msg Message) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Host string
	Port string
	User string
	Pass string
}

// SendMail delivers msg via SMTP. The context is honored only between
// messages; net/smtp has no per-dial cancellation hook.
func (m *SMTPMailer) SendMail(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Host == "" {
		return fmt.Errorf("smtp: no host configured")
	}
	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", msg.From)
	fmt.Fprintf(&body, "To: %s\r\n", msg.To)
	fmt.Fprintf(&body, "Subject: %s\r\n", msg.Subject)
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	body.WriteString(msg.Text)

	addr := m.Host + ":" + m.Port
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Pass, m.Host)
	}
	return smtp.SendMail(addr, auth, msg.From, []string{msg.To}, []byte(body.String()))
}
