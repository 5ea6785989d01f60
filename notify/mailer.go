// Package notify binds the job queue's notification types to their outbound
// transports: SMTP for email and an HTTP push gateway for real-time events.
// Message content is produced by callers; this package only delivers it.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPOptions configures the SMTP relay.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

func (o SMTPOptions) withDefaults() SMTPOptions {
	if o.Port <= 0 {
		o.Port = 587
	}
	if o.From == "" {
		o.From = o.Username
	}
	return o
}

// SMTPMailer sends mail through a single SMTP relay.
type SMTPMailer struct {
	opts SMTPOptions
}

// NewSMTPMailer builds a mailer for the given relay.
func NewSMTPMailer(opts SMTPOptions) *SMTPMailer {
	return &SMTPMailer{opts: opts.withDefaults()}
}

// Send delivers msg, aborting when ctx expires. net/smtp has no context
// support, so the dial-and-send runs in a goroutine raced against ctx; on
// timeout the connection is abandoned to its own TCP deadline.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	done := make(chan error, 1)
	go func() { done <- m.send(msg) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (m *SMTPMailer) send(msg Message) error {
	addr := fmt.Sprintf("%s:%d", m.opts.Host, m.opts.Port)
	var auth smtp.Auth
	if m.opts.Username != "" {
		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
	}
	if err := smtp.SendMail(addr, auth, m.opts.From, []string{msg.To}, m.mime(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) mime(msg Message) []byte {
	from := m.opts.From
	if m.opts.FromName != "" {
		from = fmt.Sprintf("%q <%s>", m.opts.FromName, m.opts.From)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
