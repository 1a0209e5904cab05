// Package notify is the outbound notification gateway. Delivery is best
// effort: callers log failures and move on, and an unconfigured gateway is a
// silent no-op so development environments need no mail server.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
)

// Sender delivers one notification to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail over SMTP. A blank host makes every Send a no-op.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates the SMTP gateway.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if s.cfg.Host == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// Message is one captured notification.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Capture is a test double that records sent messages. FailFor makes sends to
// a given address fail, for exercising best-effort delivery paths.
type Capture struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]error
}

// NewCapture creates an empty capture sender.
func NewCapture() *Capture {
	return &Capture{failFor: make(map[string]error)}
}

// FailFor makes Send return err for the given address.
func (c *Capture) FailFor(to string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFor[strings.ToLower(to)] = err
}

func (c *Capture) Send(_ context.Context, to, subject, htmlBody, textBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failFor[strings.ToLower(to)]; ok {
		return err
	}
	c.sent = append(c.sent, Message{To: to, Subject: subject, HTMLBody: htmlBody, TextBody: textBody})
	return nil
}

// Sent returns a copy of the captured messages.
func (c *Capture) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message{}, c.sent...)
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*Capture)(nil)
)
