// Package mail delivers signer OTPs and workflow notifications.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"lexhub.org/internal/obs"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP sends mail through a single SMTP endpoint with PLAIN auth.
type SMTP struct {
	Addr string // host:port
	From string
	User string
	Pass string
}

func NewSMTP(addr, from, user, pass string) *SMTP {
	return &SMTP{Addr: addr, From: from, User: user, Pass: pass}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("mail: recipient is required")
	}
	var auth smtp.Auth
	if s.User != "" {
		host := s.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.User, s.Pass, host)
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.From, to, msg.Subject, msg.Body)
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{to}, []byte(body)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

// LogOnly writes messages to the structured log instead of delivering them.
// Used when no SMTP endpoint is configured.
type LogOnly struct{}

func (LogOnly) Send(ctx context.Context, msg Message) error {
	obs.LogRequest(map[string]any{
		"level":   "info",
		"msg":     "mail_not_delivered",
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	return nil
}

// Recorder captures messages instead of sending them. Used in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of all recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
