// Package mail implements the outbound notifier over SMTP.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"gatekey.org/internal/obs"
	"gatekey.org/internal/result"
)

// Options configures the SMTP sender.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Sender delivers HTML mail via SMTP. It is stateless between sends; each
// Send dials a fresh connection.
type Sender struct {
	opts Options
}

// NewSender constructs the SMTP notifier.
func NewSender(opts Options) *Sender {
	return &Sender{opts: opts}
}

// Send composes and delivers one message. Failures collapse to a single
// generic reason so SMTP internals never leak to API clients.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.opts.FromName, s.opts.From); err != nil {
		return result.Failf("Unable to send email")
	}
	if err := msg.To(to); err != nil {
		return result.Failf("Unable to send email")
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	client, err := gomail.NewClient(s.opts.Host,
		gomail.WithPort(s.opts.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.opts.Username),
		gomail.WithPassword(s.opts.Password),
		gomail.WithSSL(),
	)
	if err != nil {
		return result.Failf("Unable to send email")
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		obs.ObserveMail("failed")
		obs.Log("error", "mail dispatch failed", map[string]any{
			"to":      to,
			"subject": subject,
			"error":   fmt.Sprintf("%v", err),
		})
		return result.Failf("Unable to send email")
	}
	obs.ObserveMail("ok")
	return nil
}
