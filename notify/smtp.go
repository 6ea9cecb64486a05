package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/domodwyer/mailyak/v3"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers confirmations as plain-text email.
type SMTPSender struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
	}
}

func (s *SMTPSender) compose(c *Confirmation) *mailyak.MailYak {
	mail := mailyak.New(s.addr, s.auth)
	mail.To(c.AttendeeEmail)
	mail.From(s.cfg.From)
	if s.cfg.FromName != "" {
		mail.FromName(s.cfg.FromName)
	}
	mail.Subject(c.Subject())
	mail.Plain().Set(c.PlainText())
	return mail
}

// Send gives up when ctx expires. mailyak has no context support, so an
// abandoned send may still complete in the background.
func (s *SMTPSender) Send(ctx context.Context, c *Confirmation) error {
	mail := s.compose(c)

	done := make(chan error, 1)
	go func() {
		done <- mail.Send()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", c.AttendeeEmail, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
