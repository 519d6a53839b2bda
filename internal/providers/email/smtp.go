package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, body string) error {
	if len(to) == 0 {
		return &TerminalError{Err: errors.New("no recipients")}
	}

	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	msg := []byte(fmt.Sprintf(
		"To: %s\r\nFrom: %s\r\nSubject: %s\r\nMIME-version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		to[0], p.cfg.From, subject, body,
	))

	if err := smtp.SendMail(addr, auth, p.cfg.From, to, msg); err != nil {
		// A 5xx reply is a permanent rejection.
		var proto *textproto.Error
		if errors.As(err, &proto) && proto.Code >= 500 && proto.Code < 600 {
			return &TerminalError{Err: err}
		}
		return err
	}
	return nil
}
