package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/intake-api/pkg/logger"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender abstracts the SMTP dialer so tests can capture messages.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	sender Sender
}

// NewSMTPService sends mail through the configured relay.
func NewSMTPService(cfg Config) Service {
	return &smtpService{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// NewServiceWithSender is used when the transport is supplied by the caller.
func NewServiceWithSender(from string, sender Sender) Service {
	return &smtpService{from: from, sender: sender}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

type logService struct {
	logger *logger.Logger
}

// NewLogService writes mail to the log instead of sending it, for
// deployments without an SMTP relay.
func NewLogService(log *logger.Logger) Service {
	return &logService{logger: log}
}

func (s *logService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	s.logger.Info("email not sent (no SMTP relay configured)", "to", to, "subject", subject)
	return nil
}
