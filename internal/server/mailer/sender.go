// Package mailer delivers account verification mail.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"github.com/wneessen/go-mail"
)

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPSender submits mail over SMTP with mandatory STARTTLS and PLAIN auth.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return &PermanentError{Err: fmt.Errorf("invalid from address: %w", err)}
	}
	if err := msg.To(to); err != nil {
		return &PermanentError{Err: fmt.Errorf("invalid recipient: %w", err)}
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("smtp client: %w", err)}
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: smtp: %v", common.ErrUpstreamUnavailable, err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Selected
// when no SMTP host is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.log.Info(ctx, "mail not sent, smtp disabled", "to", to, "subject", subject, "body", body)
	return nil
}
