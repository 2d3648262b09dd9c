// Package mailer holds the [ctxAuth.Mailer] implementations used by the
// server: SMTPMailer for real delivery and LogMailer for development.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

var (
	// ErrInvalidConfig is returned by NewSMTPMailer for incomplete settings.
	ErrInvalidConfig = errors.New("mailer: invalid config")
	// ErrSend wraps transport failures.
	ErrSend = errors.New("mailer: send failed")
)

// SMTPConfig describes the submission server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// AllowPlaintext permits servers that do not offer STARTTLS.
	AllowPlaintext bool
	Timeout        time.Duration
}

// SMTPMailer sends HTML mail through an SMTP submission server with
// STARTTLS and PLAIN auth.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer validates cfg and returns a mailer. No connection is made
// until the first Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: from address is required", ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send delivers one message and returns its Message-ID.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	msg, err := m.message(to, subject, htmlBody)
	if err != nil {
		return "", err
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSend, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSend, err)
	}

	return msg.GetMessageID(), nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	policy := mail.TLSMandatory
	if m.cfg.AllowPlaintext {
		policy = mail.TLSOpportunistic
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) message(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidConfig, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrSend, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}
