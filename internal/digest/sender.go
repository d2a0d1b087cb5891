package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/deusflow/aicybermon/internal/telegram"
)

var ErrNoRecipients = errors.New("no recipients")

// Sender delivers a rendered digest over one channel. Channel names key the
// sent log, so they must be stable.
type Sender interface {
	Channel() string
	Send(ctx context.Context, d *Digest, recipients []string) error
}

// SMTPSender sends the digest as multipart text/html mail. The defaults
// match Gmail over implicit TLS.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	Timeout  time.Duration
}

func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	if host == "" {
		host = "smtp.gmail.com"
	}
	if port == 0 {
		port = 465
	}
	return &SMTPSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		FromName: "AI & Cyber Daily Monitor",
		Timeout:  30 * time.Second,
	}
}

func (s *SMTPSender) Channel() string { return "email" }

// Message builds the mail without sending it.
func (s *SMTPSender) Message(d *Digest, recipients []string) (*mail.Msg, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	m := mail.NewMsg()
	if err := m.FromFormat(s.FromName, s.Username); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.Username, err)
	}
	if err := m.To(recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(d.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, d.Text)
	m.AddAlternativeString(mail.TypeTextHTML, d.HTML)
	return m, nil
}

func (s *SMTPSender) Send(ctx context.Context, d *Digest, recipients []string) error {
	m, err := s.Message(d, recipients)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.Username),
		mail.WithPassword(s.Password),
		mail.WithTimeout(s.Timeout),
	}
	if s.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	c, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send digest to %d recipients: %w", len(recipients), err)
	}
	return nil
}

// TelegramSender posts the digest to the configured chat. Recipients are
// ignored.
type TelegramSender struct {
	Client *telegram.Client
}

func (t *TelegramSender) Channel() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, d *Digest, _ []string) error {
	return t.Client.SendMessage(ctx, d.Telegram)
}
