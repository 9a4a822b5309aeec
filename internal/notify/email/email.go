// Package email delivers plain-text messages over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Account is the mailbox a message is sent from. Username defaults to Address.
type Account struct {
	Address  string `mapstructure:"address" validate:"omitempty,email"`
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func (a Account) login() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Address
}

type Message struct {
	From    Account
	ReplyTo string
	To      string
	Subject string
	Body    string
	// Attachment is a file path. A missing file is skipped.
	Attachment string
}

type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// TLS is mandatory, opportunistic or none.
	TLS     string        `mapstructure:"tls" validate:"omitempty,oneof=mandatory opportunistic none"`
	Timeout time.Duration `mapstructure:"timeout"`
	// From is used when a message carries no account of its own.
	From Account `mapstructure:"from"`
}

var ErrNotConfigured = errors.New("smtp is not configured")

type sendFunc func(ctx context.Context, client *mail.Client, msg *mail.Msg) error

type Mailer struct {
	cfg    Config
	logger *zap.Logger
	send   sendFunc
}

func New(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Mailer{
		cfg:    cfg,
		logger: logger,
		send: func(ctx context.Context, client *mail.Client, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != ""
}

// DefaultAccount is the configured sender.
func (m *Mailer) DefaultAccount() Account {
	return m.cfg.From
}

func (m *Mailer) Send(ctx context.Context, msg *Message) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}
	if msg == nil {
		return errors.New("nil message")
	}

	account := msg.From
	if account.Address == "" {
		account = m.cfg.From
	}
	if account.Address == "" {
		return fmt.Errorf("%w: no sender address", ErrNotConfigured)
	}

	built, err := m.build(account, msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions(account)...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := m.send(ctx, client, built); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}

	m.logger.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (m *Mailer) build(account Account, msg *Message) (*mail.Msg, error) {
	built := mail.NewMsg()

	var err error
	if account.Name != "" {
		err = built.FromFormat(account.Name, account.Address)
	} else {
		err = built.From(account.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", account.Address, err)
	}
	if err := built.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	if msg.ReplyTo != "" && !strings.EqualFold(msg.ReplyTo, account.Address) {
		if err := built.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to %q: %w", msg.ReplyTo, err)
		}
	}

	built.Subject(msg.Subject)
	built.SetBodyString(mail.TypeTextPlain, msg.Body)

	if msg.Attachment != "" {
		if _, err := os.Stat(msg.Attachment); err != nil {
			m.logger.Warn("skipping attachment", zap.String("path", msg.Attachment), zap.Error(err))
		} else {
			built.AttachFile(msg.Attachment, mail.WithFileName(filepath.Base(msg.Attachment)))
		}
	}

	return built, nil
}

func (m *Mailer) clientOptions(account Account) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
	}

	switch m.cfg.TLS {
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if account.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(account.login()),
			mail.WithPassword(account.Password),
		)
	}
	return opts
}
