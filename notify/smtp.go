package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// SMTPConfig configures SMTPNotifier. Env tags are read by the authcore
// command.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"FROM_EMAIL"`
	FromName string `env:"FROM_NAME" envDefault:"authcore"`

	// BaseURL prefixes the /verify-email link.
	BaseURL string `env:"API_URL" envDefault:"http://localhost:8080"`
	// LinkTTL is only shown to the recipient.
	LinkTTL time.Duration `env:"AUTHCORE_VERIFICATION_TTL" envDefault:"24h"`

	MaxRetries uint64        `env:"SMTP_MAX_RETRIES" envDefault:"3"`
	RetryBase  time.Duration `env:"SMTP_RETRY_BASE" envDefault:"200ms"`
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends verification emails over SMTP. Transient failures,
// meaning network errors and 4xx replies, are retried with exponential
// backoff; 5xx replies fail immediately.
type SMTPNotifier struct {
	cfg      SMTPConfig
	from     mail.Address
	auth     smtp.Auth
	sendMail sendMailFunc
	logger   *slog.Logger
}

// NewSMTPNotifier validates cfg and fills in the default port and retry
// settings.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: SMTP host required")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: SMTP from address required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("notify: invalid from address: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPNotifier{
		cfg:      cfg,
		from:     mail.Address{Name: cfg.FromName, Address: cfg.From},
		auth:     auth,
		sendMail: smtp.SendMail,
		logger:   logger,
	}, nil
}

// SendVerificationEmail renders the message and delivers it, retrying
// transient failures up to MaxRetries times while ctx is live.
func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, to, displayName, token string) error {
	msg, err := buildMessage(n.from, to, displayName, VerificationLink(n.cfg.BaseURL, token), n.cfg.LinkTTL)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	backoff := retry.WithMaxRetries(n.cfg.MaxRetries, retry.NewExponential(n.cfg.RetryBase))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := n.sendMail(addr, n.auth, n.from.Address, []string{to}, msg)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		n.logger.WarnContext(ctx, "smtp send failed, retrying", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return fmt.Errorf("notify: send verification email: %w", err)
	}
	return nil
}

func permanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}
