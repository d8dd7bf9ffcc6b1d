package account

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/dajohi/goemail"
	goerrors "github.com/goliatone/go-errors"
)

// EmailMessage is a single outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers transactional email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
	IsEnabled() bool
}

// smtpMailer delivers through an SMTPS server. Email is considered disabled
// when the host is missing; sends become no ops so development environments
// run without a mail server.
type smtpMailer struct {
	smtp        *goemail.SMTP
	mailName    string
	mailAddress string
	disabled    bool
	logger      Logger
}

var _ Mailer = (*smtpMailer)(nil)

// NewSMTPMailer builds a mailer from the SMTP settings block.
func NewSMTPMailer(settings Settings, logger Logger) (Mailer, error) {
	if logger == nil {
		logger = defLogger{}
	}

	if settings.SMTPHost == "" {
		logger.Info("mail: DISABLED")
		return &smtpMailer{disabled: true, logger: logger}, nil
	}

	h := fmt.Sprintf("smtps://%v:%v@%v", settings.SMTPUser, settings.SMTPPassword, settings.SMTPHost)
	u, err := url.Parse(h)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "invalid SMTP host")
	}

	addr := settings.MailAddress
	name := settings.MailName
	if a, err := mail.ParseAddress(settings.MailAddress); err == nil {
		addr = a.Address
		if a.Name != "" {
			name = a.Name
		}
	}

	smtp, err := goemail.NewSMTP(u.String(), &tls.Config{})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to initialize SMTP client")
	}

	return &smtpMailer{
		smtp:        smtp,
		mailName:    name,
		mailAddress: addr,
		logger:      logger,
	}, nil
}

func (m *smtpMailer) IsEnabled() bool {
	return !m.disabled
}

func (m *smtpMailer) Send(_ context.Context, msg EmailMessage) error {
	if m.disabled {
		m.logger.Debug("mail disabled, skipping send to %s: %s", msg.To, msg.Subject)
		return nil
	}

	email := goemail.NewMessage(m.mailAddress, msg.Subject, msg.Body)
	email.SetName(m.mailName)
	email.AddTo(msg.To)

	if err := m.smtp.Send(email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp send failed")
	}

	return nil
}

// asyncMailer wraps a Mailer so dispatch happens on a goroutine. Delivery
// failures are logged, never returned; the surrounding mutation already
// committed by the time the send runs.
type asyncMailer struct {
	inner  Mailer
	logger Logger
}

var _ Mailer = (*asyncMailer)(nil)

// NewAsyncMailer wraps a mailer for fire and forget delivery.
func NewAsyncMailer(inner Mailer, logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &asyncMailer{inner: inner, logger: logger}
}

func (m *asyncMailer) IsEnabled() bool {
	return m.inner.IsEnabled()
}

func (m *asyncMailer) Send(_ context.Context, msg EmailMessage) error {
	go func() {
		if err := m.inner.Send(context.Background(), msg); err != nil {
			m.logger.Error("async mail delivery failed for %s: %v", msg.To, err)
		}
	}()
	return nil
}

// MailerFunc adapts a function to the Mailer interface. Used by tests and
// by applications routing email through their own infrastructure.
type MailerFunc func(ctx context.Context, msg EmailMessage) error

func (f MailerFunc) Send(ctx context.Context, msg EmailMessage) error {
	return f(ctx, msg)
}

func (f MailerFunc) IsEnabled() bool { return true }

// NewMailer assembles the delivery chain the settings describe.
func NewMailer(settings Settings, logger Logger) (Mailer, error) {
	mailer, err := NewSMTPMailer(settings, logger)
	if err != nil {
		return nil, err
	}
	if settings.EmailAsync {
		mailer = NewAsyncMailer(mailer, logger)
	}
	return mailer, nil
}
