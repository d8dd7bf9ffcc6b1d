package account

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	goerrors "github.com/goliatone/go-errors"
)

var activationEmailTmpl = template.Must(template.New("activation").Parse(
	`Hello{{if .Name}} {{.Name}}{{end}},

Thanks for signing up for {{.SiteName}}. Confirm your email address by
visiting the link below:

{{.URL}}

If you did not create this account you can ignore this message.
`))

var passwordResetEmailTmpl = template.Must(template.New("password_reset").Parse(
	`Hello{{if .Name}} {{.Name}}{{end}},

We received a request to reset the password for your {{.SiteName}} account.
Follow the link below to choose a new password:

{{.URL}}

If you did not request this you can ignore this message; your password will
not change.
`))

var passwordSetEmailTmpl = template.Must(template.New("password_set").Parse(
	`Hello{{if .Name}} {{.Name}}{{end}},

Your {{.SiteName}} account was created without a password. Follow the link
below to choose one:

{{.URL}}
`))

var secondaryEmailTmpl = template.Must(template.New("secondary_email").Parse(
	`Hello{{if .Name}} {{.Name}}{{end}},

This address was requested as a secondary email for a {{.SiteName}} account.
Confirm it by visiting the link below:

{{.URL}}

If you did not request this you can ignore this message.
`))

type emailTemplateData struct {
	Name     string
	SiteName string
	URL      string
}

// EmailSender mints action tokens and dispatches the emails that carry them.
type EmailSender struct {
	tokens   *ActionTokenService
	mailer   Mailer
	settings Settings
	logger   Logger
}

// NewEmailSender wires the transactional email flows.
func NewEmailSender(tokens *ActionTokenService, mailer Mailer, settings Settings) *EmailSender {
	return &EmailSender{
		tokens:   tokens,
		mailer:   mailer,
		settings: settings,
		logger:   defLogger{},
	}
}

// WithLogger overrides the sender logger.
func (e *EmailSender) WithLogger(logger Logger) *EmailSender {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// SendActivationEmail delivers an account activation link to the user's
// primary email.
func (e *EmailSender) SendActivationEmail(ctx context.Context, user *User) error {
	return e.send(ctx, user, user.Email, TokenActionActivation, nil,
		e.settings.ActivationURL,
		fmt.Sprintf("Activate your %s account", e.settings.SiteName),
		activationEmailTmpl)
}

// SendPasswordResetEmail delivers a reset link.
func (e *EmailSender) SendPasswordResetEmail(ctx context.Context, user *User, to string) error {
	return e.send(ctx, user, to, TokenActionPasswordReset, nil,
		e.settings.PasswordResetURL,
		fmt.Sprintf("Reset your %s password", e.settings.SiteName),
		passwordResetEmailTmpl)
}

// SendPasswordSetEmail delivers a first password link to accounts created
// through passwordless registration.
func (e *EmailSender) SendPasswordSetEmail(ctx context.Context, user *User) error {
	return e.send(ctx, user, user.Email, TokenActionPasswordSet, nil,
		e.settings.PasswordSetURL,
		fmt.Sprintf("Set your %s password", e.settings.SiteName),
		passwordSetEmailTmpl)
}

// SendSecondaryEmailActivation delivers a confirmation link to the candidate
// secondary address. The address rides in the token so nothing is persisted
// until the link is followed.
func (e *EmailSender) SendSecondaryEmailActivation(ctx context.Context, user *User, secondaryEmail string) error {
	extra := map[string]string{"secondary_email": secondaryEmail}
	return e.send(ctx, user, secondaryEmail, TokenActionSecondaryEmail, extra,
		e.settings.SecondaryEmailURL,
		fmt.Sprintf("Confirm your %s secondary email", e.settings.SiteName),
		secondaryEmailTmpl)
}

func (e *EmailSender) send(ctx context.Context, user *User, to string, action TokenAction, extra map[string]string, urlPattern, subject string, tmpl *template.Template) error {
	token, err := e.tokens.Issue(user, action, extra)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	data := emailTemplateData{
		Name:     user.FirstName,
		SiteName: e.settings.SiteName,
		URL:      fmt.Sprintf(urlPattern, token),
	}
	if err := tmpl.Execute(&body, data); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email body")
	}

	msg := EmailMessage{
		To:      to,
		Subject: subject,
		Body:    body.String(),
	}

	if err := e.mailer.Send(ctx, msg); err != nil {
		e.logger.Error("email delivery failed for %s (%s): %v", to, action, err)
		return ErrEmailFail
	}

	return nil
}
