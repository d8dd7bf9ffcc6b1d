package account

import (
	"context"

	"github.com/uptrace/bun"
)

// Module wires the repositories, services, and command handlers into one
// deployable unit. Build it once at startup and hand it to the transport
// layer of your choice.
type Module struct {
	settings Settings
	repo     RepositoryManager
	actions  *ActionTokenService
	tokens   *TokenService
	status   *StatusService
	emails   *EmailSender
	mailer   Mailer
	schema   *Schema
	logger   Logger
	activity ActivitySink

	Register             *RegisterHandler
	VerifyAccount        *VerifyAccountHandler
	ResendActivation     *ResendActivationHandler
	Login                *LoginHandler
	VerifyToken          *VerifyTokenHandler
	RefreshToken         *RefreshTokenHandler
	RevokeToken          *RevokeTokenHandler
	SendPasswordReset    *SendPasswordResetHandler
	PasswordReset        *PasswordResetHandler
	PasswordSet          *PasswordSetHandler
	PasswordChange       *PasswordChangeHandler
	UpdateAccount        *UpdateAccountHandler
	ArchiveAccount       *ArchiveAccountHandler
	DeleteAccount        *DeleteAccountHandler
	SendSecondaryEmail   *SendSecondaryEmailActivationHandler
	VerifySecondaryEmail *VerifySecondaryEmailHandler
	SwapEmails           *SwapEmailsHandler
	RemoveSecondaryEmail *RemoveSecondaryEmailHandler
}

// ModuleOption overrides a default collaborator during construction.
type ModuleOption func(*Module)

// WithModuleLogger sets the logger shared by every service and handler.
func WithModuleLogger(logger Logger) ModuleOption {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithModuleActivitySink routes audit events to the given sink.
func WithModuleActivitySink(sink ActivitySink) ModuleOption {
	return func(m *Module) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithModuleMailer replaces the SMTP mailer, e.g. with a queue backed one.
func WithModuleMailer(mailer Mailer) ModuleOption {
	return func(m *Module) {
		if mailer != nil {
			m.mailer = mailer
		}
	}
}

// WithModuleRepositoryManager replaces the default repository wiring.
func WithModuleRepositoryManager(repo RepositoryManager) ModuleOption {
	return func(m *Module) {
		if repo != nil {
			m.repo = repo
		}
	}
}

// NewModule assembles the account module on top of the given database.
func NewModule(db *bun.DB, settings Settings, opts ...ModuleOption) (*Module, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	m := &Module{
		settings: settings,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.repo == nil {
		m.repo = NewRepositoryManager(db)
	}
	m.repo.MustValidate()

	if m.mailer == nil {
		mailer, err := NewMailer(settings, m.logger)
		if err != nil {
			return nil, err
		}
		m.mailer = mailer
	}

	m.actions = NewActionTokenService([]byte(settings.SigningKey), settings.Issuer).
		WithLogger(m.logger)
	m.tokens = NewTokenService(settings, m.repo.RefreshTokens()).
		WithLogger(m.logger)
	m.status = NewStatusService(m.repo, m.actions, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.emails = NewEmailSender(m.actions, m.mailer, settings).
		WithLogger(m.logger)
	m.schema = NewSchema(settings)

	m.Register = NewRegisterHandler(m.repo, m.status, m.tokens, m.emails, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.VerifyAccount = NewVerifyAccountHandler(m.status)
	m.ResendActivation = NewResendActivationHandler(m.repo, m.emails).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.Login = NewLoginHandler(m.repo, m.status, m.tokens, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.VerifyToken = NewVerifyTokenHandler(m.tokens)
	m.RefreshToken = NewRefreshTokenHandler(m.repo, m.tokens)
	m.RevokeToken = NewRevokeTokenHandler(m.tokens)
	m.SendPasswordReset = NewSendPasswordResetHandler(m.repo, m.emails, settings).
		WithLogger(m.logger)
	m.PasswordReset = NewPasswordResetHandler(m.repo, m.status, m.actions, m.tokens, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.PasswordSet = NewPasswordSetHandler(m.repo, m.status, m.actions, m.tokens, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.PasswordChange = NewPasswordChangeHandler(m.repo, m.tokens, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.UpdateAccount = NewUpdateAccountHandler(m.repo, settings).
		WithLogger(m.logger)
	m.ArchiveAccount = NewArchiveAccountHandler(m.status, m.tokens).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.DeleteAccount = NewDeleteAccountHandler(m.repo, m.tokens, settings).
		WithActivitySink(m.activity).
		WithLogger(m.logger)
	m.SendSecondaryEmail = NewSendSecondaryEmailActivationHandler(m.repo, m.status, m.emails)
	m.VerifySecondaryEmail = NewVerifySecondaryEmailHandler(m.status)
	m.SwapEmails = NewSwapEmailsHandler(m.status)
	m.RemoveSecondaryEmail = NewRemoveSecondaryEmailHandler(m.status)

	return m, nil
}

// Settings returns the settings the module was built with.
func (m *Module) Settings() Settings { return m.settings }

// Schema returns the operation catalog.
func (m *Module) Schema() *Schema { return m.schema }

// Repos exposes the repository manager, mostly for migrations and tests.
func (m *Module) Repos() RepositoryManager { return m.repo }

// Tokens exposes the session token service.
func (m *Module) Tokens() *TokenService { return m.tokens }

// ActionTokens exposes the action token codec.
func (m *Module) ActionTokens() *ActionTokenService { return m.actions }

// Status exposes the status service.
func (m *Module) Status() *StatusService { return m.status }

// Emails exposes the transactional email sender.
func (m *Module) Emails() *EmailSender { return m.emails }

// Authenticate resolves an access token into its live user record. Used by
// transport middleware to populate the request context.
func (m *Module) Authenticate(ctx context.Context, tokenString string) (*User, error) {
	claims, err := m.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := m.repo.Users().GetByUsername(ctx, claims.Username)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if !user.IsActive {
		return nil, ErrUnauthenticated
	}

	return user, nil
}
