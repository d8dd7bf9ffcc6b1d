package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type SendPasswordResetMessage struct {
	EmailPayload
}

func (e SendPasswordResetMessage) Type() string { return "account.password_reset.request" }

type SendPasswordResetResponse struct {
	Success bool `json:"success"`
}

// SendPasswordResetHandler emails a reset link. Unknown addresses succeed
// quietly. An unverified account gets an activation email instead and the
// caller is told to verify first; resetting a password can never bypass
// activation.
type SendPasswordResetHandler struct {
	repo     RepositoryManager
	emails   *EmailSender
	settings Settings
	logger   Logger
}

func NewSendPasswordResetHandler(repo RepositoryManager, emails *EmailSender, settings Settings) *SendPasswordResetHandler {
	return &SendPasswordResetHandler{
		repo:     repo,
		emails:   emails,
		settings: settings,
		logger:   defLogger{},
	}
}

// WithLogger overrides the handler logger.
func (h *SendPasswordResetHandler) WithLogger(logger Logger) *SendPasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendPasswordResetHandler) Execute(ctx context.Context, event SendPasswordResetMessage) (*SendPasswordResetResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendPasswordResetHandler) execute(ctx context.Context, event SendPasswordResetMessage) (*SendPasswordResetResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	user, err := h.repo.Users().GetByEmail(ctx, event.Email, h.settings.AllowLoginWithSecondaryEmail)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &SendPasswordResetResponse{Success: true}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for password reset")
	}

	if !user.EnsureStatus().Verified {
		if err := h.emails.SendActivationEmail(ctx, user); err != nil {
			h.logger.Error("activation email during reset request failed for %s: %v", user.Email, err)
			return nil, err
		}
		return nil, sentinelWithMetadata(ErrNotVerified, map[string]any{
			"hint": "a new activation email was sent",
		})
	}

	if err := h.emails.SendPasswordResetEmail(ctx, user, event.Email); err != nil {
		return nil, err
	}

	return &SendPasswordResetResponse{Success: true}, nil
}

type PasswordResetMessage struct {
	SetPasswordPayload
}

func (e PasswordResetMessage) Type() string { return "account.password_reset" }

type PasswordResetResponse struct {
	User    *User `json:"user"`
	Revoked int   `json:"revoked"`
	Success bool  `json:"success"`
}

// PasswordResetHandler finalizes a reset. Every outstanding refresh token is
// revoked and, since following an emailed link proves mailbox control, an
// unverified account comes out verified.
type PasswordResetHandler struct {
	repo     RepositoryManager
	status   *StatusService
	actions  *ActionTokenService
	tokens   *TokenService
	settings Settings
	activity ActivitySink
	logger   Logger
}

func NewPasswordResetHandler(repo RepositoryManager, status *StatusService, actions *ActionTokenService, tokens *TokenService, settings Settings) *PasswordResetHandler {
	return &PasswordResetHandler{
		repo:     repo,
		status:   status,
		actions:  actions,
		tokens:   tokens,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving password reset events.
func (h *PasswordResetHandler) WithActivitySink(sink ActivitySink) *PasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *PasswordResetHandler) WithLogger(logger Logger) *PasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordResetHandler) Execute(ctx context.Context, event PasswordResetMessage) (*PasswordResetResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordResetHandler) execute(ctx context.Context, event PasswordResetMessage) (*PasswordResetResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(h.settings); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload").
			WithMetadata(map[string]any{
				"fields": FormatValidationErrorToMap(err),
			})
	}

	payload, err := h.actions.Redeem(event.Token, TokenActionPasswordReset, h.settings.TokenMaxAge(TokenActionPasswordReset))
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(event.NewPassword1)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var user *User
	verifiedNow := false

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByUsernameTx(ctx, tx, payload.Username)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user for password reset")
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}
		user.PasswordHash = hash

		verifiedNow, err = h.status.MarkVerifiedTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to auto verify account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	revoked := h.tokens.RevokeAllForUser(ctx, user.ID)

	if verifiedNow {
		h.status.EmitVerified(ctx, user)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"revoked_tokens": revoked},
	})

	return &PasswordResetResponse{User: user, Revoked: revoked, Success: true}, nil
}
