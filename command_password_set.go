package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type PasswordSetMessage struct {
	SetPasswordPayload
}

func (e PasswordSetMessage) Type() string { return "account.password_set" }

type PasswordSetResponse struct {
	User    *User `json:"user"`
	Success bool  `json:"success"`
}

// PasswordSetHandler gives a passwordless registration its first password.
// One shot: once the account holds a usable password the token is useless,
// even inside its validity window.
type PasswordSetHandler struct {
	repo     RepositoryManager
	status   *StatusService
	actions  *ActionTokenService
	tokens   *TokenService
	settings Settings
	activity ActivitySink
	logger   Logger
}

func NewPasswordSetHandler(repo RepositoryManager, status *StatusService, actions *ActionTokenService, tokens *TokenService, settings Settings) *PasswordSetHandler {
	return &PasswordSetHandler{
		repo:     repo,
		status:   status,
		actions:  actions,
		tokens:   tokens,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving password set events.
func (h *PasswordSetHandler) WithActivitySink(sink ActivitySink) *PasswordSetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *PasswordSetHandler) WithLogger(logger Logger) *PasswordSetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordSetHandler) Execute(ctx context.Context, event PasswordSetMessage) (*PasswordSetResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password set",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordSetHandler) execute(ctx context.Context, event PasswordSetMessage) (*PasswordSetResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(h.settings); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password set payload").
			WithMetadata(map[string]any{
				"fields": FormatValidationErrorToMap(err),
			})
	}

	payload, err := h.actions.Redeem(event.Token, TokenActionPasswordSet, h.settings.TokenMaxAge(TokenActionPasswordSet))
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
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user for password set")
		}

		if user.HasUsablePassword() {
			return ErrPasswordAlreadySet
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set password")
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
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password set transaction failed")
	}

	h.tokens.RevokeAllForUser(ctx, user.ID)

	if verifiedNow {
		h.status.EmitVerified(ctx, user)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordSet,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return &PasswordSetResponse{User: user, Success: true}, nil
}
