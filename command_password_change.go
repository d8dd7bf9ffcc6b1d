package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type PasswordChangeMessage struct {
	ChangePasswordPayload
	User *User
}

func (e PasswordChangeMessage) Type() string { return "account.password_change" }

// PasswordChangeResponse carries a fresh token pair. Everything issued
// before the change is revoked, so the caller's current session survives
// only through these.
type PasswordChangeResponse struct {
	User    *User      `json:"user"`
	Tokens  *TokenPair `json:"tokens"`
	Success bool       `json:"success"`
}

// PasswordChangeHandler swaps a known password for a new one.
type PasswordChangeHandler struct {
	repo     RepositoryManager
	tokens   *TokenService
	settings Settings
	activity ActivitySink
	logger   Logger
}

func NewPasswordChangeHandler(repo RepositoryManager, tokens *TokenService, settings Settings) *PasswordChangeHandler {
	return &PasswordChangeHandler{
		repo:     repo,
		tokens:   tokens,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving password change events.
func (h *PasswordChangeHandler) WithActivitySink(sink ActivitySink) *PasswordChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *PasswordChangeHandler) WithLogger(logger Logger) *PasswordChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordChangeHandler) Execute(ctx context.Context, event PasswordChangeMessage) (*PasswordChangeResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordChangeHandler) execute(ctx context.Context, event PasswordChangeMessage) (*PasswordChangeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireVerified(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(h.settings); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change payload").
			WithMetadata(map[string]any{
				"fields": FormatValidationErrorToMap(err),
			})
	}

	if err := RequirePasswordConfirmation(event.User, event.ChangePasswordPayload); err != nil {
		return nil, err
	}

	hash, err := HashPassword(event.NewPassword1)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := event.User

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash)
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}
	user.PasswordHash = hash

	h.tokens.RevokeAllForUser(ctx, user.ID)

	pair, err := h.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return &PasswordChangeResponse{User: user, Tokens: pair, Success: true}, nil
}
