package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ArchiveAccountMessage struct {
	PasswordOnlyPayload
	User *User
}

func (e ArchiveAccountMessage) Type() string { return "account.archive" }

type ArchiveAccountResponse struct {
	Revoked int  `json:"revoked"`
	Success bool `json:"success"`
}

// ArchiveAccountHandler parks an account. Archived accounts cannot be
// addressed by any flow except login, which reverses the archive.
type ArchiveAccountHandler struct {
	status   *StatusService
	tokens   *TokenService
	activity ActivitySink
	logger   Logger
}

func NewArchiveAccountHandler(status *StatusService, tokens *TokenService) *ArchiveAccountHandler {
	return &ArchiveAccountHandler{
		status:   status,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving archive events.
func (h *ArchiveAccountHandler) WithActivitySink(sink ActivitySink) *ArchiveAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *ArchiveAccountHandler) WithLogger(logger Logger) *ArchiveAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ArchiveAccountHandler) Execute(ctx context.Context, event ArchiveAccountMessage) (*ArchiveAccountResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account archive",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ArchiveAccountHandler) execute(ctx context.Context, event ArchiveAccountMessage) (*ArchiveAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireVerified(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid archive payload")
	}

	if err := RequirePasswordConfirmation(event.User, event.PasswordOnlyPayload); err != nil {
		return nil, err
	}

	if err := h.status.Archive(ctx, event.User); err != nil {
		return nil, err
	}

	revoked := h.tokens.RevokeAllForUser(ctx, event.User.ID)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventTokensRevoked,
		Actor:     userActor(event.User),
		UserID:    event.User.ID.String(),
		Metadata:  map[string]any{"revoked_tokens": revoked},
	})

	return &ArchiveAccountResponse{Revoked: revoked, Success: true}, nil
}

type DeleteAccountMessage struct {
	PasswordOnlyPayload
	User *User
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

type DeleteAccountResponse struct {
	HardDeleted bool `json:"hard_deleted"`
	Revoked     int  `json:"revoked"`
	Success     bool `json:"success"`
}

// DeleteAccountHandler removes an account. With hard delete disabled the
// row survives deactivated, which keeps referential integrity for anything
// pointing at the user. Refresh tokens are revoked either way.
type DeleteAccountHandler struct {
	repo     RepositoryManager
	tokens   *TokenService
	settings Settings
	activity ActivitySink
	logger   Logger
}

func NewDeleteAccountHandler(repo RepositoryManager, tokens *TokenService, settings Settings) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:     repo,
		tokens:   tokens,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving deletion events.
func (h *DeleteAccountHandler) WithActivitySink(sink ActivitySink) *DeleteAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) (*DeleteAccountResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) (*DeleteAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireVerified(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid delete payload")
	}

	if err := RequirePasswordConfirmation(event.User, event.PasswordOnlyPayload); err != nil {
		return nil, err
	}

	user := event.User

	// Tokens go first: even if the delete transaction fails the account
	// holder asked for their sessions to end.
	revoked := h.tokens.RevokeAllForUser(ctx, user.ID)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if h.settings.AllowDeleteAccount {
			return h.repo.Users().HardDeleteTx(ctx, tx, user.ID)
		}
		return h.repo.Users().DeactivateTx(ctx, tx, user.ID)
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"hard_deleted": h.settings.AllowDeleteAccount},
	})

	return &DeleteAccountResponse{
		HardDeleted: h.settings.AllowDeleteAccount,
		Revoked:     revoked,
		Success:     true,
	}, nil
}
