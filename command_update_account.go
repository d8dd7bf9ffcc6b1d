package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type UpdateAccountMessage struct {
	UpdateAccountPayload
	User *User
}

func (e UpdateAccountMessage) Type() string { return "account.update" }

type UpdateAccountResponse struct {
	User    *User `json:"user"`
	Success bool  `json:"success"`
}

// UpdateAccountHandler writes profile fields. The settings decide which
// keys are honored; anything else in the payload is rejected, not silently
// dropped, so a typoed field name surfaces immediately.
type UpdateAccountHandler struct {
	repo     RepositoryManager
	settings Settings
	logger   Logger
}

func NewUpdateAccountHandler(repo RepositoryManager, settings Settings) *UpdateAccountHandler {
	return &UpdateAccountHandler{
		repo:     repo,
		settings: settings,
		logger:   defLogger{},
	}
}

// WithLogger overrides the handler logger.
func (h *UpdateAccountHandler) WithLogger(logger Logger) *UpdateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateAccountHandler) Execute(ctx context.Context, event UpdateAccountMessage) (*UpdateAccountResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateAccountHandler) execute(ctx context.Context, event UpdateAccountMessage) (*UpdateAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireVerified(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid update payload")
	}

	for field := range event.Fields {
		if !h.settings.UpdateFieldAllowed(field) {
			return nil, goerrors.New("field is not updatable", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"field": field})
		}
	}

	user := event.User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Model((*User)(nil)).Where("id = ?", user.ID)
		for field, value := range event.Fields {
			q = q.Set(field+" = ?", value)
		}
		_, err := q.Exec(ctx)
		return err
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account update transaction failed")
	}

	if v, ok := event.Fields["first_name"]; ok {
		user.FirstName = v
	}
	if v, ok := event.Fields["last_name"]; ok {
		user.LastName = v
	}

	return &UpdateAccountResponse{User: user, Success: true}, nil
}
