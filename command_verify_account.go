package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type VerifyAccountMessage struct {
	TokenPayload
}

func (e VerifyAccountMessage) Type() string { return "account.verify" }

type VerifyAccountResponse struct {
	User    *User `json:"user"`
	Success bool  `json:"success"`
}

// VerifyAccountHandler redeems activation tokens.
type VerifyAccountHandler struct {
	status *StatusService
}

func NewVerifyAccountHandler(status *StatusService) *VerifyAccountHandler {
	return &VerifyAccountHandler{status: status}
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) (*VerifyAccountResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) (*VerifyAccountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	user, err := h.status.Verify(ctx, event.Token)
	if err != nil {
		return nil, err
	}

	return &VerifyAccountResponse{User: user, Success: true}, nil
}

type ResendActivationMessage struct {
	EmailPayload
}

func (e ResendActivationMessage) Type() string { return "account.resend_activation" }

type ResendActivationResponse struct {
	Success bool `json:"success"`
}

// ResendActivationHandler re-sends the activation email. An unknown address
// succeeds quietly so the endpoint cannot be used to probe for accounts; an
// already verified account is an explicit conflict because the caller proved
// knowledge of the address by receiving the first email.
type ResendActivationHandler struct {
	repo     RepositoryManager
	emails   *EmailSender
	activity ActivitySink
	logger   Logger
}

func NewResendActivationHandler(repo RepositoryManager, emails *EmailSender) *ResendActivationHandler {
	return &ResendActivationHandler{
		repo:     repo,
		emails:   emails,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving resend events.
func (h *ResendActivationHandler) WithActivitySink(sink ActivitySink) *ResendActivationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *ResendActivationHandler) WithLogger(logger Logger) *ResendActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendActivationHandler) Execute(ctx context.Context, event ResendActivationMessage) (*ResendActivationResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendActivationHandler) execute(ctx context.Context, event ResendActivationMessage) (*ResendActivationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid resend payload")
	}

	user, err := h.repo.Users().GetByEmail(ctx, event.Email, false)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &ResendActivationResponse{Success: true}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for resend")
	}

	if user.EnsureStatus().Verified {
		return nil, ErrAlreadyVerified
	}

	if err := h.emails.SendActivationEmail(ctx, user); err != nil {
		return nil, err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventActivationResent,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return &ResendActivationResponse{Success: true}, nil
}
