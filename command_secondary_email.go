package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type SendSecondaryEmailActivationMessage struct {
	SecondaryEmailPayload
	User *User
}

func (e SendSecondaryEmailActivationMessage) Type() string {
	return "account.secondary_email.request"
}

type SendSecondaryEmailActivationResponse struct {
	Success bool `json:"success"`
}

// SendSecondaryEmailActivationHandler mails a confirmation link to the
// candidate address. Nothing is persisted here; the address rides inside
// the token until the link is followed.
type SendSecondaryEmailActivationHandler struct {
	repo   RepositoryManager
	status *StatusService
	emails *EmailSender
}

func NewSendSecondaryEmailActivationHandler(repo RepositoryManager, status *StatusService, emails *EmailSender) *SendSecondaryEmailActivationHandler {
	return &SendSecondaryEmailActivationHandler{
		repo:   repo,
		status: status,
		emails: emails,
	}
}

func (h *SendSecondaryEmailActivationHandler) Execute(ctx context.Context, event SendSecondaryEmailActivationMessage) (*SendSecondaryEmailActivationResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendSecondaryEmailActivationHandler) execute(ctx context.Context, event SendSecondaryEmailActivationMessage) (*SendSecondaryEmailActivationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireVerified(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid secondary email payload").
			WithMetadata(map[string]any{
				"fields": FormatValidationErrorToMap(err),
			})
	}

	if err := RequirePasswordConfirmation(event.User, event.SecondaryEmailPayload); err != nil {
		return nil, err
	}

	// Early feedback only. The binding check runs again inside the
	// redemption transaction, which is the guard that actually holds.
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.status.CleanEmail(ctx, tx, event.Email)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check secondary email")
	}

	if err := h.emails.SendSecondaryEmailActivation(ctx, event.User, event.Email); err != nil {
		return nil, err
	}

	return &SendSecondaryEmailActivationResponse{Success: true}, nil
}

type VerifySecondaryEmailMessage struct {
	TokenPayload
}

func (e VerifySecondaryEmailMessage) Type() string { return "account.secondary_email.verify" }

type VerifySecondaryEmailResponse struct {
	User    *User `json:"user"`
	Success bool  `json:"success"`
}

// VerifySecondaryEmailHandler commits the candidate address carried by the
// token.
type VerifySecondaryEmailHandler struct {
	status *StatusService
}

func NewVerifySecondaryEmailHandler(status *StatusService) *VerifySecondaryEmailHandler {
	return &VerifySecondaryEmailHandler{status: status}
}

func (h *VerifySecondaryEmailHandler) Execute(ctx context.Context, event VerifySecondaryEmailMessage) (*VerifySecondaryEmailResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifySecondaryEmailHandler) execute(ctx context.Context, event VerifySecondaryEmailMessage) (*VerifySecondaryEmailResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	user, err := h.status.VerifySecondaryEmail(ctx, event.Token)
	if err != nil {
		return nil, err
	}

	return &VerifySecondaryEmailResponse{User: user, Success: true}, nil
}

type SwapEmailsMessage struct {
	PasswordOnlyPayload
	User *User
}

func (e SwapEmailsMessage) Type() string { return "account.emails.swap" }

type SwapEmailsResponse struct {
	User    *User `json:"user"`
	Success bool  `json:"success"`
}

// SwapEmailsHandler exchanges the primary email with the secondary slot.
type SwapEmailsHandler struct {
	status *StatusService
}

func NewSwapEmailsHandler(status *StatusService) *SwapEmailsHandler {
	return &SwapEmailsHandler{status: status}
}

func (h *SwapEmailsHandler) Execute(ctx context.Context, event SwapEmailsMessage) (*SwapEmailsResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email swap",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SwapEmailsHandler) execute(ctx context.Context, event SwapEmailsMessage) (*SwapEmailsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireSecondaryEmail(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid swap payload")
	}

	if err := RequirePasswordConfirmation(event.User, event.PasswordOnlyPayload); err != nil {
		return nil, err
	}

	if err := h.status.SwapEmails(ctx, event.User); err != nil {
		return nil, err
	}

	return &SwapEmailsResponse{User: event.User, Success: true}, nil
}

type RemoveSecondaryEmailMessage struct {
	PasswordOnlyPayload
	User *User
}

func (e RemoveSecondaryEmailMessage) Type() string { return "account.secondary_email.remove" }

type RemoveSecondaryEmailResponse struct {
	User    *User `json:"user"`
	Success bool  `json:"success"`
}

// RemoveSecondaryEmailHandler clears the secondary slot.
type RemoveSecondaryEmailHandler struct {
	status *StatusService
}

func NewRemoveSecondaryEmailHandler(status *StatusService) *RemoveSecondaryEmailHandler {
	return &RemoveSecondaryEmailHandler{status: status}
}

func (h *RemoveSecondaryEmailHandler) Execute(ctx context.Context, event RemoveSecondaryEmailMessage) (*RemoveSecondaryEmailResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secondary email removal",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RemoveSecondaryEmailHandler) execute(ctx context.Context, event RemoveSecondaryEmailMessage) (*RemoveSecondaryEmailResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := RequireSecondaryEmail(event.User); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid removal payload")
	}

	if err := RequirePasswordConfirmation(event.User, event.PasswordOnlyPayload); err != nil {
		return nil, err
	}

	if err := h.status.RemoveSecondaryEmail(ctx, event.User); err != nil {
		return nil, err
	}

	return &RemoveSecondaryEmailResponse{User: event.User, Success: true}, nil
}
