package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterMessage struct {
	RegisterPayload
	UseHashid bool
}

func (e RegisterMessage) Type() string { return "account.register" }

// RegisterResponse reports the created account. Tokens are populated only
// when the configuration lets a fresh account authenticate immediately.
type RegisterResponse struct {
	User    *User      `json:"user"`
	Tokens  *TokenPair `json:"tokens,omitempty"`
	Success bool       `json:"success"`
}

// RegisterHandler creates the user row, its status companion, and the
// initial password hash. Passwordless registrations store an unusable
// sentinel until the password set token is redeemed.
type RegisterHandler struct {
	repo     RepositoryManager
	status   *StatusService
	tokens   *TokenService
	emails   *EmailSender
	settings Settings
	activity ActivitySink
	logger   Logger
}

// NewRegisterHandler wires the registration flow.
func NewRegisterHandler(repo RepositoryManager, status *StatusService, tokens *TokenService, emails *EmailSender, settings Settings) *RegisterHandler {
	return &RegisterHandler{
		repo:     repo,
		status:   status,
		tokens:   tokens,
		emails:   emails,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving registration events.
func (h *RegisterHandler) WithActivitySink(sink ActivitySink) *RegisterHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *RegisterHandler) WithLogger(logger Logger) *RegisterHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterHandler) Execute(ctx context.Context, event RegisterMessage) (*RegisterResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterHandler) execute(ctx context.Context, event RegisterMessage) (*RegisterResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(h.settings); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration data").
			WithTextCode(TextCodeInvalidRegistration).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"fields": FormatValidationErrorToMap(err),
			})
	}

	passwordless := event.Password1 == ""
	if passwordless && !h.settings.AllowPasswordlessRegistration {
		return nil, goerrors.New("password is required", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidRegistration).
			WithCode(goerrors.CodeBadRequest)
	}

	user := &User{
		Username:  event.Username,
		Email:     event.Email,
		FirstName: event.FirstName,
		LastName:  event.LastName,
	}

	if passwordless {
		user.PasswordHash = UnusablePassword()
	} else {
		hash, err := HashPassword(event.Password1)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		user.PasswordHash = hash
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			user.ID = id
		}
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.status.CleanEmail(ctx, tx, event.Email); err != nil {
			return err
		}

		created, err := h.repo.Users().CreateWithStatusTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		user = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "registration transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	resp := &RegisterResponse{User: user, Success: true}

	// The account exists either way; a delivery failure downgrades the
	// response instead of rolling back the row.
	if passwordless {
		if h.settings.SendPasswordSetEmail {
			if err := h.emails.SendPasswordSetEmail(ctx, user); err != nil {
				h.logger.Error("password set email failed for %s: %v", user.Email, err)
				return resp, ErrActivationEmailFailed
			}
		}
		return resp, nil
	}

	if h.settings.SendActivationEmail {
		if err := h.emails.SendActivationEmail(ctx, user); err != nil {
			h.logger.Error("activation email failed for %s: %v", user.Email, err)
			return resp, ErrActivationEmailFailed
		}
	}

	// Tokens only when an unverified account is allowed to hold a session;
	// otherwise login would refuse the very account register just minted.
	if h.settings.AllowLoginNotVerified {
		pair, err := h.tokens.IssuePair(ctx, user)
		if err != nil {
			h.logger.Error("token issue after registration failed: %v", err)
			return resp, nil
		}
		resp.Tokens = pair
	}

	return resp, nil
}
