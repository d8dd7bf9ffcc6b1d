package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type LoginMessage struct {
	LoginPayload
}

func (e LoginMessage) Type() string { return "auth.login" }

// LoginResponse reports the token pair plus whether the login reactivated
// an archived account.
type LoginResponse struct {
	User        *User      `json:"user"`
	Tokens      *TokenPair `json:"tokens"`
	Unarchiving bool       `json:"unarchiving"`
	Success     bool       `json:"success"`
}

// LoginHandler authenticates a password against exactly one identity field.
// Archived accounts come back automatically once the password checks out.
type LoginHandler struct {
	repo     RepositoryManager
	status   *StatusService
	tokens   *TokenService
	settings Settings
	activity ActivitySink
	logger   Logger
}

func NewLoginHandler(repo RepositoryManager, status *StatusService, tokens *TokenService, settings Settings) *LoginHandler {
	return &LoginHandler{
		repo:     repo,
		status:   status,
		tokens:   tokens,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving login events.
func (h *LoginHandler) WithActivitySink(sink ActivitySink) *LoginHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the handler logger.
func (h *LoginHandler) WithLogger(logger Logger) *LoginHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) (*LoginResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) (*LoginResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	fields := event.IdentityFields()
	if len(fields) != 1 {
		return nil, sentinelWithMetadata(ErrWrongUsage, map[string]any{
			"hint": "provide exactly one identity field together with the password",
		})
	}

	var field, value string
	for f, v := range fields {
		field, value = f, v
	}

	if !h.settings.LoginFieldAllowed(field) {
		return nil, sentinelWithMetadata(ErrWrongUsage, map[string]any{
			"field": field,
		})
	}

	includeSecondary := field == "email" && h.settings.AllowLoginWithSecondaryEmail

	user, err := h.repo.Users().GetByLoginField(ctx, field, value, includeSecondary)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.recordFailure(ctx, nil, field)
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user for login")
	}

	// The password is always checked before any status gate fires, so a
	// NOT_VERIFIED answer only ever reaches someone holding valid
	// credentials. Wrong password on an unverified account looks exactly
	// like a wrong password anywhere else.
	if err := ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
		h.recordFailure(ctx, user, field)
		return nil, ErrInvalidCredentials
	}

	if !user.EnsureStatus().Verified && !h.settings.AllowLoginNotVerified {
		return nil, ErrNotVerified
	}

	if !user.IsActive {
		h.recordFailure(ctx, user, field)
		return nil, ErrInvalidCredentials
	}

	unarchiving := false
	if user.Status.Archived {
		if err := h.status.Unarchive(ctx, user); err != nil {
			return nil, err
		}
		unarchiving = true
	}

	pair, err := h.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"field": field},
	})

	return &LoginResponse{
		User:        user,
		Tokens:      pair,
		Unarchiving: unarchiving,
		Success:     true,
	}, nil
}

func (h *LoginHandler) recordFailure(ctx context.Context, user *User, field string) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Metadata:  map[string]any{"field": field},
	}
	if user != nil {
		event.UserID = user.ID.String()
	}
	recordActivity(ctx, h.activity, h.logger, event)
}

type RefreshTokenMessage struct {
	RefreshPayload
}

func (e RefreshTokenMessage) Type() string { return "auth.refresh" }

type RefreshTokenResponse struct {
	Tokens  *TokenPair `json:"tokens"`
	Success bool       `json:"success"`
}

// RefreshTokenHandler rotates a refresh token into a new pair.
type RefreshTokenHandler struct {
	repo   RepositoryManager
	tokens *TokenService
}

func NewRefreshTokenHandler(repo RepositoryManager, tokens *TokenService) *RefreshTokenHandler {
	return &RefreshTokenHandler{repo: repo, tokens: tokens}
}

func (h *RefreshTokenHandler) Execute(ctx context.Context, event RefreshTokenMessage) (*RefreshTokenResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token refresh",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RefreshTokenHandler) execute(ctx context.Context, event RefreshTokenMessage) (*RefreshTokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid refresh payload")
	}

	userID, err := h.tokens.Owner(ctx, event.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := h.repo.Users().GetByID(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve refresh token owner")
	}

	pair, err := h.tokens.Refresh(ctx, event.RefreshToken, user)
	if err != nil {
		return nil, err
	}

	return &RefreshTokenResponse{Tokens: pair, Success: true}, nil
}

type VerifyTokenMessage struct {
	TokenPayload
}

func (e VerifyTokenMessage) Type() string { return "auth.verify" }

type VerifyTokenResponse struct {
	Claims  *SessionClaims `json:"claims"`
	Success bool           `json:"success"`
}

// VerifyTokenHandler checks an access token and reports its claims without
// touching any stored state.
type VerifyTokenHandler struct {
	tokens *TokenService
}

func NewVerifyTokenHandler(tokens *TokenService) *VerifyTokenHandler {
	return &VerifyTokenHandler{tokens: tokens}
}

func (h *VerifyTokenHandler) Execute(ctx context.Context, event VerifyTokenMessage) (*VerifyTokenResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyTokenHandler) execute(ctx context.Context, event VerifyTokenMessage) (*VerifyTokenResponse, error) {
	_, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	claims, err := h.tokens.Validate(event.Token)
	if err != nil {
		return nil, err
	}

	return &VerifyTokenResponse{Claims: claims, Success: true}, nil
}

type RevokeTokenMessage struct {
	RefreshPayload
}

func (e RevokeTokenMessage) Type() string { return "auth.revoke" }

type RevokeTokenResponse struct {
	RevokedAt time.Time `json:"revoked_at"`
	Success   bool      `json:"success"`
}

// RevokeTokenHandler tombstones a single refresh token.
type RevokeTokenHandler struct {
	tokens *TokenService
}

func NewRevokeTokenHandler(tokens *TokenService) *RevokeTokenHandler {
	return &RevokeTokenHandler{tokens: tokens}
}

func (h *RevokeTokenHandler) Execute(ctx context.Context, event RevokeTokenMessage) (*RevokeTokenResponse, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token revocation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RevokeTokenHandler) execute(ctx context.Context, event RevokeTokenMessage) (*RevokeTokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid revoke payload")
	}

	revokedAt, err := h.tokens.Revoke(ctx, event.RefreshToken)
	if err != nil {
		return nil, err
	}

	return &RevokeTokenResponse{RevokedAt: revokedAt, Success: true}, nil
}
