package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// SessionClaims is the access token claim set.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	Username string `json:"uname,omitempty"`
}

// TokenPair is the login payload: a short lived access token plus a long
// lived revocable refresh token.
type TokenPair struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenService issues and validates session access tokens and manages the
// persisted refresh tokens that accompany them.
type TokenService struct {
	signingKey []byte
	settings   Settings
	tokens     RefreshTokens
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a session token service.
func NewTokenService(settings Settings, tokens RefreshTokens) *TokenService {
	return &TokenService{
		signingKey: []byte(settings.SigningKey),
		settings:   settings,
		tokens:     tokens,
		logger:     defLogger{},
		now:        time.Now,
	}
}

// WithLogger overrides the service logger.
func (ts *TokenService) WithLogger(logger Logger) *TokenService {
	if logger != nil {
		ts.logger = logger
	}
	return ts
}

// WithClock injects a custom clock (useful for tests).
func (ts *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// IssuePair signs an access token and persists a fresh refresh token.
func (ts *TokenService) IssuePair(ctx context.Context, user *User) (*TokenPair, error) {
	if user == nil {
		return nil, goerrors.New("user is required to issue tokens", goerrors.CategoryBadInput)
	}

	now := ts.now()
	expiresAt := now.Add(ts.settings.AccessTokenTTL)

	var aud jwt.ClaimStrings
	if len(ts.settings.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.settings.Audience))
		copy(aud, ts.settings.Audience)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.settings.Issuer,
			Subject:   user.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		UID:      user.ID.String(),
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	refresh, err := ts.issueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		Token:        signed,
		RefreshToken: refresh.Token,
		ExpiresAt:    expiresAt,
	}, nil
}

// Validate parses an access token and returns its claims.
func (ts *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.settings.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.settings.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Error("token service could not decode or validate claims")
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair is
// issued. Revoked or aged out tokens are rejected.
func (ts *TokenService) Refresh(ctx context.Context, refreshToken string, user *User) (*TokenPair, error) {
	record, err := ts.tokens.GetByToken(ctx, refreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up refresh token")
	}

	if record.Revoked() {
		return nil, ErrInvalidToken
	}

	if record.Expired(ts.settings.RefreshTokenTTL, ts.now()) {
		return nil, ErrExpiredToken
	}

	if user == nil || record.UserID != user.ID {
		return nil, ErrInvalidToken
	}

	if _, err := ts.tokens.Revoke(ctx, refreshToken); err != nil {
		ts.logger.Warn("failed to revoke rotated refresh token: %v", err)
	}

	return ts.IssuePair(ctx, user)
}

// Owner resolves the user id behind a refresh token without rotating it.
func (ts *TokenService) Owner(ctx context.Context, refreshToken string) (uuid.UUID, error) {
	record, err := ts.tokens.GetByToken(ctx, refreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return uuid.Nil, ErrInvalidToken
		}
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up refresh token")
	}

	if record.Revoked() {
		return uuid.Nil, ErrInvalidToken
	}

	if record.Expired(ts.settings.RefreshTokenTTL, ts.now()) {
		return uuid.Nil, ErrExpiredToken
	}

	return record.UserID, nil
}

// Revoke tombstones a single refresh token and reports when.
func (ts *TokenService) Revoke(ctx context.Context, refreshToken string) (time.Time, error) {
	record, err := ts.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return time.Time{}, ErrInvalidToken
		}
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}

	if record.RevokedAt == nil {
		return ts.now(), nil
	}

	return *record.RevokedAt, nil
}

// RevokeAllForUser is the credential invalidation hook: password change,
// reset, set, archive, and delete all funnel through here.
func (ts *TokenService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) int {
	return ts.tokens.RevokeAllForUser(ctx, userID)
}

func (ts *TokenService) issueRefreshToken(ctx context.Context, userID uuid.UUID) (*RefreshToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate refresh token")
	}

	record := &RefreshToken{
		ID:     uuid.New(),
		UserID: userID,
		Token:  hex.EncodeToString(raw),
	}

	created, err := ts.tokens.Create(ctx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh token")
	}

	return created, nil
}
