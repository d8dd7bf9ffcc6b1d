package account

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenAction scopes a signed action token to exactly one account-state
// transition. A token minted for one action can never be redeemed by a
// handler expecting another.
type TokenAction string

const (
	TokenActionActivation     TokenAction = "activation"
	TokenActionPasswordReset  TokenAction = "password_reset"
	TokenActionSecondaryEmail TokenAction = "activation_secondary_email"
	TokenActionPasswordSet    TokenAction = "password_set"
)

// ActionTokenPayload is what a successful redemption yields: the user lookup
// key plus whatever extra claims the issuing flow attached.
type ActionTokenPayload struct {
	Username string
	Extra    map[string]string
}

type actionClaims struct {
	jwt.RegisteredClaims
	Action string            `json:"act"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// ActionTokenService issues and redeems purpose scoped tokens. Tokens are
// stateless: validity is signature plus age against a caller supplied window
// checked at redemption time, so no storage table is needed and the scheme
// survives horizontal scaling for free.
type ActionTokenService struct {
	signingKey []byte
	issuer     string
	logger     Logger
	now        func() time.Time
}

// NewActionTokenService creates an action token codec.
func NewActionTokenService(signingKey []byte, issuer string) *ActionTokenService {
	return &ActionTokenService{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     defLogger{},
		now:        time.Now,
	}
}

// WithLogger overrides the service logger.
func (s *ActionTokenService) WithLogger(logger Logger) *ActionTokenService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *ActionTokenService) WithClock(clock func() time.Time) *ActionTokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue mints a signed token carrying the user's lookup key, the action tag,
// and optional extra claims. No expiry is embedded; the window is enforced
// against the issuance timestamp when the token comes back.
func (s *ActionTokenService) Issue(user *User, action TokenAction, extra map[string]string) (string, error) {
	if user == nil {
		return "", goerrors.New("user is required to issue an action token", goerrors.CategoryBadInput)
	}

	claims := &actionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  user.Username,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
		Action: string(action),
	}
	if len(extra) > 0 {
		claims.Extra = make(map[string]string, len(extra))
		for k, v := range extra {
			claims.Extra[k] = v
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign action token")
	}

	return signed, nil
}

// Redeem verifies signature, action scope, and age. A scope mismatch is
// reported exactly like a corrupted token.
func (s *ActionTokenService) Redeem(tokenString string, expected TokenAction, maxAge time.Duration) (*ActionTokenPayload, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &actionClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		s.logger.Debug("action token parse failed", "error", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*actionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Action != string(expected) {
		return nil, ErrInvalidToken
	}

	if claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	if maxAge > 0 && s.now().Sub(claims.IssuedAt.Time) > maxAge {
		return nil, ErrExpiredToken
	}

	return &ActionTokenPayload{
		Username: claims.Subject,
		Extra:    claims.Extra,
	}, nil
}
