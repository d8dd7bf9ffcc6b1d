package account

import (
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Settings is the recognized option surface. It is assembled once at startup
// and passed by value; nothing in the package mutates it afterwards, so a
// reload means building a new Settings and re-wiring between requests.
type Settings struct {
	SigningKey string
	Issuer     string
	Audience   []string

	// Session token lifetimes.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Per action expiry windows for signed action tokens. Enforced at
	// redemption time, not embedded in the token.
	ActivationTokenMaxAge     time.Duration
	PasswordResetTokenMaxAge  time.Duration
	PasswordSetTokenMaxAge    time.Duration
	SecondaryEmailTokenMaxAge time.Duration

	// Which identity fields may be combined with a password on login.
	LoginAllowedFields []string

	AllowLoginNotVerified         bool
	AllowLoginWithSecondaryEmail  bool
	AllowPasswordlessRegistration bool
	SendActivationEmail           bool
	SendPasswordSetEmail          bool

	// AllowDeleteAccount switches DeleteAccount between a hard row delete
	// and a soft deactivation. Refresh tokens are revoked either way.
	AllowDeleteAccount bool

	// EmailAsync dispatches mail on a fire and forget goroutine; a dispatch
	// failure never fails the surrounding mutation.
	EmailAsync bool

	// Profile fields UpdateAccount may touch.
	UpdateAccountFields []string

	MinPasswordLength int

	// URL patterns receiving the action token via %s.
	ActivationURL     string
	PasswordResetURL  string
	PasswordSetURL    string
	SecondaryEmailURL string

	SiteName string

	// SMTP delivery. Empty host disables outbound mail (development mode).
	SMTPHost     string
	SMTPUser     string
	SMTPPassword string
	MailAddress  string
	MailName     string
}

// SettingsOption overrides a default during construction.
type SettingsOption func(*Settings)

// NewSettings returns the package defaults with the given overrides applied.
func NewSettings(opts ...SettingsOption) Settings {
	s := Settings{
		AccessTokenTTL:                time.Hour,
		RefreshTokenTTL:               7 * 24 * time.Hour,
		ActivationTokenMaxAge:         7 * 24 * time.Hour,
		PasswordResetTokenMaxAge:      time.Hour,
		PasswordSetTokenMaxAge:        time.Hour,
		SecondaryEmailTokenMaxAge:     7 * 24 * time.Hour,
		LoginAllowedFields:            []string{"email", "username"},
		AllowLoginNotVerified:         false,
		AllowLoginWithSecondaryEmail:  true,
		AllowPasswordlessRegistration: false,
		SendActivationEmail:           true,
		SendPasswordSetEmail:          true,
		AllowDeleteAccount:            false,
		EmailAsync:                    false,
		UpdateAccountFields:           []string{"first_name", "last_name"},
		MinPasswordLength:             8,
		ActivationURL:                 "/activate/%s",
		PasswordResetURL:              "/password-reset/%s",
		PasswordSetURL:                "/password-set/%s",
		SecondaryEmailURL:             "/activate-secondary-email/%s",
		SiteName:                      "go-account",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	return s
}

// NewSettingsFromEnv loads the optional dotenv files then reads the
// environment on top of the defaults.
func NewSettingsFromEnv(files ...string) (Settings, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Settings{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load env file")
		}
	}

	s := NewSettings()

	s.SigningKey = envString("ACCOUNT_SIGNING_KEY", s.SigningKey)
	s.Issuer = envString("ACCOUNT_ISSUER", s.Issuer)
	if aud := envString("ACCOUNT_AUDIENCE", ""); aud != "" {
		s.Audience = splitAndTrim(aud)
	}

	s.AccessTokenTTL = envDuration("ACCOUNT_ACCESS_TOKEN_TTL", s.AccessTokenTTL)
	s.RefreshTokenTTL = envDuration("ACCOUNT_REFRESH_TOKEN_TTL", s.RefreshTokenTTL)
	s.ActivationTokenMaxAge = envDuration("ACCOUNT_ACTIVATION_TOKEN_MAX_AGE", s.ActivationTokenMaxAge)
	s.PasswordResetTokenMaxAge = envDuration("ACCOUNT_PASSWORD_RESET_TOKEN_MAX_AGE", s.PasswordResetTokenMaxAge)
	s.PasswordSetTokenMaxAge = envDuration("ACCOUNT_PASSWORD_SET_TOKEN_MAX_AGE", s.PasswordSetTokenMaxAge)
	s.SecondaryEmailTokenMaxAge = envDuration("ACCOUNT_SECONDARY_EMAIL_TOKEN_MAX_AGE", s.SecondaryEmailTokenMaxAge)

	if fields := envString("ACCOUNT_LOGIN_ALLOWED_FIELDS", ""); fields != "" {
		s.LoginAllowedFields = splitAndTrim(fields)
	}
	if fields := envString("ACCOUNT_UPDATE_FIELDS", ""); fields != "" {
		s.UpdateAccountFields = splitAndTrim(fields)
	}

	s.AllowLoginNotVerified = envBool("ACCOUNT_ALLOW_LOGIN_NOT_VERIFIED", s.AllowLoginNotVerified)
	s.AllowLoginWithSecondaryEmail = envBool("ACCOUNT_ALLOW_LOGIN_SECONDARY_EMAIL", s.AllowLoginWithSecondaryEmail)
	s.AllowPasswordlessRegistration = envBool("ACCOUNT_ALLOW_PASSWORDLESS_REGISTRATION", s.AllowPasswordlessRegistration)
	s.SendActivationEmail = envBool("ACCOUNT_SEND_ACTIVATION_EMAIL", s.SendActivationEmail)
	s.SendPasswordSetEmail = envBool("ACCOUNT_SEND_PASSWORD_SET_EMAIL", s.SendPasswordSetEmail)
	s.AllowDeleteAccount = envBool("ACCOUNT_ALLOW_DELETE_ACCOUNT", s.AllowDeleteAccount)
	s.EmailAsync = envBool("ACCOUNT_EMAIL_ASYNC", s.EmailAsync)

	s.MinPasswordLength = envInt("ACCOUNT_MIN_PASSWORD_LENGTH", s.MinPasswordLength)

	s.ActivationURL = envString("ACCOUNT_ACTIVATION_URL", s.ActivationURL)
	s.PasswordResetURL = envString("ACCOUNT_PASSWORD_RESET_URL", s.PasswordResetURL)
	s.PasswordSetURL = envString("ACCOUNT_PASSWORD_SET_URL", s.PasswordSetURL)
	s.SecondaryEmailURL = envString("ACCOUNT_SECONDARY_EMAIL_URL", s.SecondaryEmailURL)
	s.SiteName = envString("ACCOUNT_SITE_NAME", s.SiteName)

	s.SMTPHost = envString("ACCOUNT_SMTP_HOST", s.SMTPHost)
	s.SMTPUser = envString("ACCOUNT_SMTP_USER", s.SMTPUser)
	s.SMTPPassword = envString("ACCOUNT_SMTP_PASSWORD", s.SMTPPassword)
	s.MailAddress = envString("ACCOUNT_MAIL_ADDRESS", s.MailAddress)
	s.MailName = envString("ACCOUNT_MAIL_NAME", s.MailName)

	return s, nil
}

// Validate checks the options an application cannot run without.
func (s Settings) Validate() error {
	if s.SigningKey == "" {
		return goerrors.New("settings require a signing key", goerrors.CategoryBadInput)
	}
	if len(s.LoginAllowedFields) == 0 {
		return goerrors.New("settings require at least one login field", goerrors.CategoryBadInput)
	}
	return nil
}

// LoginFieldAllowed reports whether an identity field may be used on login.
func (s Settings) LoginFieldAllowed(field string) bool {
	for _, f := range s.LoginAllowedFields {
		if f == field {
			return true
		}
	}
	return false
}

// UpdateFieldAllowed reports whether UpdateAccount may touch the field.
func (s Settings) UpdateFieldAllowed(field string) bool {
	for _, f := range s.UpdateAccountFields {
		if f == field {
			return true
		}
	}
	return false
}

// TokenMaxAge resolves the expiry window for an action tag.
func (s Settings) TokenMaxAge(action TokenAction) time.Duration {
	switch action {
	case TokenActionActivation:
		return s.ActivationTokenMaxAge
	case TokenActionPasswordReset:
		return s.PasswordResetTokenMaxAge
	case TokenActionPasswordSet:
		return s.PasswordSetTokenMaxAge
	case TokenActionSecondaryEmail:
		return s.SecondaryEmailTokenMaxAge
	}
	return 0
}

func WithSigningKey(key string) SettingsOption {
	return func(s *Settings) { s.SigningKey = key }
}

func WithIssuer(issuer string) SettingsOption {
	return func(s *Settings) { s.Issuer = issuer }
}

func WithLoginAllowedFields(fields ...string) SettingsOption {
	return func(s *Settings) { s.LoginAllowedFields = fields }
}

func WithPasswordlessRegistration(allow bool) SettingsOption {
	return func(s *Settings) { s.AllowPasswordlessRegistration = allow }
}

func WithLoginNotVerified(allow bool) SettingsOption {
	return func(s *Settings) { s.AllowLoginNotVerified = allow }
}

func WithHardDelete(allow bool) SettingsOption {
	return func(s *Settings) { s.AllowDeleteAccount = allow }
}

func WithAsyncEmail(async bool) SettingsOption {
	return func(s *Settings) { s.EmailAsync = async }
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
