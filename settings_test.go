package account_test

import (
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	s := account.NewSettings()

	assert.Equal(t, time.Hour, s.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, s.RefreshTokenTTL)
	assert.Equal(t, []string{"email", "username"}, s.LoginAllowedFields)
	assert.True(t, s.SendActivationEmail)
	assert.True(t, s.AllowLoginWithSecondaryEmail)
	assert.False(t, s.AllowLoginNotVerified)
	assert.False(t, s.AllowPasswordlessRegistration)
	assert.False(t, s.AllowDeleteAccount)
	assert.Equal(t, 8, s.MinPasswordLength)
}

func TestSettingsValidate(t *testing.T) {
	err := account.NewSettings().Validate()
	require.Error(t, err)

	err = account.NewSettings(account.WithSigningKey("secret")).Validate()
	assert.NoError(t, err)

	err = account.NewSettings(
		account.WithSigningKey("secret"),
		account.WithLoginAllowedFields(),
	).Validate()
	assert.Error(t, err)
}

func TestSettingsFieldGates(t *testing.T) {
	s := account.NewSettings(account.WithLoginAllowedFields("email"))

	assert.True(t, s.LoginFieldAllowed("email"))
	assert.False(t, s.LoginFieldAllowed("username"))

	assert.True(t, s.UpdateFieldAllowed("first_name"))
	assert.False(t, s.UpdateFieldAllowed("email"))
	assert.False(t, s.UpdateFieldAllowed("password_hash"))
}

func TestSettingsTokenMaxAge(t *testing.T) {
	s := account.NewSettings()

	assert.Equal(t, 7*24*time.Hour, s.TokenMaxAge(account.TokenActionActivation))
	assert.Equal(t, time.Hour, s.TokenMaxAge(account.TokenActionPasswordReset))
	assert.Equal(t, time.Hour, s.TokenMaxAge(account.TokenActionPasswordSet))
	assert.Equal(t, 7*24*time.Hour, s.TokenMaxAge(account.TokenActionSecondaryEmail))
	assert.Equal(t, time.Duration(0), s.TokenMaxAge(account.TokenAction("bogus")))
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("ACCOUNT_SIGNING_KEY", "env-secret")
	t.Setenv("ACCOUNT_ACCESS_TOKEN_TTL", "30m")
	t.Setenv("ACCOUNT_LOGIN_ALLOWED_FIELDS", "email, username ,")
	t.Setenv("ACCOUNT_ALLOW_DELETE_ACCOUNT", "true")
	t.Setenv("ACCOUNT_MIN_PASSWORD_LENGTH", "12")

	s, err := account.NewSettingsFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "env-secret", s.SigningKey)
	assert.Equal(t, 30*time.Minute, s.AccessTokenTTL)
	assert.Equal(t, []string{"email", "username"}, s.LoginAllowedFields)
	assert.True(t, s.AllowDeleteAccount)
	assert.Equal(t, 12, s.MinPasswordLength)
}

func TestSettingsFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ACCOUNT_ACCESS_TOKEN_TTL", "not-a-duration")
	t.Setenv("ACCOUNT_MIN_PASSWORD_LENGTH", "twelve")

	s, err := account.NewSettingsFromEnv()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, s.AccessTokenTTL)
	assert.Equal(t, 8, s.MinPasswordLength)
}
