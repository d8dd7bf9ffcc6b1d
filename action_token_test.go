package account_test

import (
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActionTokenService(clock func() time.Time) *account.ActionTokenService {
	svc := account.NewActionTokenService([]byte("test-signing-key"), "go-account-test")
	if clock != nil {
		svc = svc.WithClock(clock)
	}
	return svc
}

func TestActionTokenRoundTrip(t *testing.T) {
	svc := newActionTokenService(nil)
	user := &account.User{Username: "pepe"}

	token, err := svc.Issue(user, account.TokenActionActivation, map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := svc.Redeem(token, account.TokenActionActivation, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "pepe", payload.Username)
	assert.Equal(t, "v", payload.Extra["k"])
}

func TestActionTokenScopeMismatchLooksLikeTamper(t *testing.T) {
	svc := newActionTokenService(nil)
	user := &account.User{Username: "pepe"}

	token, err := svc.Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	for _, action := range []account.TokenAction{
		account.TokenActionPasswordReset,
		account.TokenActionPasswordSet,
		account.TokenActionSecondaryEmail,
	} {
		_, err := svc.Redeem(token, action, time.Hour)
		require.Error(t, err)
		assert.True(t, account.IsInvalidTokenError(err),
			"scope mismatch for %s must report invalid token", action)
		assert.False(t, account.IsTokenExpiredError(err))
	}
}

func TestActionTokenTamperedRejected(t *testing.T) {
	svc := newActionTokenService(nil)
	user := &account.User{Username: "pepe"}

	token, err := svc.Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	_, err = svc.Redeem(token+"x", account.TokenActionActivation, time.Hour)
	assert.True(t, account.IsInvalidTokenError(err))

	other := account.NewActionTokenService([]byte("another-key"), "go-account-test")
	foreign, err := other.Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	_, err = svc.Redeem(foreign, account.TokenActionActivation, time.Hour)
	assert.True(t, account.IsInvalidTokenError(err))
}

func TestActionTokenExpiryWindow(t *testing.T) {
	issuedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := issuedAt

	svc := newActionTokenService(func() time.Time { return now })
	user := &account.User{Username: "pepe"}

	token, err := svc.Issue(user, account.TokenActionPasswordReset, nil)
	require.NoError(t, err)

	now = issuedAt.Add(59 * time.Minute)
	_, err = svc.Redeem(token, account.TokenActionPasswordReset, time.Hour)
	assert.NoError(t, err)

	now = issuedAt.Add(time.Hour + time.Minute)
	_, err = svc.Redeem(token, account.TokenActionPasswordReset, time.Hour)
	assert.True(t, account.IsTokenExpiredError(err))
}

func TestActionTokenDifferentWindowsPerRedeemer(t *testing.T) {
	issuedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := issuedAt

	svc := newActionTokenService(func() time.Time { return now })
	user := &account.User{Username: "pepe"}

	token, err := svc.Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	// The window is a redemption argument, not a token claim: the same
	// token lives or dies depending on the redeeming flow's max age.
	now = issuedAt.Add(2 * time.Hour)

	_, err = svc.Redeem(token, account.TokenActionActivation, time.Hour)
	assert.True(t, account.IsTokenExpiredError(err))

	_, err = svc.Redeem(token, account.TokenActionActivation, 7*24*time.Hour)
	assert.NoError(t, err)
}
