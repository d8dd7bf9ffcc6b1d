package account_test

import (
	"context"
	"strings"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesUserWithStatus(t *testing.T) {
	m, box := newTestModule(t)
	ctx := context.Background()

	resp, err := m.Register.Execute(ctx, account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe.rone@example.com",
			FirstName: "Pepe",
			Password1: "hunter2hunter2",
			Password2: "hunter2hunter2",
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	user := resp.User
	assert.Equal(t, "pepe.rone", user.Username)
	assert.True(t, user.IsActive)
	assert.True(t, user.HasUsablePassword())

	require.NotNil(t, user.Status)
	assert.False(t, user.Status.Verified)
	assert.False(t, user.Status.Archived)

	// Activation email went out with the token link.
	msg := box.last(t)
	assert.Equal(t, "pepe.rone@example.com", msg.To)
	assert.Contains(t, msg.Body, "/activate/")

	// Verification is pending, so no tokens yet.
	assert.Nil(t, resp.Tokens)
}

func TestRegisterRejectsPasswordMismatch(t *testing.T) {
	m, _ := newTestModule(t)

	_, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe@example.com",
			Password1: "hunter2hunter2",
			Password2: "different1234",
		},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidRegistration))
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	m, _ := newTestModule(t)

	_, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe@example.com",
			Password1: "short",
			Password2: "short",
		},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidRegistration))
}

func TestRegisterEnforcesEmailUniqueness(t *testing.T) {
	m, _ := newTestModule(t)

	registerUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe@example.com",
			Password1: "hunter2hunter2",
			Password2: "hunter2hunter2",
		},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeEmailInUse))
}

func TestRegisterEmailUniquenessCoversSecondarySlot(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	// Claim a secondary address, then try to register a new account on it.
	token, err := m.ActionTokens().Issue(user, account.TokenActionSecondaryEmail,
		map[string]string{"secondary_email": "alt@example.com"})
	require.NoError(t, err)

	_, err = m.VerifySecondaryEmail.Execute(ctx, account.VerifySecondaryEmailMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	require.NoError(t, err)

	_, err = m.Register.Execute(ctx, account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "alt@example.com",
			Password1: "hunter2hunter2",
			Password2: "hunter2hunter2",
		},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeEmailInUse))
}

func TestRegisterPasswordlessStoresUnusableSentinel(t *testing.T) {
	m, box := newTestModule(t, account.WithPasswordlessRegistration(true))

	resp, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email: "pepe@example.com",
		},
	})
	require.NoError(t, err)

	assert.False(t, resp.User.HasUsablePassword())
	assert.True(t, strings.HasPrefix(resp.User.PasswordHash, account.UnusablePasswordPrefix))

	msg := box.last(t)
	assert.Contains(t, msg.Body, "/password-set/")
}

func TestRegisterPasswordlessRejectedWhenDisabled(t *testing.T) {
	m, _ := newTestModule(t)

	_, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email: "pepe@example.com",
		},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidRegistration))
}

func TestRegisterActivationEmailFailureKeepsAccount(t *testing.T) {
	m, box := newTestModule(t)
	box.fail = true

	resp, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe@example.com",
			Password1: "hunter2hunter2",
			Password2: "hunter2hunter2",
		},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeActivationEmailFailed))

	// The row survived the delivery failure.
	require.NotNil(t, resp)
	user, lookupErr := m.Repos().Users().GetByEmail(context.Background(), "pepe@example.com", false)
	require.NoError(t, lookupErr)
	assert.Equal(t, resp.User.ID, user.ID)
}

// Turning off the activation email does not make a fresh account verified,
// so registration still withholds session tokens.
func TestRegisterWithoutActivationEmailWithholdsTokens(t *testing.T) {
	settings := newTestSettings()
	settings.SendActivationEmail = false

	db := newTestDB(t)
	box := &mailbox{}
	m, err := account.NewModule(db, settings, account.WithModuleMailer(box.mailer()))
	require.NoError(t, err)

	resp, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe@example.com",
			Password1: "hunter2hunter2",
			Password2: "hunter2hunter2",
		},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Tokens)
	assert.Zero(t, box.count())

	// Login agrees with registration about the account's standing.
	_, err = loginWith(m, account.LoginPayload{
		Email:    "pepe@example.com",
		Password: "hunter2hunter2",
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeNotVerified))
}

func TestRegisterIssuesTokensWhenUnverifiedLoginAllowed(t *testing.T) {
	m, _ := newTestModule(t, account.WithLoginNotVerified(true))

	resp, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     "pepe@example.com",
			Password1: "hunter2hunter2",
			Password2: "hunter2hunter2",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Tokens)
	assert.NotEmpty(t, resp.Tokens.Token)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)
}

func TestRegisterEmitsActivityEvent(t *testing.T) {
	db := newTestDB(t)
	box := &mailbox{}
	sink := &capturingSink{}

	m, err := account.NewModule(db, newTestSettings(),
		account.WithModuleMailer(box.mailer()),
		account.WithModuleActivitySink(sink))
	require.NoError(t, err)

	registerUser(t, m, "pepe@example.com", "hunter2hunter2")
	assert.True(t, sink.has(account.ActivityEventUserRegistered))
}
