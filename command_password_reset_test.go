package account_test

import (
	"context"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPasswordResetUnknownAddressSucceedsQuietly(t *testing.T) {
	m, box := newTestModule(t)

	resp, err := m.SendPasswordReset.Execute(context.Background(), account.SendPasswordResetMessage{
		EmailPayload: account.EmailPayload{Email: "nobody@example.com"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, box.count())
}

func TestSendPasswordResetDeliversLink(t *testing.T) {
	m, box := newTestModule(t)

	registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")
	before := box.count()

	_, err := m.SendPasswordReset.Execute(context.Background(), account.SendPasswordResetMessage{
		EmailPayload: account.EmailPayload{Email: "pepe@example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, before+1, box.count())
	assert.Contains(t, box.last(t).Body, "/password-reset/")
}

func TestSendPasswordResetUnverifiedGetsActivationInstead(t *testing.T) {
	m, box := newTestModule(t)

	registerUser(t, m, "pepe@example.com", "hunter2hunter2")
	before := box.count()

	_, err := m.SendPasswordReset.Execute(context.Background(), account.SendPasswordResetMessage{
		EmailPayload: account.EmailPayload{Email: "pepe@example.com"},
	})
	require.Error(t, err)
	assert.True(t, account.HasTextCode(err, account.TextCodeNotVerified))

	require.Equal(t, before+1, box.count())
	assert.Contains(t, box.last(t).Body, "/activate/")
}

func TestPasswordResetRevokesAllSessions(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	for i := 0; i < 2; i++ {
		_, err := m.Tokens().IssuePair(ctx, user)
		require.NoError(t, err)
	}

	token, err := m.ActionTokens().Issue(user, account.TokenActionPasswordReset, nil)
	require.NoError(t, err)

	resp, err := m.PasswordReset.Execute(ctx, account.PasswordResetMessage{
		SetPasswordPayload: account.SetPasswordPayload{
			Token:        token,
			NewPassword1: "newpassword1234",
			NewPassword2: "newpassword1234",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Revoked)

	active, err := m.Repos().RefreshTokens().ActiveForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	// The old password is gone, the new one works.
	_, err = loginWith(m, account.LoginPayload{
		Email:    "pepe@example.com",
		Password: "hunter2hunter2",
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidCredentials))

	login, err := loginWith(m, account.LoginPayload{
		Email:    "pepe@example.com",
		Password: "newpassword1234",
	})
	require.NoError(t, err)
	assert.True(t, login.Success)
}

func TestPasswordResetAutoVerifies(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerUser(t, m, "pepe@example.com", "hunter2hunter2")
	require.False(t, user.Status.Verified)

	token, err := m.ActionTokens().Issue(user, account.TokenActionPasswordReset, nil)
	require.NoError(t, err)

	resp, err := m.PasswordReset.Execute(ctx, account.PasswordResetMessage{
		SetPasswordPayload: account.SetPasswordPayload{
			Token:        token,
			NewPassword1: "newpassword1234",
			NewPassword2: "newpassword1234",
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.User.Status.Verified)

	status, err := m.Repos().Statuses().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, status.Verified)
}

func TestPasswordResetRejectsWrongActionToken(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	token, err := m.ActionTokens().Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	_, err = m.PasswordReset.Execute(context.Background(), account.PasswordResetMessage{
		SetPasswordPayload: account.SetPasswordPayload{
			Token:        token,
			NewPassword1: "newpassword1234",
			NewPassword2: "newpassword1234",
		},
	})
	assert.True(t, account.IsInvalidTokenError(err))
}

func TestPasswordSetOnlyOnce(t *testing.T) {
	m, _ := newTestModule(t, account.WithPasswordlessRegistration(true))
	ctx := context.Background()

	resp, err := m.Register.Execute(ctx, account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{Email: "pepe@example.com"},
	})
	require.NoError(t, err)
	user := resp.User
	require.False(t, user.HasUsablePassword())

	token, err := m.ActionTokens().Issue(user, account.TokenActionPasswordSet, nil)
	require.NoError(t, err)

	setResp, err := m.PasswordSet.Execute(ctx, account.PasswordSetMessage{
		SetPasswordPayload: account.SetPasswordPayload{
			Token:        token,
			NewPassword1: "hunter2hunter2",
			NewPassword2: "hunter2hunter2",
		},
	})
	require.NoError(t, err)
	assert.True(t, setResp.User.HasUsablePassword())
	assert.True(t, setResp.User.Status.Verified)

	// The same token within its window is now useless.
	token2, err := m.ActionTokens().Issue(setResp.User, account.TokenActionPasswordSet, nil)
	require.NoError(t, err)

	_, err = m.PasswordSet.Execute(ctx, account.PasswordSetMessage{
		SetPasswordPayload: account.SetPasswordPayload{
			Token:        token2,
			NewPassword1: "anotherpass1234",
			NewPassword2: "anotherpass1234",
		},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodePasswordAlreadySet))
}

func TestPasswordChangeRotatesCredentials(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	login, err := loginWith(m, account.LoginPayload{
		Email:    "pepe@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	resp, err := m.PasswordChange.Execute(ctx, account.PasswordChangeMessage{
		User: user,
		ChangePasswordPayload: account.ChangePasswordPayload{
			OldPassword:  "hunter2hunter2",
			NewPassword1: "newpassword1234",
			NewPassword2: "newpassword1234",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Tokens)

	// The pre-change refresh token died with the old password.
	_, err = m.Tokens().Refresh(ctx, login.Tokens.RefreshToken, user)
	assert.True(t, account.IsInvalidTokenError(err))

	_, err = m.Tokens().Refresh(ctx, resp.Tokens.RefreshToken, user)
	assert.NoError(t, err)
}

func TestPasswordChangeRequiresOldPassword(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.PasswordChange.Execute(context.Background(), account.PasswordChangeMessage{
		User: user,
		ChangePasswordPayload: account.ChangePasswordPayload{
			OldPassword:  "wrong-password",
			NewPassword1: "newpassword1234",
			NewPassword2: "newpassword1234",
		},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidPassword))
}
