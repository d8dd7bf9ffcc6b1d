package account_test

import (
	"context"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAccountFlipsFlagOnce(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerUser(t, m, "pepe@example.com", "hunter2hunter2")

	token, err := m.ActionTokens().Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	resp, err := m.VerifyAccount.Execute(ctx, account.VerifyAccountMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	require.NoError(t, err)
	assert.True(t, resp.User.Status.Verified)

	// Redeeming again, or with a second token, is a conflict.
	_, err = m.VerifyAccount.Execute(ctx, account.VerifyAccountMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeAlreadyVerified))
}

func TestResendActivationEmail(t *testing.T) {
	m, box := newTestModule(t)
	ctx := context.Background()

	registerUser(t, m, "pepe@example.com", "hunter2hunter2")
	before := box.count()

	resp, err := m.ResendActivation.Execute(ctx, account.ResendActivationMessage{
		EmailPayload: account.EmailPayload{Email: "pepe@example.com"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, before+1, box.count())

	// Unknown addresses do not leak existence.
	resp, err = m.ResendActivation.Execute(ctx, account.ResendActivationMessage{
		EmailPayload: account.EmailPayload{Email: "nobody@example.com"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, before+1, box.count())
}

func TestResendActivationAlreadyVerified(t *testing.T) {
	m, _ := newTestModule(t)

	registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.ResendActivation.Execute(context.Background(), account.ResendActivationMessage{
		EmailPayload: account.EmailPayload{Email: "pepe@example.com"},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeAlreadyVerified))
}

func TestSecondaryEmailFullFlow(t *testing.T) {
	m, box := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.SendSecondaryEmail.Execute(ctx, account.SendSecondaryEmailActivationMessage{
		User: user,
		SecondaryEmailPayload: account.SecondaryEmailPayload{
			Email:    "alt@example.com",
			Password: "hunter2hunter2",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "alt@example.com", box.last(t).To)

	// Nothing persisted until the link is followed.
	status, err := m.Repos().Statuses().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, status.SecondaryEmail)

	token, err := m.ActionTokens().Issue(user, account.TokenActionSecondaryEmail,
		map[string]string{"secondary_email": "alt@example.com"})
	require.NoError(t, err)

	resp, err := m.VerifySecondaryEmail.Execute(ctx, account.VerifySecondaryEmailMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	require.NoError(t, err)
	assert.Equal(t, "alt@example.com", resp.User.Status.SecondaryEmail)
}

func TestSecondaryEmailRequestRejectsTakenAddress(t *testing.T) {
	m, _ := newTestModule(t)

	registerVerifiedUser(t, m, "other@example.com", "hunter2hunter2")
	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.SendSecondaryEmail.Execute(context.Background(), account.SendSecondaryEmailActivationMessage{
		User: user,
		SecondaryEmailPayload: account.SecondaryEmailPayload{
			Email:    "other@example.com",
			Password: "hunter2hunter2",
		},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeEmailInUse))
}

// The address was free at issuance but claimed before redemption. The
// in-transaction re-check catches the race.
func TestSecondaryEmailRedemptionRechecksUniqueness(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	token, err := m.ActionTokens().Issue(user, account.TokenActionSecondaryEmail,
		map[string]string{"secondary_email": "alt@example.com"})
	require.NoError(t, err)

	registerVerifiedUser(t, m, "alt@example.com", "hunter2hunter2")

	_, err = m.VerifySecondaryEmail.Execute(ctx, account.VerifySecondaryEmailMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeEmailInUse))
}

func TestSecondaryEmailRequestRequiresVerifiedAccount(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.SendSecondaryEmail.Execute(context.Background(), account.SendSecondaryEmailActivationMessage{
		User: user,
		SecondaryEmailPayload: account.SecondaryEmailPayload{
			Email:    "alt@example.com",
			Password: "hunter2hunter2",
		},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeNotVerified))
}

func TestSwapEmails(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	token, err := m.ActionTokens().Issue(user, account.TokenActionSecondaryEmail,
		map[string]string{"secondary_email": "alt@example.com"})
	require.NoError(t, err)
	verified, err := m.VerifySecondaryEmail.Execute(ctx, account.VerifySecondaryEmailMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	require.NoError(t, err)

	resp, err := m.SwapEmails.Execute(ctx, account.SwapEmailsMessage{
		User:                verified.User,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alt@example.com", resp.User.Email)
	assert.Equal(t, "pepe@example.com", resp.User.Status.SecondaryEmail)

	// Persisted, not just mutated in memory.
	fromDB, err := m.Repos().Users().GetByEmail(ctx, "alt@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, user.ID, fromDB.ID)
	assert.Equal(t, "pepe@example.com", fromDB.Status.SecondaryEmail)
}

func TestSwapEmailsRequiresSecondary(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.SwapEmails.Execute(context.Background(), account.SwapEmailsMessage{
		User:                user,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeSecondaryEmailRequired))
}

func TestRemoveSecondaryEmail(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	token, err := m.ActionTokens().Issue(user, account.TokenActionSecondaryEmail,
		map[string]string{"secondary_email": "alt@example.com"})
	require.NoError(t, err)
	verified, err := m.VerifySecondaryEmail.Execute(ctx, account.VerifySecondaryEmailMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	require.NoError(t, err)

	resp, err := m.RemoveSecondaryEmail.Execute(ctx, account.RemoveSecondaryEmailMessage{
		User:                verified.User,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.User.Status.SecondaryEmail)

	status, err := m.Repos().Statuses().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, status.SecondaryEmail)
}

func TestArchiveThenDeleteLifecycle(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.Tokens().IssuePair(ctx, user)
	require.NoError(t, err)

	archived, err := m.ArchiveAccount.Execute(ctx, account.ArchiveAccountMessage{
		User:                user,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, archived.Revoked)

	// Soft delete by default: the row stays, deactivated.
	deleted, err := m.DeleteAccount.Execute(ctx, account.DeleteAccountMessage{
		User:                user,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	require.NoError(t, err)
	assert.False(t, deleted.HardDeleted)

	fromDB, err := m.Repos().Users().GetByEmail(ctx, "pepe@example.com", false)
	require.NoError(t, err)
	assert.False(t, fromDB.IsActive)

	// Deactivated accounts cannot authenticate.
	_, err = loginWith(m, account.LoginPayload{
		Email:    "pepe@example.com",
		Password: "hunter2hunter2",
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidCredentials))
}

func TestArchiveRecordsTokenRevocation(t *testing.T) {
	db := newTestDB(t)
	box := &mailbox{}
	sink := &capturingSink{}

	m, err := account.NewModule(db, newTestSettings(),
		account.WithModuleMailer(box.mailer()),
		account.WithModuleActivitySink(sink))
	require.NoError(t, err)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err = loginWith(m, account.LoginPayload{
		Email:    "pepe@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	resp, err := m.ArchiveAccount.Execute(ctx, account.ArchiveAccountMessage{
		User:                user,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Revoked)
	assert.True(t, sink.has(account.ActivityEventTokensRevoked))
}

func TestDeleteAccountHardMode(t *testing.T) {
	m, _ := newTestModule(t, account.WithHardDelete(true))
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	resp, err := m.DeleteAccount.Execute(ctx, account.DeleteAccountMessage{
		User:                user,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "hunter2hunter2"},
	})
	require.NoError(t, err)
	assert.True(t, resp.HardDeleted)

	_, err = m.Repos().Users().GetByEmail(ctx, "pepe@example.com", false)
	assert.Error(t, err)

	_, err = m.Repos().Statuses().GetByUserID(ctx, user.ID)
	assert.Error(t, err)
}

func TestDeleteAccountRequiresPassword(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.DeleteAccount.Execute(context.Background(), account.DeleteAccountMessage{
		User:                user,
		PasswordOnlyPayload: account.PasswordOnlyPayload{Password: "wrong-password"},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeInvalidPassword))
}
