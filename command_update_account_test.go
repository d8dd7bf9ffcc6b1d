package account_test

import (
	"context"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAccountWritesAllowedFields(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	resp, err := m.UpdateAccount.Execute(ctx, account.UpdateAccountMessage{
		User: user,
		UpdateAccountPayload: account.UpdateAccountPayload{
			Fields: map[string]string{
				"first_name": "Pepe",
				"last_name":  "Rone",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pepe", resp.User.FirstName)
	assert.Equal(t, "Rone", resp.User.LastName)

	fromDB, err := m.Repos().Users().GetByEmail(ctx, "pepe@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "Pepe", fromDB.FirstName)
	assert.Equal(t, "Rone", fromDB.LastName)
}

func TestUpdateAccountRejectsUnknownField(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerVerifiedUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.UpdateAccount.Execute(context.Background(), account.UpdateAccountMessage{
		User: user,
		UpdateAccountPayload: account.UpdateAccountPayload{
			Fields: map[string]string{
				"email": "sneaky@example.com",
			},
		},
	})
	require.Error(t, err)

	// The primary email is untouched.
	fromDB, lookupErr := m.Repos().Users().GetByEmail(context.Background(), "pepe@example.com", false)
	require.NoError(t, lookupErr)
	assert.Equal(t, user.ID, fromDB.ID)
}

func TestUpdateAccountRequiresVerified(t *testing.T) {
	m, _ := newTestModule(t)

	user := registerUser(t, m, "pepe@example.com", "hunter2hunter2")

	_, err := m.UpdateAccount.Execute(context.Background(), account.UpdateAccountMessage{
		User: user,
		UpdateAccountPayload: account.UpdateAccountPayload{
			Fields: map[string]string{"first_name": "Pepe"},
		},
	})
	assert.True(t, account.HasTextCode(err, account.TextCodeNotVerified))
}
