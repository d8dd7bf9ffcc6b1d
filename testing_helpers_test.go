package account_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	models := []any{
		(*account.User)(nil),
		(*account.UserStatus)(nil),
		(*account.RefreshToken)(nil),
	}
	for _, model := range models {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}

func newTestSettings(opts ...account.SettingsOption) account.Settings {
	base := []account.SettingsOption{
		account.WithSigningKey("test-signing-key"),
		account.WithIssuer("go-account-test"),
	}
	return account.NewSettings(append(base, opts...)...)
}

// mailbox captures outbound email so tests can assert on delivery without
// an SMTP server.
type mailbox struct {
	mu       sync.Mutex
	messages []account.EmailMessage
	fail     bool
}

func (m *mailbox) mailer() account.Mailer {
	return account.MailerFunc(func(ctx context.Context, msg account.EmailMessage) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.fail {
			return context.DeadlineExceeded
		}
		m.messages = append(m.messages, msg)
		return nil
	})
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mailbox) last(t *testing.T) account.EmailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

type capturingSink struct {
	mu     sync.Mutex
	events []account.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt account.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) has(eventType account.ActivityEventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, evt := range c.events {
		if evt.EventType == eventType {
			return true
		}
	}
	return false
}

func newTestModule(t *testing.T, opts ...account.SettingsOption) (*account.Module, *mailbox) {
	t.Helper()

	db := newTestDB(t)
	box := &mailbox{}

	m, err := account.NewModule(db, newTestSettings(opts...),
		account.WithModuleMailer(box.mailer()))
	require.NoError(t, err)

	return m, box
}

func registerUser(t *testing.T, m *account.Module, email, password string) *account.User {
	t.Helper()

	resp, err := m.Register.Execute(context.Background(), account.RegisterMessage{
		RegisterPayload: account.RegisterPayload{
			Email:     email,
			Password1: password,
			Password2: password,
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	return resp.User
}

func verifyUser(t *testing.T, m *account.Module, user *account.User) *account.User {
	t.Helper()

	token, err := m.ActionTokens().Issue(user, account.TokenActionActivation, nil)
	require.NoError(t, err)

	resp, err := m.VerifyAccount.Execute(context.Background(), account.VerifyAccountMessage{
		TokenPayload: account.TokenPayload{Token: token},
	})
	require.NoError(t, err)
	require.True(t, resp.User.Status.Verified)

	return resp.User
}

func registerVerifiedUser(t *testing.T, m *account.Module, email, password string) *account.User {
	t.Helper()
	user := registerUser(t, m, email, password)
	return verifyUser(t, m, user)
}
