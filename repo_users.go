package account

import (
	"fmt"
	"strings"

	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var updatePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var swapEmailsSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetByEmail(ctx context.Context, email string, includeSecondary bool) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string, includeSecondary bool) (*User, error)
	GetByLoginField(ctx context.Context, field, value string, includeSecondary bool) (*User, error)
	GetByLoginFieldTx(ctx context.Context, tx bun.IDB, field, value string, includeSecondary bool) (*User, error)

	CreateWithStatusTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error)

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	SetPrimaryEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) error

	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	HardDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "username", strings.TrimSpace(username))
}

// GetByEmail resolves a user by primary email, falling through to the
// secondary email slot when enabled. The status relation is always loaded;
// every gate downstream consults it.
func (a *users) GetByEmail(ctx context.Context, email string, includeSecondary bool) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email, includeSecondary)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, includeSecondary bool) (*User, error) {
	email = strings.TrimSpace(email)

	record := &User{}
	q := tx.NewSelect().Model(record).Relation("Status")

	if includeSecondary {
		q = q.Join(`LEFT JOIN "user_statuses" AS "sec" ON "sec"."user_id" = "usr"."id"`).
			Where(`?TableAlias.email = ? OR ("sec"."secondary_email" != '' AND "sec"."secondary_email" = ?)`, email, email)
	} else {
		q = q.Where("?TableAlias.email = ?", email)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"email": email,
			})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByLoginField(ctx context.Context, field, value string, includeSecondary bool) (*User, error) {
	return a.GetByLoginFieldTx(ctx, a.db, field, value, includeSecondary)
}

func (a *users) GetByLoginFieldTx(ctx context.Context, tx bun.IDB, field, value string, includeSecondary bool) (*User, error) {
	if field == "email" {
		return a.GetByEmailTx(ctx, tx, value, includeSecondary)
	}
	return a.getByColumnTx(ctx, tx, field, strings.TrimSpace(value))
}

func (a *users) getByColumnTx(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Status").
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				column: value,
			})
		}
		return nil, err
	}

	return record, nil
}

// CreateWithStatusTx inserts the user row and its status companion in the
// caller's transaction. UserStatus is born with the User, never separately.
func (a *users) CreateWithStatusTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, err
	}

	status := &UserStatus{
		ID:     uuid.New(),
		UserID: created.ID,
	}
	if _, err := tx.NewInsert().Model(status).Exec(ctx); err != nil {
		return nil, err
	}

	created.Status = status
	return created, nil
}

// EmailTakenTx checks the candidate address against both the primary and
// the secondary address space. Run it inside the same transaction as the
// write it guards; the backing unique constraints are the true enforcement.
func (a *users) EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	email = strings.TrimSpace(email)

	n, err := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", email).
		Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	n, err = tx.NewSelect().
		Model((*UserStatus)(nil)).
		Where("?TableAlias.secondary_email = ?", email).
		Count(ctx)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, updatePasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"id": id.String(),
		})
	}

	return nil
}

func (a *users) SetPrimaryEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) error {
	res, err := a.Repository.RawTx(ctx, tx, swapEmailsSQL, email, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"id": id.String(),
		})
	}

	return nil
}

func (a *users) Deactivate(ctx context.Context, id uuid.UUID) error {
	return a.DeactivateTx(ctx, a.db, id)
}

func (a *users) DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// HardDeleteTx removes the user row for good, status cascade included.
func (a *users) HardDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*UserStatus)(nil)).
		Where("user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		ForceDelete().
		Exec(ctx)
	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.IsActive = true

	if record.Username == "" && strings.Contains(record.Email, "@") {
		record.Username = strings.Split(record.Email, "@")[0]
	}
}
