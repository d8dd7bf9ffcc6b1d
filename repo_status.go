package account

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UserStatuses interface {
	repository.Repository[*UserStatus]

	GetByUserID(ctx context.Context, userID uuid.UUID) (*UserStatus, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserStatus, error)

	SetVerifiedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, verified bool) error
	SetArchivedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, archived bool) error
	SetSecondaryEmailTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, email string) error
}

type userStatuses struct {
	repository.Repository[*UserStatus]
	db *bun.DB
}

var _ UserStatuses = (*userStatuses)(nil)

func NewUserStatusesRepository(db *bun.DB) UserStatuses {
	repo := repository.NewRepository[*UserStatus](db, repository.ModelHandlers[*UserStatus]{
		NewRecord: func() *UserStatus { return &UserStatus{} },
		GetID: func(s *UserStatus) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *UserStatus, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &userStatuses{
		Repository: repo,
		db:         db,
	}
}

func (r *userStatuses) GetByUserID(ctx context.Context, userID uuid.UUID) (*UserStatus, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *userStatuses) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*UserStatus, error) {
	record := &UserStatus{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"user_id": userID.String(),
			})
		}
		return nil, err
	}

	return record, nil
}

func (r *userStatuses) SetVerifiedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, verified bool) error {
	return r.setColumnTx(ctx, tx, userID, "verified", verified)
}

func (r *userStatuses) SetArchivedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, archived bool) error {
	return r.setColumnTx(ctx, tx, userID, "archived", archived)
}

func (r *userStatuses) SetSecondaryEmailTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, email string) error {
	return r.setColumnTx(ctx, tx, userID, "secondary_email", email)
}

func (r *userStatuses) setColumnTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, column string, value any) error {
	res, err := tx.NewUpdate().
		Model((*UserStatus)(nil)).
		Set(column+" = ?", value).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"user_id": userID.String(),
		})
	}

	return nil
}
