package account

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	GetByToken(ctx context.Context, token string) (*RefreshToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error)
	ActiveForUser(ctx context.Context, userID uuid.UUID) ([]*RefreshToken, error)
	Revoke(ctx context.Context, token string) (*RefreshToken, error)
	RevokeTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) int
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db     *bun.DB
	logger Logger
	now    func() time.Time
}

var _ RefreshTokens = (*refreshTokens)(nil)

type RefreshTokensOption func(*refreshTokens)

func WithRefreshTokensLogger(logger Logger) RefreshTokensOption {
	return func(r *refreshTokens) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRefreshTokensClock(clock func() time.Time) RefreshTokensOption {
	return func(r *refreshTokens) {
		if clock != nil {
			r.now = clock
		}
	}
}

func NewRefreshTokensRepository(db *bun.DB, opts ...RefreshTokensOption) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	tokens := &refreshTokens{
		Repository: repo,
		db:         db,
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tokens)
		}
	}

	return tokens
}

func (r *refreshTokens) GetByToken(ctx context.Context, token string) (*RefreshToken, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *refreshTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *refreshTokens) ActiveForUser(ctx context.Context, userID uuid.UUID) ([]*RefreshToken, error) {
	var records []*RefreshToken
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.revoked_at IS NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *refreshTokens) Revoke(ctx context.Context, token string) (*RefreshToken, error) {
	return r.RevokeTx(ctx, r.db, token)
}

func (r *refreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error) {
	record, err := r.GetByTokenTx(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	if record.Revoked() {
		return record, nil
	}

	now := r.now()
	record.RevokedAt = &now

	if _, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", now).
		Where("token = ?", token).
		Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

// RevokeAllForUser tombstones every outstanding token. Best effort: one
// failed revocation must not stop the rest, so errors are logged and
// swallowed. Returns the number of tokens revoked.
func (r *refreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) int {
	records, err := r.ActiveForUser(ctx, userID)
	if err != nil {
		r.logger.Warn("refresh token bulk revoke lookup failed: %v", err)
		return 0
	}

	revoked := 0
	for _, record := range records {
		if _, err := r.Revoke(ctx, record.Token); err != nil {
			r.logger.Warn("refresh token revoke failed for %s: %v", record.ID, err)
			continue
		}
		revoked++
	}

	return revoked
}
