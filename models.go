package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UnusablePasswordPrefix marks accounts registered without a password. The
// prefix can never appear in a bcrypt hash so the sentinel is unambiguous.
const UnusablePasswordPrefix = "!"

// User is the identity record. Email is unique at the database level; the
// stronger invariant, uniqueness across primary and secondary addresses, is
// enforced by StatusService.CleanEmail inside mutating transactions.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string      `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string      `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName     string      `bun:"first_name" json:"first_name,omitempty"`
	LastName      string      `bun:"last_name" json:"last_name,omitempty"`
	PasswordHash  string      `bun:"password_hash,notnull" json:"-"`
	IsActive      bool        `bun:"is_active,notnull,default:true" json:"is_active,omitempty"`
	Status        *UserStatus `bun:"rel:has-one,join:id=user_id" json:"status,omitempty"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasUsablePassword reports whether the account went through a password
// setting flow. Passwordless registrations store an unusable sentinel until
// the password set token is redeemed.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, UnusablePasswordPrefix)
}

// EnsureStatus guarantees a non nil status record on loaded users.
func (u *User) EnsureStatus() *UserStatus {
	if u.Status == nil {
		u.Status = &UserStatus{UserID: u.ID}
	}
	return u.Status
}

// UserStatus is the one-to-one companion record created in the same
// transaction as its User and living exactly as long.
type UserStatus struct {
	bun.BaseModel  `bun:"table:user_statuses,alias:ust"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	Verified       bool       `bun:"verified,notnull,default:false" json:"verified"`
	Archived       bool       `bun:"archived,notnull,default:false" json:"archived"`
	SecondaryEmail string     `bun:"secondary_email" json:"secondary_email,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RefreshToken is a long lived credential issued alongside each access
// token. Revocation is a tombstone, never a row delete, so an audit trail
// survives credential invalidating events.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
}

// Revoked reports whether the token has been tombstoned.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired checks token age against the configured refresh TTL.
func (t *RefreshToken) Expired(ttl time.Duration, now time.Time) bool {
	if t.CreatedAt == nil {
		return true
	}
	return now.Sub(*t.CreatedAt) > ttl
}
