package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users() UserStore
	ResetTokens() ResetTokenStore
}

// UserStore manages principal rows.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, userID string, role Role) error
	MarkEmailVerified(ctx context.Context, userID string) error
}

// ResetTokenStore manages single-use action tokens (password reset and
// email verification). Consume must atomically delete the row it returns.
type ResetTokenStore interface {
	Create(ctx context.Context, tok *ResetToken) error
	Consume(ctx context.Context, id, purpose string) (*ResetToken, error)
	DeleteForUser(ctx context.Context, userID, purpose string) error
}

// Revoker records blacklisted tokens for the remainder of their
// lifetime. Implemented by the Redis-backed revoke.Store.
type Revoker interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}
