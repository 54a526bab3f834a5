package auth

import "time"

// User is the persisted account row.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	OrganizationID string    `json:"organization_id,omitempty"`
	EmailVerified  bool      `json:"email_verified"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Principal is the request identity established by the authentication
// middleware: the subset of User claims carried inside tokens.
type Principal struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// HasPermission reports whether the principal's role grants the permission.
func (p Principal) HasPermission(perm Permission) bool {
	return HasPermission(p.Role, perm)
}

// ResetToken is a single-use, time-boxed password reset credential.
// Only the SHA-256 of the random secret is stored.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	Purpose   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Reset token purposes. Email verification reuses the same storage and
// consumption discipline as password reset.
const (
	PurposePasswordReset     = "password_reset"
	PurposeEmailVerification = "email_verification"
)
