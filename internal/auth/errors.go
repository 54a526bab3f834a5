package auth

import "errors"

// Error taxonomy for the auth subsystem. Middleware and handlers match
// these with errors.Is and translate them to HTTP statuses in exactly
// one place (httpapi.writeAuthError).
var (
	ErrUnauthenticated    = errors.New("auth: missing credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailNotVerified   = errors.New("auth: email not verified")
	ErrDuplicateEmail     = errors.New("auth: email already registered")
	ErrInvalidResetToken  = errors.New("auth: invalid or expired reset token")
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
)
