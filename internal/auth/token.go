package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes the two credential families. Access and
// refresh tokens are signed with independently configured secrets;
// operations are otherwise symmetric.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the payload carried inside both token kinds.
type Claims struct {
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	TokenKind TokenKind `json:"token_kind"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into the request identity.
func (c *Claims) Principal() Principal {
	return Principal{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// Codec signs and verifies tokens of a single kind using HS256. It is
// a pure component: no I/O, no shared mutable state.
type Codec struct {
	kind   TokenKind
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewCodec constructs a Codec. The secret is required and must differ
// between the access and refresh codecs; this cannot be checked here,
// so the constructor in cmd/api compares the two.
func NewCodec(kind TokenKind, secret string, ttl time.Duration, issuer string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%s token secret is not configured", kind)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s token ttl must be greater than zero", kind)
	}
	return &Codec{
		kind:   kind,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source. Test hook.
func (c *Codec) WithClock(fn func() time.Time) *Codec {
	if fn != nil {
		c.now = fn
	}
	return c
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for the user. Deterministic apart from the jti.
func (c *Codec) Issue(user User) (string, time.Time, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Email:     strings.ToLower(strings.TrimSpace(user.Email)),
		Role:      user.Role,
		TokenKind: c.kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", c.kind, err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, kind and issuer. Failures map onto
// ErrTokenExpired or ErrInvalidToken; callers never see library errors.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := c.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) validateClaims(claims *Claims) error {
	if claims.TokenKind != c.kind {
		return ErrInvalidToken
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrInvalidToken
	}
	now := c.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrInvalidToken
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrInvalidToken
	}
	if _, ok := ParseRole(string(claims.Role)); !ok {
		return ErrInvalidToken
	}
	return nil
}

// RemainingTTL reports how long a token stays valid without verifying
// its signature. Used by logout to size the revocation entry; an
// unparseable token yields zero.
func (c *Codec) RemainingTTL(token string) time.Duration {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		return 0
	}
	return remaining
}
