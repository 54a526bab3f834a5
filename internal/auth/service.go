package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"geometa.org/internal/ids"
	"geometa.org/internal/obs"
)

const defaultResetTokenTTL = time.Hour

// Service implements the login/register/logout/refresh/password-reset
// business logic. It never writes HTTP responses; failures surface as
// the typed errors in errors.go and are translated by httpapi.
type Service struct {
	store   Store
	access  *Codec
	refresh *Codec
	revoker Revoker

	now             func() time.Time
	resetTTL        time.Duration
	requireVerified bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRequireVerifiedEmail makes login reject principals whose email is
// not yet verified.
func WithRequireVerifiedEmail(require bool) ServiceOption {
	return func(s *Service) { s.requireVerified = require }
}

// WithResetTokenTTL overrides the reset token lifetime.
func WithResetTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the service. Access and refresh codecs must be
// configured with different secrets; a shared secret would let a leaked
// access key mint refresh tokens.
func NewService(store Store, access, refresh *Codec, revoker Revoker, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if access == nil || refresh == nil {
		return nil, errors.New("both token codecs are required")
	}
	if subtle.ConstantTimeCompare(access.secret, refresh.secret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if revoker == nil {
		return nil, errors.New("revocation store is required")
	}
	svc := &Service{
		store:    store,
		access:   access,
		refresh:  refresh,
		revoker:  revoker,
		now:      time.Now,
		resetTTL: defaultResetTokenTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TokenPair carries both credentials along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Login authenticates credentials and issues a token pair. Not-found
// and password-mismatch collapse into the same ErrInvalidCredentials so
// responses cannot be used for account enumeration.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		obs.CountAuthAttempt("login", "invalid")
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.CountAuthAttempt("login", "invalid")
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		obs.CountAuthAttempt("login", "invalid")
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if s.requireVerified && !user.EmailVerified {
		obs.CountAuthAttempt("login", "unverified")
		return TokenPair{}, Principal{}, ErrEmailNotVerified
	}

	pair, err := s.mintTokens(*user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	obs.CountAuthAttempt("login", "ok")
	principal := Principal{ID: user.ID, Email: user.Email, Role: user.Role, OrganizationID: user.OrganizationID}
	return pair, principal, nil
}

// RegisterParams are the fields accepted at registration.
type RegisterParams struct {
	Email          string
	Password       string
	Name           string
	OrganizationID string
}

// Register creates a principal with the default USER role. When email
// verification is required, a single-use verification token is issued
// alongside; delivering it is the mailer's concern.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, string, error) {
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(params.Password) < 8 {
		return nil, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, "", err
	}
	user := &User{
		Email:          email,
		Name:           name,
		PasswordHash:   hash,
		Role:           RoleUser,
		OrganizationID: strings.TrimSpace(params.OrganizationID),
		EmailVerified:  !s.requireVerified,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			obs.CountAuthAttempt("register", "duplicate")
		}
		return nil, "", err
	}
	obs.CountAuthAttempt("register", "ok")

	var verification string
	if s.requireVerified {
		verification, err = s.issueActionToken(ctx, user.ID, PurposeEmailVerification)
		if err != nil {
			return nil, "", err
		}
	}
	return user, verification, nil
}

// Logout blacklists the token for its remaining lifetime. It always
// succeeds from the caller's perspective: revealing whether the token
// was valid would leak information.
func (s *Service) Logout(ctx context.Context, token string) {
	ttl := s.access.RemainingTTL(token)
	if ttl <= 0 {
		return
	}
	if err := s.revoker.Blacklist(ctx, token, ttl); err != nil {
		obs.LogError("auth", "logout blacklist failed", err)
	}
}

// Refresh verifies a refresh token, revokes it, and mints a fresh pair
// (rotation-on-refresh). Role changes since issuance take effect here
// because claims are re-read from the user row.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.refresh.Verify(refreshToken)
	if err != nil {
		obs.CountAuthAttempt("refresh", "invalid")
		return TokenPair{}, err
	}
	revoked, err := s.revoker.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		if PolicyFor(FailureRevocationStore) == Deny {
			return TokenPair{}, ErrTokenRevoked
		}
		obs.LogError("auth", "refresh blacklist check failed", err)
	} else if revoked {
		obs.CountAuthAttempt("refresh", "revoked")
		return TokenPair{}, ErrTokenRevoked
	}

	user, err := s.store.Users().Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}

	// Old refresh token dies with the rotation.
	if ttl := s.refresh.RemainingTTL(refreshToken); ttl > 0 {
		if err := s.revoker.Blacklist(ctx, refreshToken, ttl); err != nil {
			obs.LogError("auth", "refresh rotation blacklist failed", err)
		}
	}

	pair, err := s.mintTokens(*user)
	if err != nil {
		return TokenPair{}, err
	}
	obs.CountAuthAttempt("refresh", "ok")
	return pair, nil
}

// ForgotPassword creates a single-use reset token when the email is
// known. The returned token is empty for unknown accounts; callers must
// respond identically in both cases.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", nil
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	// One outstanding reset token per user.
	if err := s.store.ResetTokens().DeleteForUser(ctx, user.ID, PurposePasswordReset); err != nil {
		return "", err
	}
	return s.issueActionToken(ctx, user.ID, PurposePasswordReset)
}

// ResetPassword consumes the reset token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	tok, err := s.consumeActionToken(ctx, token, PurposePasswordReset)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.Users().UpdatePassword(ctx, tok.UserID, hash)
}

// VerifyEmail consumes a verification token and flips the verified flag.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	tok, err := s.consumeActionToken(ctx, token, PurposeEmailVerification)
	if err != nil {
		return err
	}
	return s.store.Users().MarkEmailVerified(ctx, tok.UserID)
}

// UserByID loads the fresh user row for /auth/me.
func (s *Service) UserByID(ctx context.Context, id string) (*User, error) {
	return s.store.Users().Find(ctx, id)
}

// ListUsers returns all principals. Admin surface.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users().List(ctx)
}

// ChangeRole mutates a principal's role. Only an ADMIN actor may do so.
func (s *Service) ChangeRole(ctx context.Context, actor Principal, userID string, role Role) (*User, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if _, ok := ParseRole(string(role)); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.store.Users().UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	return s.store.Users().Find(ctx, userID)
}

// AccessTTL exposes the access token lifetime for cookie expiry.
func (s *Service) AccessTTL() time.Duration { return s.access.TTL() }

// RefreshTTL exposes the refresh token lifetime for cookie expiry.
func (s *Service) RefreshTTL() time.Duration { return s.refresh.TTL() }

func (s *Service) mintTokens(user User) (TokenPair, error) {
	accessToken, accessExp, err := s.access.Issue(user)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, refreshExp, err := s.refresh.Issue(user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// issueActionToken mints an id.secret credential, persisting only the
// secret's SHA-256.
func (s *Service) issueActionToken(ctx context.Context, userID, purpose string) (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	tok := &ResetToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		Purpose:   purpose,
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.store.ResetTokens().Create(ctx, tok); err != nil {
		return "", err
	}
	return tok.ID + "." + secret, nil
}

func (s *Service) consumeActionToken(ctx context.Context, raw, purpose string) (*ResetToken, error) {
	id, secret, err := splitActionToken(raw)
	if err != nil {
		return nil, ErrInvalidResetToken
	}
	tok, err := s.store.ResetTokens().Consume(ctx, id, purpose)
	if err != nil {
		return nil, err
	}
	if s.now().After(tok.ExpiresAt) {
		return nil, ErrInvalidResetToken
	}
	sum := sha256.Sum256([]byte(secret))
	if !subtleCompare(tok.TokenHash, hex.EncodeToString(sum[:])) {
		return nil, ErrInvalidResetToken
	}
	return tok, nil
}

func splitActionToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid token format")
	}
	return parts[0], parts[1], nil
}

func subtleCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
