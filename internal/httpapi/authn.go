package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"geometa.org/internal/auth"
)

const (
	authHeader        = "Authorization"
	bearer            = "Bearer "
	accessTokenCookie = "access_token"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/login",
	"/v1/auth/register",
	"/v1/auth/refresh-token",
	"/v1/auth/logout",
	"/v1/auth/forgot-password",
	"/v1/auth/reset-password",
	"/v1/auth/verify-email",
}

// withAuth establishes request identity. Per-request sequence:
// extract token, reject revoked tokens, then trust a fresh cache hit or
// fall back to full signature verification. The revocation check runs
// on every request, before the cache, so a blacklisted token cannot
// ride a warm cache entry.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeAuthError(w, r, auth.ErrUnauthenticated)
			return
		}

		revoked, err := a.revoker.IsBlacklisted(r.Context(), token)
		if err != nil {
			if auth.PolicyFor(auth.FailureRevocationStore) == auth.Deny {
				writeAuthError(w, r, auth.ErrTokenRevoked)
				return
			}
			logFailOpen("revocation", err)
		} else if revoked {
			writeAuthError(w, r, auth.ErrTokenRevoked)
			return
		}

		claims, ok := a.tokenCache.Get(token)
		if !ok {
			claims, err = a.accessCodec.Verify(token)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			a.tokenCache.Put(token, *claims)
		}

		ctx := auth.ContextWithPrincipal(r.Context(), claims.Principal())
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles gates a handler on the principal's role and writes the
// error response when the check fails.
func (a *API) requireRoles(w http.ResponseWriter, r *http.Request, allowed ...auth.Role) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return auth.Principal{}, false
	}
	for _, role := range allowed {
		if principal.Role == role {
			return principal, true
		}
	}
	writeAuthError(w, r, auth.ErrForbidden)
	return auth.Principal{}, false
}

// ensurePermission checks the static matrix and writes 403 on failure.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm auth.Permission) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return auth.Principal{}, false
	}
	if !principal.HasPermission(perm) {
		writeAuthError(w, r, auth.ErrForbidden)
		return auth.Principal{}, false
	}
	return principal, true
}

// writeAuthError is the single translation point from the auth error
// taxonomy to HTTP statuses and stable error codes.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		code int
		kind string
		msg  string
	)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		code, kind, msg = http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required"
	case errors.Is(err, auth.ErrTokenRevoked):
		code, kind, msg = http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked"
	case errors.Is(err, auth.ErrTokenExpired):
		code, kind, msg = http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired"
	case errors.Is(err, auth.ErrInvalidToken):
		code, kind, msg = http.StatusUnauthorized, "INVALID_TOKEN", "invalid token"
	case errors.Is(err, auth.ErrForbidden):
		code, kind, msg = http.StatusForbidden, "FORBIDDEN", "insufficient permissions"
	case errors.Is(err, auth.ErrInvalidCredentials):
		code, kind, msg = http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	case errors.Is(err, auth.ErrEmailNotVerified):
		code, kind, msg = http.StatusUnauthorized, "EMAIL_NOT_VERIFIED", "email address is not verified"
	case errors.Is(err, auth.ErrDuplicateEmail):
		code, kind, msg = http.StatusBadRequest, "DUPLICATE_EMAIL", "email already registered"
	case errors.Is(err, auth.ErrInvalidResetToken):
		code, kind, msg = http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token"
	case errors.Is(err, auth.ErrInvalidInput):
		code, kind, msg = http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, auth.ErrNotFound):
		code, kind, msg = http.StatusNotFound, "RESOURCE_NOT_FOUND", "resource not found"
	default:
		code, kind, msg = http.StatusInternalServerError, "INTERNAL", "internal error"
	}

	payload := map[string]any{
		"error": msg,
		"code":  kind,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header != "" && strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		if token := strings.TrimSpace(header[len(bearer):]); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
