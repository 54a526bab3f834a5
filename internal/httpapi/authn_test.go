package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"geometa.org/internal/auth"
)

func TestProtectedRouteRequiresToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, jsonRequest(t, http.MethodGet, "/v1/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "UNAUTHENTICATED" {
		t.Errorf("code = %q", code)
	}
}

func TestBearerTokenGrantsAccess(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	rec := h.do(t, withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), pair.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var user auth.User
	decodeBody(t, rec, &user)
	if user.Email != "user@geo.example" {
		t.Errorf("email = %q", user.Email)
	}
}

func TestCookieFallback(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	req := jsonRequest(t, http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: pair.AccessToken})
	rec := h.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

// The bearer header must win over a cookie carrying a different token.
func TestBearerHeaderBeatsCookie(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	req := withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), pair.AccessToken)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: "stale-garbage"})
	rec := h.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

// A blacklisted token must be rejected even when the token cache holds
// a fresh entry for it.
func TestRevocationBeatsWarmCache(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	// Warm the cache.
	rec := h.do(t, withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), pair.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("warmup status = %d", rec.Code)
	}

	if err := h.revoker.Blacklist(context.Background(), pair.AccessToken, time.Hour); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	rec = h.do(t, withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), pair.AccessToken))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "TOKEN_REVOKED" {
		t.Errorf("code = %q", code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)

	// Same secret and issuer, but issued two hours in the past with a
	// one-hour lifetime.
	past := time.Now().Add(-2 * time.Hour)
	issuer, err := newTestCodec(auth.KindAccess, "handler-access-secret", time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, _, err := issuer.WithClock(func() time.Time { return past }).Issue(*user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := h.do(t, withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), token))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "TOKEN_EXPIRED" {
		t.Errorf("code = %q", code)
	}
}

func TestForgedTokenRejected(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)

	forger, err := newTestCodec(auth.KindAccess, "attacker-secret", time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, _, err := forger.Issue(*user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := h.do(t, withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), token))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_TOKEN" {
		t.Errorf("code = %q", code)
	}
}

// Revocation store outage resolves fail-open for authenticated traffic.
func TestRevocationOutageFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	h.mr.Close()

	rec := h.do(t, withBearer(jsonRequest(t, http.MethodGet, "/v1/auth/me", nil), pair.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}
