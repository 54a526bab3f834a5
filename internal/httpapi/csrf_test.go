package httpapi

import (
	"net/http"
	"testing"

	"geometa.org/internal/auth"
)

func TestCSRFMissingToken(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	// POST to a non-exempt path with no CSRF pair at all.
	req := withBearer(jsonRequest(t, http.MethodPost, "/v1/auth/logout", nil), pair.AccessToken)
	rec := h.do(t, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "CSRF_TOKEN_INVALID" {
		t.Errorf("code = %q", code)
	}
}

func TestCSRFMismatchedPair(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	req := withBearer(jsonRequest(t, http.MethodPost, "/v1/auth/logout", nil), pair.AccessToken)
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: "cookie-value"})
	req.Header.Set(csrfHeader, "different-value")
	rec := h.do(t, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCSRFExemptPaths(t *testing.T) {
	h := newHarness(t)
	// Login and register mutate state before any session exists, so
	// they must accept requests without the double-submit pair.
	rec := h.do(t, jsonRequest(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "new@geo.example", "password": "correct-horse", "name": "New",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCSRFSafeMethodsPass(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, jsonRequest(t, http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

// A GET on an exempt path bootstraps the CSRF cookie for clients that
// have none yet.
func TestCSRFBootstrap(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, jsonRequest(t, http.MethodGet, "/healthz", nil))

	var issued bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == csrfCookie && cookie.Value != "" {
			issued = true
			if cookie.HttpOnly {
				t.Error("csrf cookie must be readable by the client")
			}
		}
	}
	if !issued {
		t.Fatal("no csrf cookie issued")
	}
}

// Each validated mutation rotates the token: the response carries a new
// cookie value distinct from the one the request presented.
func TestCSRFRotatesOnUse(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)
	pair := h.login(t, "user@geo.example", "correct-horse")

	req := withCSRFPair(withBearer(jsonRequest(t, http.MethodPost, "/v1/auth/logout", nil), pair.AccessToken))
	rec := h.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var rotated string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == csrfCookie {
			rotated = cookie.Value
		}
	}
	if rotated == "" {
		t.Fatal("no rotated csrf cookie in response")
	}
	if rotated == "test-csrf-token" {
		t.Error("csrf token not rotated after use")
	}
}
