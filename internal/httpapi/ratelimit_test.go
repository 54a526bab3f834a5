package httpapi

import (
	"net/http"
	"testing"

	"geometa.org/internal/auth"
)

func TestLoginRateLimit(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "user@geo.example", "correct-horse", auth.RoleUser)

	// The login class budget is five per window; the sixth attempt must
	// be rejected regardless of credential validity.
	for i := 0; i < 5; i++ {
		rec := h.do(t, jsonRequest(t, http.MethodPost, "/v1/auth/login", map[string]string{
			"email": "user@geo.example", "password": "wrong",
		}))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "5" {
			t.Errorf("attempt %d: limit header = %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := h.do(t, jsonRequest(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "user@geo.example", "password": "correct-horse",
	}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitHeadersOnSuccess(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, jsonRequest(t, http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("limit = %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("missing remaining header")
	}
}

// Counting-store outage resolves fail-open: requests are admitted, not
// refused.
func TestRateLimitOutageFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.mr.Close()

	rec := h.do(t, jsonRequest(t, http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}
