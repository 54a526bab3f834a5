package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

const (
	csrfCookie = "csrf_token"
	csrfHeader = "X-CSRF-Token"
)

// Paths that mutate state before a session exists, so the double-submit
// pair cannot be required yet.
var csrfExemptPaths = []string{
	"/healthz",
	"/readyz",
	"/v1/auth/login",
	"/v1/auth/register",
}

// withCSRF implements double-submit cookie protection. Safe methods and
// the exempt list pass through, with token bootstrapping on GET. Unsafe
// requests need cookie and header to match; the cookie rotates after
// every validated mutation, so a captured token buys one replay window
// at most.
func (a *API) withCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isCSRFExempt(r) {
			if r.Method == http.MethodGet {
				a.ensureCSRFCookie(w, r)
			}
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookie)
		if err != nil || cookie.Value == "" {
			writeCSRFError(w, r, "csrf token missing")
			return
		}
		header := r.Header.Get(csrfHeader)
		if header == "" {
			writeCSRFError(w, r, "csrf token missing")
			return
		}
		if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			writeCSRFError(w, r, "csrf token mismatch")
			return
		}

		// Rotation-on-use: one token per mutating request.
		a.setCSRFCookie(w, uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func isCSRFExempt(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	for _, p := range csrfExemptPaths {
		if r.URL.Path == p {
			return true
		}
	}
	return false
}

func (a *API) ensureCSRFCookie(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(csrfCookie); err == nil && cookie.Value != "" {
		return
	}
	a.setCSRFCookie(w, uuid.NewString())
}

// The CSRF cookie is deliberately not httpOnly: the client must read it
// back to echo the value in the request header.
func (a *API) setCSRFCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.cookies.Domain,
		Secure:   a.cookies.Secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeCSRFError(w http.ResponseWriter, r *http.Request, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  "CSRF_TOKEN_INVALID",
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusForbidden, payload)
}
