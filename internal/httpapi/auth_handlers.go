package httpapi

import (
	"net/http"
	"strings"
	"time"

	"geometa.org/internal/audit"
	"geometa.org/internal/auth"
)

const refreshTokenCookie = "refresh_token"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken      string         `json:"access_token"`
	RefreshToken     string         `json:"refresh_token"`
	AccessExpiresAt  time.Time      `json:"access_expires_at"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
	Principal        auth.Principal `json:"principal"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, principal, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	a.setAuthCookies(w, pair)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": principal.ID,
		"role":    string(principal.Role),
	})
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Principal:        principal,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, _, err := a.auth.Register(r.Context(), auth.RegisterParams{
		Email:          req.Email,
		Password:       req.Password,
		Name:           req.Name,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		// Fall back to the refresh cookie for browser clients.
		req = refreshRequest{}
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		if cookie, cerr := r.Cookie(refreshTokenCookie); cerr == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}

	pair, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	a.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// handleLogout revokes whatever token accompanied the request and
// clears cookies. It reports success unconditionally: logout must not
// reveal whether the presented token was valid.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if token := extractToken(r); token != "" {
		a.auth.Logout(r.Context(), token)
	}
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		a.auth.Logout(r.Context(), cookie.Value)
	}
	a.clearAuthCookies(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword answers with an identical body whether or not
// the account exists.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := a.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		// Infrastructure failure; the anti-enumeration contract still
		// holds because the body below is identical in every outcome.
		logFailOpen("auth", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"detail": "if the account exists, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_updated"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "email_verified"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	user, err := a.auth.UserByID(r.Context(), principal.ID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"principal":     principal,
		"permissions":   auth.PermissionsForRole(principal.Role),
	})
}

func (a *API) setAuthCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   a.cookies.Domain,
		Expires:  pair.AccessExpiresAt,
		Secure:   a.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/v1/auth",
		Domain:   a.cookies.Domain,
		Expires:  pair.RefreshExpiresAt,
		Secure:   a.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	for _, cookie := range []http.Cookie{
		{Name: accessTokenCookie, Path: "/"},
		{Name: refreshTokenCookie, Path: "/v1/auth"},
	} {
		cookie.Value = ""
		cookie.Domain = a.cookies.Domain
		cookie.MaxAge = -1
		cookie.HttpOnly = true
		http.SetCookie(w, &cookie)
	}
}
