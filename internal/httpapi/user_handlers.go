package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"geometa.org/internal/audit"
	"geometa.org/internal/auth"
)

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireRoles(w, r, auth.RoleAdmin); !ok {
		return
	}
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "role":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.changeUserRole(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// getUser returns a profile. Users may read themselves; anything else
// needs the admin read grant.
func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	if principal.ID != id &&
		!principal.HasPermission(auth.Permission{Action: auth.ActionRead, Subject: auth.SubjectUser}) {
		writeAuthError(w, r, auth.ErrForbidden)
		return
	}
	user, err := a.auth.UserByID(r.Context(), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) changeUserRole(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := a.requireRoles(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role "+strconv.Quote(req.Role))
		return
	}
	user, err := a.auth.ChangeRole(r.Context(), principal, id, role)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.role.change", map[string]any{
		"target_user_id": id,
		"new_role":       string(role),
	})
	writeJSON(w, http.StatusOK, user)
}
