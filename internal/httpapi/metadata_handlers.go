package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"geometa.org/internal/audit"
	"geometa.org/internal/auth"
	"geometa.org/internal/metadata"
)

type createRecordRequest struct {
	Title          string   `json:"title"`
	Abstract       string   `json:"abstract"`
	Keywords       []string `json:"keywords"`
	OrganizationID string   `json:"organization_id"`
}

type updateRecordRequest struct {
	Title    *string  `json:"title"`
	Abstract *string  `json:"abstract"`
	Keywords []string `json:"keywords"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleMetadataCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.searchRecords(w, r)
	case http.MethodPost:
		a.createRecord(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleMetadataResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/metadata/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		id := parts[0]
		switch r.Method {
		case http.MethodGet:
			a.getRecord(w, r, id)
		case http.MethodPut:
			a.updateRecord(w, r, id)
		case http.MethodDelete:
			a.deleteRecord(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.setRecordStatus(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) searchRecords(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermission(w, r, auth.Permission{Action: auth.ActionRead, Subject: auth.SubjectMetadata}); !ok {
		return
	}
	q := metadata.Query{
		Keyword:        r.URL.Query().Get("q"),
		OrganizationID: r.URL.Query().Get("organization_id"),
		OwnerID:        r.URL.Query().Get("owner_id"),
		Status:         metadata.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = v
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "offset must be an integer")
			return
		}
		q.Offset = v
	}

	items, err := a.metadata.Search(r.Context(), q)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermission(w, r, auth.Permission{Action: auth.ActionCreate, Subject: auth.SubjectMetadata})
	if !ok {
		return
	}
	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	orgID := req.OrganizationID
	if orgID == "" {
		orgID = principal.OrganizationID
	}
	rec, err := a.metadata.Create(r.Context(), principal.ID, orgID, req.Title, req.Abstract, req.Keywords)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "metadata.record.create", map[string]any{
		"record_id": rec.ID,
		"title":     rec.Title,
	})
	w.Header().Set("Location", "/v1/metadata/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.ensurePermission(w, r, auth.Permission{Action: auth.ActionRead, Subject: auth.SubjectMetadata}); !ok {
		return
	}
	rec, err := a.metadata.Get(r.Context(), id)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// updateRecord lets the owner edit their record; an ADMIN may edit any.
func (a *API) updateRecord(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := a.ensurePermission(w, r, auth.Permission{Action: auth.ActionUpdate, Subject: auth.SubjectMetadata})
	if !ok {
		return
	}
	existing, err := a.metadata.Get(r.Context(), id)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	if !auth.OwnerOrAdmin(principal, existing.OwnerID) {
		writeAuthError(w, r, auth.ErrForbidden)
		return
	}

	var req updateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.metadata.Update(r.Context(), id, metadata.Update{
		Title:    req.Title,
		Abstract: req.Abstract,
		Keywords: req.Keywords,
	})
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "metadata.record.update", map[string]any{"record_id": id})
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) deleteRecord(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	existing, err := a.metadata.Get(r.Context(), id)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	// Owners may delete their own drafts even without the delete grant;
	// otherwise the matrix decides.
	if !auth.OwnerOrAdmin(p, existing.OwnerID) &&
		!p.HasPermission(auth.Permission{Action: auth.ActionDelete, Subject: auth.SubjectMetadata}) {
		writeAuthError(w, r, auth.ErrForbidden)
		return
	}
	if err := a.metadata.Delete(r.Context(), id); err != nil {
		handleMetadataError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "metadata.record.delete", map[string]any{"record_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// setRecordStatus drives the validation workflow. Submission is open to
// the owner; approval and rejection require the validate grant.
func (a *API) setRecordStatus(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := metadata.Status(req.Status)

	existing, err := a.metadata.Get(r.Context(), id)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	switch status {
	case metadata.StatusSubmitted, metadata.StatusDraft:
		if !auth.OwnerOrAdmin(principal, existing.OwnerID) {
			writeAuthError(w, r, auth.ErrForbidden)
			return
		}
	default:
		if !principal.HasPermission(auth.Permission{Action: auth.ActionValidate, Subject: auth.SubjectMetadata}) {
			writeAuthError(w, r, auth.ErrForbidden)
			return
		}
	}

	rec, err := a.metadata.SetStatus(r.Context(), id, status)
	if err != nil {
		handleMetadataError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "metadata.record.status", map[string]any{
		"record_id": id,
		"status":    string(status),
	})
	writeJSON(w, http.StatusOK, rec)
}

func handleMetadataError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, metadata.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, metadata.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "metadata operation failed")
	}
}
