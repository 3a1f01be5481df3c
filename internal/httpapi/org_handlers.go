package httpapi

import (
	"errors"
	"net/http"
	"time"

	"loctrec.org/internal/audit"
	"loctrec.org/internal/auth"
)

type createOrgRequest struct {
	Name         string   `json:"name"`
	ContactEmail string   `json:"contact_email"`
	Scopes       []string `json:"scopes"`
}

type updateOrgRequest struct {
	Name         *string  `json:"name"`
	ContactEmail *string  `json:"contact_email"`
	Scopes       []string `json:"scopes"`
}

type orgResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	ContactEmail string     `json:"contact_email"`
	Scopes       []string   `json:"scopes"`
	OwnerID      string     `json:"owner_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

type createAPIKeyRequest struct {
	Label  string   `json:"label"`
	Scopes []string `json:"scopes"`
}

func orgToResponse(org auth.Organization) orgResponse {
	return orgResponse{
		ID:           org.ID,
		Name:         org.Name,
		ContactEmail: org.ContactEmail,
		Scopes:       org.Scopes,
		OwnerID:      org.OwnerID,
		CreatedAt:    org.CreatedAt,
		UpdatedAt:    org.UpdatedAt,
	}
}

func (a *API) createOrg(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	var req createOrgRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	org, err := a.svc.CreateOrganization(r.Context(), claims.Subject, req.Name, req.ContactEmail, req.Scopes)
	if err != nil {
		a.respondOrgError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.org.created", map[string]any{
		"org_id": org.ID,
	})
	writeJSON(w, http.StatusCreated, orgToResponse(org))
}

func (a *API) getOrg(w http.ResponseWriter, r *http.Request) {
	org, ok := auth.OrganizationFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "Organization not found")
		return
	}
	writeJSON(w, http.StatusOK, orgToResponse(org))
}

func (a *API) updateOrg(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	var req updateOrgRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	org, err := a.svc.UpdateOrganization(r.Context(), r.PathValue("orgId"), claims.Subject, auth.OrganizationUpdate{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		Scopes:       req.Scopes,
	})
	if err != nil {
		a.respondOrgError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.org.updated", map[string]any{
		"org_id": org.ID,
	})
	writeJSON(w, http.StatusOK, orgToResponse(org))
}

func (a *API) createAPIKey(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	created, err := a.svc.CreateAPIKey(r.Context(), r.PathValue("orgId"), claims.Subject, req.Label, req.Scopes)
	if err != nil {
		a.respondOrgError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.apikey.created", map[string]any{
		"org_id":     r.PathValue("orgId"),
		"key_id":     created.ID,
		"key_prefix": created.KeyPrefix,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	keys, err := a.svc.ListAPIKeys(r.Context(), r.PathValue("orgId"), claims.Subject)
	if err != nil {
		a.respondOrgError(w, r, err)
		return
	}
	if keys == nil {
		keys = []auth.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (a *API) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	orgID := r.PathValue("orgId")
	keyID := r.PathValue("keyId")

	if err := a.svc.RevokeAPIKey(r.Context(), orgID, keyID, claims.Subject); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "API key not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.apikey.revoked", map[string]any{
		"org_id": orgID,
		"key_id": keyID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) respondOrgError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidScopes):
		writeError(w, r, http.StatusBadRequest, "invalid_scopes", "One or more scopes are invalid")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "Organization not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "server_error", "internal error")
	}
}
