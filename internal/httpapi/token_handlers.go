package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"loctrec.org/internal/audit"
	"loctrec.org/internal/auth"
)

type tokenRequest struct {
	GrantType  string `json:"grant_type"`
	APIKey     string `json:"api_key"`
	OnBehalfOf string `json:"on_behalf_of"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// handleToken exchanges an organization API key for a third-party access
// token (grant_type=client_credentials).
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.GrantType != "client_credentials" {
		writeError(w, r, http.StatusBadRequest, "invalid_grant", "Unsupported grant_type")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "api_key is required")
		return
	}

	accessToken, err := a.svc.ExchangeAPIKey(r.Context(), req.APIKey, req.OnBehalfOf)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid_key", "Invalid API key")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.apikey.exchanged", map[string]any{
		"key_prefix": req.APIKey[:min(len(req.APIKey), 8)],
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(auth.AccessTokenTTL.Seconds()),
	})
}

// handleTokenRefresh rotates a refresh token and returns a fresh pair.
func (a *API) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, user, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "User not found")
			return
		}
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "Invalid refresh token")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh.rotated", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// handleTokenRevoke invalidates a refresh token. Unknown tokens succeed;
// only a store failure is an error.
func (a *API) handleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := a.svc.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh.revoked", nil)
	w.WriteHeader(http.StatusNoContent)
}
