package httpapi

import (
	"errors"
	"net/http"

	"loctrec.org/internal/audit"
	"loctrec.org/internal/auth"
	"loctrec.org/internal/obs"
)

const (
	stateCookie    = "oauth_state"
	verifierCookie = "oauth_code_verifier"
	cookieTTL      = 600
)

type oauthUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type oauthTokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int               `json:"expires_in"`
	User         oauthUserResponse `json:"user"`
}

// handleOAuthRedirect starts the Google login: state and PKCE verifier go
// into short-lived http-only cookies, the browser goes to the provider.
func (a *API) handleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	authz, err := a.oauth.Begin()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	setFlowCookie(w, stateCookie, authz.State, cookieTTL)
	setFlowCookie(w, verifierCookie, authz.CodeVerifier, cookieTTL)
	http.Redirect(w, r, authz.URL, http.StatusFound)
}

// handleOAuthCallback completes the login and returns a first-party token
// pair plus a user summary. Provider failures all render the same generic
// 400; the detail goes to the log only.
func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	storedState := cookieValue(r, stateCookie)
	verifier := cookieValue(r, verifierCookie)

	result, err := a.oauth.Complete(r.Context(), code, state, storedState, verifier)
	if err != nil {
		if errors.Is(err, auth.ErrStateMismatch) {
			writeError(w, r, http.StatusBadRequest, "invalid_state", "OAuth state mismatch")
			return
		}
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "oauth callback failed",
			"err":   err.Error(),
		})
		writeError(w, r, http.StatusBadRequest, "oauth_error", "OAuth callback failed")
		return
	}

	setFlowCookie(w, stateCookie, "", -1)
	setFlowCookie(w, verifierCookie, "", -1)

	_ = audit.LogEvent(r.Context(), "auth.oauth.login", map[string]any{
		"user_id": result.User.ID,
	})
	writeJSON(w, http.StatusOK, oauthTokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.Tokens.ExpiresIn,
		User: oauthUserResponse{
			ID:    result.User.ID,
			Email: result.User.Email,
			Name:  result.User.Name,
			Role:  result.User.Role,
		},
	})
}

func setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
