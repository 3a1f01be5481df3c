package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"loctrec.org/internal/auth"
	"loctrec.org/internal/obs"
)

// ReadyProbe reports whether the service can reach its store.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth services.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	oauth      *auth.OAuthFlow
	keys       *auth.KeyManager
	readyProbe ReadyProbe
	version    string
}

// New wires routes and guards. Organization and key management routes
// require, in order: a valid bearer token, the organizer role, and
// ownership of the addressed organization.
func New(svc *auth.Service, oauthFlow *auth.OAuthFlow, keys *auth.KeyManager, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		oauth:      oauthFlow,
		keys:       keys,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.ready)
	a.mux.HandleFunc("GET /.well-known/jwks.json", a.jwks)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /token", a.handleToken)
	a.mux.HandleFunc("POST /token/refresh", a.handleTokenRefresh)
	a.mux.HandleFunc("DELETE /token", a.handleTokenRevoke)

	a.mux.HandleFunc("GET /oauth/google", a.handleOAuthRedirect)
	a.mux.HandleFunc("GET /oauth/google/callback", a.handleOAuthCallback)

	a.mux.Handle("GET /me", a.requireAuth(http.HandlerFunc(a.handleMe)))

	organizer := func(h http.HandlerFunc) http.Handler {
		return a.requireAuth(a.requireRole(auth.RoleOrganizer)(h))
	}
	orgOwner := func(h http.HandlerFunc) http.Handler {
		return a.requireAuth(a.requireRole(auth.RoleOrganizer)(a.requireOrgOwner(h)))
	}

	a.mux.Handle("POST /orgs", organizer(a.createOrg))
	a.mux.Handle("GET /orgs/{orgId}", orgOwner(a.getOrg))
	a.mux.Handle("PATCH /orgs/{orgId}", orgOwner(a.updateOrg))
	a.mux.Handle("POST /orgs/{orgId}/api-keys", orgOwner(a.createAPIKey))
	a.mux.Handle("GET /orgs/{orgId}/api-keys", orgOwner(a.listAPIKeys))
	a.mux.Handle("DELETE /orgs/{orgId}/api-keys/{keyId}", orgOwner(a.revokeAPIKey))

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := SecurityHeaders(a.mux)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "loctrec-auth",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) jwks(w http.ResponseWriter, r *http.Request) {
	set, err := a.keys.PublicKeySet()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", "key set unavailable")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, set)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return
	}
	if claims.CredentialType == auth.CredentialThirdParty {
		writeJSON(w, http.StatusOK, map[string]any{
			"sub": claims.Subject,
			"ct":  claims.CredentialType,
			"org": claims.OrgID,
			"scp": claims.Scopes,
		})
		return
	}
	user, err := a.svc.GetUser(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "User not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the error envelope. The code field is a stable machine
// identifier; the message stays generic for credential failures.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error":   code,
		"message": msg,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
