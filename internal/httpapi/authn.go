package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"loctrec.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth extracts and verifies the bearer token and attaches the
// claims to the request context. Verification failures are uniformly 401
// without a reason, so expired and tampered tokens look the same.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
			return
		}
		claims, err := a.svc.Tokens().Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		ctx := auth.ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole admits only first-party credentials whose role is in the
// allowed set.
func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}
			if claims.CredentialType != auth.CredentialFirstParty || claims.Role == "" {
				writeError(w, r, http.StatusForbidden, "forbidden", "Insufficient role")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeError(w, r, http.StatusForbidden, "forbidden", "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireOrgOwner resolves the {orgId} path parameter. Existence is checked
// first (404), ownership second (403). The resolved organization is stashed
// in the context for handlers.
func (a *API) requireOrgOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing credentials")
			return
		}
		orgID := r.PathValue("orgId")
		org, err := a.svc.ResolveOrganization(r.Context(), orgID)
		if err != nil {
			// Store failures during validation fail closed as not-found.
			writeError(w, r, http.StatusNotFound, "not_found", "Organization not found")
			return
		}
		if org.OwnerID != claims.Subject {
			writeError(w, r, http.StatusForbidden, "forbidden", "Not the organization owner")
			return
		}
		ctx := auth.ContextWithOrganization(r.Context(), org)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(header, bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
