package auth

import "context"

type claimsContextKey struct{}
type orgContextKey struct{}

// ContextWithClaims attaches verified access-token claims to the context.
func ContextWithClaims(ctx context.Context, claims AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, &claims)
}

// ClaimsFromContext extracts the verified claims placed by the auth guard.
func ClaimsFromContext(ctx context.Context) (AccessClaims, bool) {
	if ctx == nil {
		return AccessClaims{}, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*AccessClaims)
	if !ok || v == nil {
		return AccessClaims{}, false
	}
	return *v, true
}

// ContextWithOrganization stores the organization resolved by the ownership
// guard so handlers do not load it twice.
func ContextWithOrganization(ctx context.Context, org Organization) context.Context {
	return context.WithValue(ctx, orgContextKey{}, &org)
}

// OrganizationFromContext returns the organization resolved for the request.
func OrganizationFromContext(ctx context.Context) (Organization, bool) {
	if ctx == nil {
		return Organization{}, false
	}
	v, ok := ctx.Value(orgContextKey{}).(*Organization)
	if !ok || v == nil {
		return Organization{}, false
	}
	return *v, true
}
