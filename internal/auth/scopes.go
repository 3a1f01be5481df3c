package auth

// AvailableScopes is the fixed permission vocabulary. Organizations,
// API keys and third-party tokens may only carry scopes from this list.
var AvailableScopes = []string{
	"events:read",
	"events:write",
	"registrations:read",
	"registrations:write",
	"tracker:subscribe",
	"tracker:read",
}

var availableScopeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(AvailableScopes))
	for _, s := range AvailableScopes {
		set[s] = struct{}{}
	}
	return set
}()

// ValidScopes reports whether every requested scope is both a member of
// allowed and a member of the fixed vocabulary. The empty request is always
// valid. This is the single containment check used at organization
// create/update, API key creation and token exchange.
func ValidScopes(requested, allowed []string) bool {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := availableScopeSet[s]; !ok {
			return false
		}
		if _, ok := allowedSet[s]; !ok {
			return false
		}
	}
	return true
}
