package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
// Every mutation is a single conditional statement so no application-level
// locking is needed.
type Store interface {
	// UpsertOAuthUser inserts or refreshes a user keyed by provider and
	// provider subject. On conflict name and email are updated; the role is
	// preserved.
	UpsertOAuthUser(ctx context.Context, provider, providerID, email, name, defaultRole string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)

	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	// GetOwnedOrganization returns ErrNotFound both when the organization is
	// absent and when it is owned by someone else.
	GetOwnedOrganization(ctx context.Context, id, ownerID string) (Organization, error)
	UpdateOrganization(ctx context.Context, id, ownerID string, upd OrganizationUpdate) (Organization, error)

	CreateAPIKey(ctx context.Context, key *APIKey) error
	ListAPIKeys(ctx context.Context, orgID string) ([]APIKey, error)
	// RevokeAPIKey returns ErrNotFound when the key is absent, belongs to a
	// different organization, or is already revoked.
	RevokeAPIKey(ctx context.Context, orgID, keyID string) error
	// FindActiveAPIKeyByPrefix matches non-revoked, non-expired keys only.
	FindActiveAPIKeyByPrefix(ctx context.Context, prefix string) (APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error

	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	// ClaimRefreshToken atomically revokes a still-valid token matching the
	// hash and returns its identity. Exactly one concurrent caller can win.
	ClaimRefreshToken(ctx context.Context, tokenHash string) (id, userID string, err error)
	// RevokeRefreshToken marks matching unrevoked rows revoked; unknown or
	// already-revoked hashes are a no-op.
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}
