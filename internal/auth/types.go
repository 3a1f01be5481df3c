package auth

import "time"

// User is an account created through the OAuth login flow.
type User struct {
	ID              string    `json:"id"`
	OAuthProvider   string    `json:"-"`
	OAuthProviderID string    `json:"-"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"created_at"`
}

// Organization owns API keys and bounds the scopes they may carry.
type Organization struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	ContactEmail string     `json:"contact_email"`
	Scopes       []string   `json:"scopes"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// OrganizationUpdate carries the mutable organization fields; nil means
// leave unchanged.
type OrganizationUpdate struct {
	Name         *string
	ContactEmail *string
	Scopes       []string
}

// APIKey is an organization credential. Only the argon2id hash of the raw
// key is stored; the prefix is kept in clear as a lookup index.
type APIKey struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"-"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Label      string     `json:"label"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreatedAPIKey is returned from key creation only. Key carries the raw
// value; it is never persisted and never returned again.
type CreatedAPIKey struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	Label     string    `json:"label"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the persisted half of a refresh credential. TokenHash is
// the sha256 of the raw value handed to the client.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// TokenPair bundles a freshly minted access token with its rotated refresh
// token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}
