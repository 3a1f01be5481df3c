package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// apiKeyTag prefixes every raw key so leaked credentials are
	// recognizable in scanners and logs.
	apiKeyTag = "ltk_"

	// apiKeyPrefixLen is the number of leading raw-key characters stored in
	// clear as a lookup index.
	apiKeyPrefixLen = 8

	apiKeyRandomBytes = 16
)

// CreateAPIKey issues a key for an organization the requester owns. The
// requested scopes must be contained in the organization's scopes. The raw
// key is returned once and never persisted.
func (s *Service) CreateAPIKey(ctx context.Context, orgID, requesterID, label string, scopes []string) (CreatedAPIKey, error) {
	org, err := s.store.GetOwnedOrganization(ctx, orgID, requesterID)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	if !ValidScopes(scopes, org.Scopes) {
		return CreatedAPIKey{}, fmt.Errorf("%w: requested scopes must be a subset of the organization scopes", ErrInvalidScopes)
	}

	body := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(body); err != nil {
		return CreatedAPIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	rawKey := apiKeyTag + hex.EncodeToString(body)
	hash, err := hashSecret(rawKey)
	if err != nil {
		return CreatedAPIKey{}, err
	}

	key := APIKey{
		OrgID:     orgID,
		KeyHash:   hash,
		KeyPrefix: rawKey[:apiKeyPrefixLen],
		Label:     label,
		Scopes:    scopes,
	}
	if err := s.store.CreateAPIKey(ctx, &key); err != nil {
		return CreatedAPIKey{}, err
	}
	return CreatedAPIKey{
		ID:        key.ID,
		Key:       rawKey,
		KeyPrefix: key.KeyPrefix,
		Label:     key.Label,
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt,
	}, nil
}

// ListAPIKeys returns the organization's non-revoked keys, newest first.
// Only hashes and prefixes are stored, so raw keys are never listed.
func (s *Service) ListAPIKeys(ctx context.Context, orgID, requesterID string) ([]APIKey, error) {
	if _, err := s.store.GetOwnedOrganization(ctx, orgID, requesterID); err != nil {
		return nil, err
	}
	return s.store.ListAPIKeys(ctx, orgID)
}

// RevokeAPIKey marks the key revoked. Revoked keys are kept, never deleted.
// Returns ErrNotFound when the key is absent or already revoked.
func (s *Service) RevokeAPIKey(ctx context.Context, orgID, keyID, requesterID string) error {
	if _, err := s.store.GetOwnedOrganization(ctx, orgID, requesterID); err != nil {
		return err
	}
	return s.store.RevokeAPIKey(ctx, orgID, keyID)
}

// ExchangeAPIKey authenticates a raw key and mints a third-party access
// token. The prefix narrows the lookup; the argon2id comparison is the
// actual check. Key scopes are re-validated against the organization's
// current scopes so narrowing an organization invalidates existing keys.
// Every failure maps to ErrUnauthorized.
func (s *Service) ExchangeAPIKey(ctx context.Context, rawKey, onBehalfOf string) (string, error) {
	if len(rawKey) < apiKeyPrefixLen {
		return "", ErrUnauthorized
	}
	key, err := s.store.FindActiveAPIKeyByPrefix(ctx, rawKey[:apiKeyPrefixLen])
	if err != nil {
		return "", ErrUnauthorized
	}
	if !verifySecret(key.KeyHash, rawKey) {
		return "", ErrUnauthorized
	}

	org, err := s.store.GetOrganization(ctx, key.OrgID)
	if err != nil {
		return "", ErrUnauthorized
	}
	if !ValidScopes(key.Scopes, org.Scopes) {
		return "", ErrUnauthorized
	}

	if err := s.store.TouchAPIKey(ctx, key.ID); err != nil {
		return "", ErrUnauthorized
	}

	claims := AccessClaims{
		CredentialType:   CredentialThirdParty,
		Scopes:           key.Scopes,
		RegisteredClaims: registeredClaimsFor(org.ID),
	}
	if onBehalfOf != "" {
		claims.Subject = onBehalfOf
		claims.OrgID = org.ID
	}
	return s.tokens.Sign(claims)
}
