package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// IssueRefreshToken mints a fresh opaque refresh credential for the user.
// The raw hex value is returned exactly once; only its sha256 is stored.
func (s *Service) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := hex.EncodeToString(raw)
	rec := RefreshToken{
		UserID:    userID,
		TokenHash: hashRefreshToken(token),
		ExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}
	if err := s.store.CreateRefreshToken(ctx, &rec); err != nil {
		return "", err
	}
	return token, nil
}

// Refresh rotates the credential: the presented token is atomically claimed
// (revoked), and a new access/refresh pair is minted for its owner. Returns
// ErrUnauthorized for unknown, expired or already-rotated tokens and
// ErrNotFound when the owning user no longer exists.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, User, error) {
	if raw == "" {
		return TokenPair{}, User{}, ErrUnauthorized
	}
	_, userID, err := s.store.ClaimRefreshToken(ctx, hashRefreshToken(raw))
	if err != nil {
		// Store failures during validation fail closed.
		return TokenPair{}, User{}, ErrUnauthorized
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, User{}, ErrNotFound
		}
		return TokenPair{}, User{}, ErrUnauthorized
	}

	return s.issueFirstPartyPair(ctx, user)
}

// RevokeRefreshToken invalidates the credential. Revoking an unknown or
// already-revoked token is a no-op; only a store failure is an error.
func (s *Service) RevokeRefreshToken(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.store.RevokeRefreshToken(ctx, hashRefreshToken(raw))
}

func (s *Service) issueFirstPartyPair(ctx context.Context, user User) (TokenPair, User, error) {
	access, err := s.tokens.Sign(AccessClaims{
		CredentialType:   CredentialFirstParty,
		Role:             user.Role,
		RegisteredClaims: registeredClaimsFor(user.ID),
	})
	if err != nil {
		return TokenPair{}, User{}, err
	}
	refresh, err := s.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return TokenPair{}, User{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
	}, user, nil
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
