package auth

import "errors"

// Error kinds returned by the auth services. HTTP handlers map these to
// status codes; the messages never carry key material or hashes.
var (
	// ErrUnauthorized covers every invalid-credential condition: missing,
	// malformed, expired, tampered or revoked. Callers must not learn which.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrForbidden means the credential is valid but the role or ownership
	// check failed.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrNotFound covers both absent resources and resources the requester
	// does not own, so existence is not leaked.
	ErrNotFound = errors.New("auth: not found")

	// ErrInvalidToken indicates an access token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidScopes means requested scopes violate the containment rule.
	ErrInvalidScopes = errors.New("auth: invalid scopes")

	// ErrInvalidGrant means the token request used an unsupported grant type.
	ErrInvalidGrant = errors.New("auth: invalid grant")

	// ErrStateMismatch means the OAuth callback state did not match the
	// value stored at redirect time.
	ErrStateMismatch = errors.New("auth: oauth state mismatch")

	// ErrOAuthFailed is the generic failure for the provider exchange chain;
	// provider error detail is logged, never surfaced.
	ErrOAuthFailed = errors.New("auth: oauth exchange failed")

	// ErrInvalidInput covers malformed request fields.
	ErrInvalidInput = errors.New("auth: invalid input")
)
