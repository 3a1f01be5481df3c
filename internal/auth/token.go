package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is the fixed iss claim checked on every verification.
	Issuer = "loctrec-auth"

	// AccessTokenTTL bounds the lifetime of every access token. Access
	// tokens are not revocable, so the window stays short.
	AccessTokenTTL = 15 * time.Minute

	// CredentialFirstParty marks a human session token carrying a role.
	CredentialFirstParty = "fp"
	// CredentialThirdParty marks an API-key-derived token carrying scopes.
	CredentialThirdParty = "tp"
)

// AccessClaims is the payload of a signed access token. First-party tokens
// carry Role and never Scopes/OrgID; third-party tokens carry Scopes (and
// OrgID when issued on behalf of someone) and never Role.
type AccessClaims struct {
	CredentialType string   `json:"ct"`
	Role           string   `json:"role,omitempty"`
	Scopes         []string `json:"scp,omitempty"`
	OrgID          string   `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access tokens with the KeyManager's
// ES256 keypair. It performs no credential-type shape checks beyond sign
// time; guards decide what a given route accepts.
type TokenService struct {
	keys *KeyManager
	now  func() time.Time
}

// NewTokenService wires a token service to the signing keys.
func NewTokenService(keys *KeyManager) *TokenService {
	return &TokenService{keys: keys, now: time.Now}
}

// Sign serializes and signs the claims, stamping issuer, issued-at and the
// 15-minute expiry. Subject and a coherent credential shape are required.
func (t *TokenService) Sign(claims AccessClaims) (string, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	switch claims.CredentialType {
	case CredentialFirstParty:
		if claims.Role == "" || len(claims.Scopes) > 0 || claims.OrgID != "" {
			return "", fmt.Errorf("%w: first-party tokens carry a role and no scopes", ErrInvalidInput)
		}
	case CredentialThirdParty:
		if claims.Role != "" {
			return "", fmt.Errorf("%w: third-party tokens carry scopes and no role", ErrInvalidInput)
		}
	default:
		return "", fmt.Errorf("%w: unknown credential type %q", ErrInvalidInput, claims.CredentialType)
	}

	key, err := t.keys.SigningKey()
	if err != nil {
		return "", err
	}

	now := t.now().UTC()
	claims.Issuer = Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(AccessTokenTTL))

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = KeyID
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func registeredClaimsFor(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: subject}
}

// Verify checks signature, algorithm, issuer and expiry. Every failure maps
// to ErrInvalidToken so callers cannot distinguish expired from tampered.
func (t *TokenService) Verify(token string) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	pub, err := t.keys.VerificationKey()
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodES256 {
			return nil, ErrInvalidToken
		}
		return pub, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return *claims, nil
}
