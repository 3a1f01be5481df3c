package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"

	"loctrec.org/internal/obs"
)

// KeyID identifies the service signing key in token headers and the JWKS.
// Rotating the key means deploying with a new identifier.
const KeyID = "loctrec-auth-1"

// KeyManager owns the process-wide ES256 signing keypair. Initialization is
// lazy and race-safe: the first caller creates or imports exactly one pair
// and every caller observes the same instance afterwards.
type KeyManager struct {
	once    sync.Once
	initErr error
	priv    *ecdsa.PrivateKey

	privatePEM string
}

// NewKeyManager returns a manager that imports the given PEM-encoded P-256
// private key on first use. With empty key material an ephemeral pair is
// generated instead and a warning is logged; tokens signed with it do not
// survive a restart.
func NewKeyManager(privatePEM string) *KeyManager {
	return &KeyManager{privatePEM: strings.TrimSpace(privatePEM)}
}

func (m *KeyManager) init() {
	m.once.Do(func() {
		if m.privatePEM != "" {
			key, err := parseECPrivateKey(m.privatePEM)
			if err != nil {
				m.initErr = fmt.Errorf("import signing key: %w", err)
				return
			}
			m.priv = key
			return
		}
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			m.initErr = fmt.Errorf("generate signing key: %w", err)
			return
		}
		m.priv = key
		obs.Warn("generated ephemeral JWT key pair (set LOCTREC_JWT_PRIVATE_KEY for production)")
	})
}

// SigningKey returns the private key used to sign access tokens.
func (m *KeyManager) SigningKey() (*ecdsa.PrivateKey, error) {
	m.init()
	if m.initErr != nil {
		return nil, m.initErr
	}
	return m.priv, nil
}

// VerificationKey returns the public half used to verify access tokens.
func (m *KeyManager) VerificationKey() (*ecdsa.PublicKey, error) {
	m.init()
	if m.initErr != nil {
		return nil, m.initErr
	}
	return &m.priv.PublicKey, nil
}

// JWK is a published verification key.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
}

// JWKS is the key set served at /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicKeySet exports the verification key as a JWKS document. The single
// key always declares its algorithm and use so verifiers can select it
// without ambiguity.
func (m *KeyManager) PublicKeySet() (JWKS, error) {
	pub, err := m.VerificationKey()
	if err != nil {
		return JWKS{}, err
	}
	size := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, size)
	y := make([]byte, size)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	return JWKS{Keys: []JWK{{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
		Kid: KeyID,
		Alg: "ES256",
		Use: "sig",
	}}}, nil
}

func parseECPrivateKey(pemData string) (*ecdsa.PrivateKey, error) {
	// Key material supplied through the environment often arrives with
	// escaped newlines.
	pemData = strings.ReplaceAll(pemData, `\n`, "\n")
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an EC private key")
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %s", block.Type)
	}
}
