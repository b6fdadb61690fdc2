package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// RS256 is the only signing algorithm this server issues keys for.
const RS256 = "RS256"

// SigningKey is the stored metadata for one asymmetric signing key. The
// private half never appears here; SecretRef points at it in the secret
// store.
type SigningKey struct {
	ID            string
	TenantID      string
	Kid           string
	Algorithm     string
	PublicKeyPEM  string
	SecretRef     string
	Active        bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
	DeactivatedAt *time.Time
}

// InGrace reports whether a deactivated key is still inside the verification
// grace window.
func (k *SigningKey) InGrace(now time.Time, grace time.Duration) bool {
	return k.DeactivatedAt != nil && k.DeactivatedAt.After(now.Add(-grace))
}

// Verifiable reports whether the key may still be used to verify signatures:
// either active, or deactivated within the grace window.
func (k *SigningKey) Verifiable(now time.Time, grace time.Duration) bool {
	return k.Active || k.InGrace(now, grace)
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA)
	Use string `json:"use,omitempty"` // sig or enc
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	N   string `json:"n,omitempty"`   // Modulus
	E   string `json:"e,omitempty"`   // Exponent
}

// KeyPair holds a freshly generated RSA key pair before the halves are split
// between the key table and the secret store.
type KeyPair struct {
	Kid        string
	PrivateKey *rsa.PrivateKey
	Algorithm  string
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing.
// Anything below 2048 bits is rounded up.
func GenerateRSAKeyPair(kid string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}
	return &KeyPair{
		Kid:        kid,
		PrivateKey: privateKey,
		Algorithm:  RS256,
	}, nil
}

// SigningMethod returns the JWT signing method for this key pair.
func (kp *KeyPair) SigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

// ExportPublicKeyPEM exports the public key as PEM.
func (kp *KeyPair) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&kp.PrivateKey.PublicKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal public key")
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})), nil
}

// ExportPrivateKeyPEM exports the RSA private key as PEM for the secret
// store.
func (kp *KeyPair) ExportPrivateKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	}))
}

// LoadRSAPrivateKeyFromPEM loads an RSA private key from PEM format.
func LoadRSAPrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	privKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse RSA private key")
	}
	return privKey, nil
}

// LoadRSAPublicKeyFromPEM loads an RSA public key from PEM format.
func LoadRSAPublicKeyFromPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaPub, nil
}

// ToJWK converts a stored signing key's public half to JWK format.
func (k *SigningKey) ToJWK() (*JWK, error) {
	pubKey, err := LoadRSAPublicKeyFromPEM(k.PublicKeyPEM)
	if err != nil {
		return nil, errors.Wrapf(err, "key %s", k.Kid)
	}
	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: k.Kid,
		Alg: k.Algorithm,
		N:   base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes()),
	}, nil
}
