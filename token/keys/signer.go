package keys

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs JWT claims with a specific key.
type Signer interface {
	// Sign creates a signed JWT from claims, embedding the key ID in the
	// token header.
	Sign(claims jwt.MapClaims) (string, error)

	// Kid returns the identifier of the key this signer signs with.
	Kid() string
}

// KeyPairSigner implements Signer using an RSA private key with RS256.
type KeyPairSigner struct {
	kid        string
	privateKey *rsa.PrivateKey
}

// NewKeyPairSigner creates a signer from a key ID and its private key.
func NewKeyPairSigner(kid string, privateKey *rsa.PrivateKey) *KeyPairSigner {
	return &KeyPairSigner{kid: kid, privateKey: privateKey}
}

func (s *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with asymmetric key")
	}
	return signed, nil
}

func (s *KeyPairSigner) Kid() string {
	return s.kid
}
