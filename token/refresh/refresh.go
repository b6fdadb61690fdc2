// Package refresh implements the rotating refresh token chain. Each
// successful redemption revokes the presented token and mints its successor
// at the next generation; redemption of an already-revoked token is treated
// as replay and triggers revocation of the lineage's live tail.
package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/radiantplatform/oauth-core/oauth2"
)

const (
	tokenLength  = 32 // 256 bits
	prefixLength = 8
)

// Revocation reasons recorded on the token row.
const (
	ReasonRotated       = "rotated"
	ReasonReuseDetected = "reuse_detected"
	ReasonRevoked       = "revoked"
)

// Token is a stored refresh token. The token value is never stored; only its
// SHA-256 hash and a short display prefix. Generation increases by exactly
// one per rotation within a lineage, and at most one token in a lineage is
// un-revoked at any time.
type Token struct {
	ID              string
	TokenHash       string
	TokenPrefix     string
	ClientID        string
	UserID          string
	TenantID        string
	Scopes          oauth2.ScopeSet
	Generation      int
	PreviousTokenID string
	Revoked         bool
	RevokedReason   string
	RevokedAt       *time.Time
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// Expired reports whether the token is past its expiry.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Hash returns the SHA-256 hex digest under which a plaintext token is
// stored.
func Hash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the short display prefix of a plaintext token.
func Prefix(plain string) string {
	if len(plain) < prefixLength {
		return plain
	}
	return plain[:prefixLength]
}

// GeneratePlain mints a new opaque refresh token value with 256 bits of
// entropy.
func GeneratePlain() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return hex.EncodeToString(buf), nil
}

// NewToken builds a generation-1 token record for a fresh grant. The
// plaintext is returned separately and never stored.
func NewToken(clientID, userID, tenantID string, scopes oauth2.ScopeSet, now time.Time, ttl time.Duration) (*Token, string, error) {
	plain, err := GeneratePlain()
	if err != nil {
		return nil, "", errors.Wrap(err, "[NewToken] GeneratePlain")
	}
	return &Token{
		ID:          uuid.New().String(),
		TokenHash:   Hash(plain),
		TokenPrefix: Prefix(plain),
		ClientID:    clientID,
		UserID:      userID,
		TenantID:    tenantID,
		Scopes:      scopes.Clone(),
		Generation:  1,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}, plain, nil
}

// Successor builds the next-generation token record replacing t, carrying
// the (possibly narrowed) scope set.
func (t *Token) Successor(scopes oauth2.ScopeSet, now time.Time, ttl time.Duration) (*Token, string, error) {
	plain, err := GeneratePlain()
	if err != nil {
		return nil, "", errors.Wrap(err, "[Token.Successor] GeneratePlain")
	}
	return &Token{
		ID:              uuid.New().String(),
		TokenHash:       Hash(plain),
		TokenPrefix:     Prefix(plain),
		ClientID:        t.ClientID,
		UserID:          t.UserID,
		TenantID:        t.TenantID,
		Scopes:          scopes.Clone(),
		Generation:      t.Generation + 1,
		PreviousTokenID: t.ID,
		ExpiresAt:       now.Add(ttl),
		CreatedAt:       now,
	}, plain, nil
}
