package token

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/token/refresh"
)

// ErrAccessTokenNotFound is returned when no access token matches the hash.
var ErrAccessTokenNotFound = errors.New("access token not found")

// AccessToken is a stored access token record. The signed JWT itself is
// never stored; only its SHA-256 hash and a short display prefix. The record
// exists so introspection and revocation can consult live state that the
// signature alone cannot carry.
type AccessToken struct {
	ID            string
	TokenHash     string
	TokenPrefix   string
	ClientID      string
	UserID        string
	TenantID      string
	Scopes        oauth2.ScopeSet
	Revoked       bool
	RevokedReason string
	RevokedAt     *time.Time
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the token is past its expiry.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// AccessTokenRepo stores access token records.
type AccessTokenRepo interface {
	Create(ctx context.Context, token *AccessToken) error

	// GetByHash returns the record stored under the hash, revoked or not.
	GetByHash(ctx context.Context, tokenHash string) (*AccessToken, error)

	// Revoke marks the token revoked, conditioned on revoked=false. Returns
	// true only when this call performed the transition.
	Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error)
}

// Stores bundles the repositories a grant transaction touches.
type Stores struct {
	Codes         authcode.Repo
	AccessTokens  AccessTokenRepo
	RefreshTokens refresh.Repo
}

// Atomic provides transactional access to the token stores. Every
// exactly-once transition (code redemption, refresh rotation) runs inside
// InTx so a crash between the conditional check and the dependent inserts
// cannot consume a code without issuing a token.
type Atomic interface {
	// InTx runs fn against transaction-scoped stores, committing on nil and
	// rolling back on error.
	InTx(ctx context.Context, fn func(tx Stores) error) error

	// Stores returns non-transactional store access for point reads.
	Stores() Stores
}
