package authcode

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrCodeNotFound is returned when no code matches the hash and client,
	// or when the code was already redeemed. The two cases are deliberately
	// indistinguishable: both surface as invalid_grant.
	ErrCodeNotFound = errors.New("authorization code not found or already used")
)

// Repo stores authorization codes. Redeem must be a conditional write at the
// storage layer: two concurrent redemptions of the same code must not both
// observe success.
type Repo interface {
	Create(ctx context.Context, code *Code) error

	// Redeem marks the code used and returns it, conditioned on used=false
	// and the owning client matching. Returns ErrCodeNotFound when no row
	// transitioned. Expiry is checked by the caller after redemption.
	Redeem(ctx context.Context, codeHash, clientID string, at time.Time) (*Code, error)

	// DeleteExpired removes codes whose expiry is before now, returning the
	// number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ConsentRepo stores UserAuthorization consent records, one per
// (user, client, tenant) triple.
type ConsentRepo interface {
	// Upsert replaces the consent record, including its scope set.
	Upsert(ctx context.Context, consent *Consent) error

	// Get returns the consent record, or nil when none exists.
	Get(ctx context.Context, userID, clientID, tenantID string) (*Consent, error)
}
