package keys

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNoActiveKey is returned when a tenant has no active signing key.
var ErrNoActiveKey = errors.New("no active signing key for tenant")

// Repo stores signing key metadata. Activation ordering is owned by the
// Manager; the repo only provides the conditional primitives.
type Repo interface {
	// Create inserts a key row. The key may be created active; rotation
	// relies on the new key being active before the old ones are
	// deactivated.
	Create(ctx context.Context, key *SigningKey) error

	// ActiveKey returns the tenant's active key. When rotation has raced and
	// more than one is active, the newest wins. Returns ErrNoActiveKey when
	// there is none.
	ActiveKey(ctx context.Context, tenantID string) (*SigningKey, error)

	// DeactivateOthers marks every active key for the tenant except keepID
	// as inactive with the given deactivation timestamp, returning how many
	// transitioned.
	DeactivateOthers(ctx context.Context, tenantID, keepID string, at time.Time) (int64, error)

	// VerificationSet returns keys valid for signature verification: active,
	// or deactivated after the cutoff (now minus the grace window).
	VerificationSet(ctx context.Context, tenantID string, cutoff time.Time) ([]*SigningKey, error)

	// ExpiredRetired returns deactivated keys whose expiry is before the
	// given bound, candidates for permanent deletion.
	ExpiredRetired(ctx context.Context, before time.Time) ([]*SigningKey, error)

	// Delete permanently removes a key row.
	Delete(ctx context.Context, id string) error
}
