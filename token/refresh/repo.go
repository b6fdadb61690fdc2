package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no token matches the hash.
var ErrNotFound = errors.New("refresh token not found")

// Repo stores refresh tokens. Revoke must be a conditional write so that two
// concurrent rotations of the same token cannot both observe success.
type Repo interface {
	Create(ctx context.Context, token *Token) error

	// GetByHash returns the token stored under the hash, revoked or not.
	GetByHash(ctx context.Context, tokenHash string) (*Token, error)

	// Revoke marks the token revoked with the given reason, conditioned on
	// revoked=false. Returns true only when this call performed the
	// transition.
	Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error)

	// Descendants returns every token downstream of id in its lineage,
	// following previous_token_id links forward. This is the reuse-detection
	// fan-out; everywhere else a point lookup suffices.
	Descendants(ctx context.Context, id string) ([]*Token, error)
}
