package clients

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no client exists for the given ID.
var ErrNotFound = errors.New("client not found")

// Repo is the read-only view of the client registry this core consumes.
// Registration and approval are owned by an external store.
type Repo interface {
	Get(ctx context.Context, clientID string) (*Client, error)
}
