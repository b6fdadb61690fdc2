// Package users is the read-only boundary to the platform's user store.
// Only the fields surfaced by the /userinfo endpoint are modelled here;
// user lifecycle and persistence belong to an external collaborator.
package users

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no user exists for the given ID.
var ErrNotFound = errors.New("user not found")

// User carries the claims this server may release through ID tokens and the
// userinfo endpoint.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
	TenantIDs     []string
}

// Name returns the display name claim.
func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasTenant reports whether the user belongs to the tenant.
func (u *User) HasTenant(tenantID string) bool {
	for _, id := range u.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}

// Repo is the read-only user lookup this core consumes.
type Repo interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
