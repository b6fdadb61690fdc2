package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/radiantplatform/oauth-core/token"
)

// FakeAccessTokenRepo is an in-memory access token store with the same
// compare-and-set revocation semantics as the relational implementation.
type FakeAccessTokenRepo struct {
	mu     sync.Mutex
	byID   map[string]*token.AccessToken
	byHash map[string]string // hash -> id
}

func NewFakeAccessTokenRepo() *FakeAccessTokenRepo {
	return &FakeAccessTokenRepo{
		byID:   make(map[string]*token.AccessToken),
		byHash: make(map[string]string),
	}
}

func (r *FakeAccessTokenRepo) Create(_ context.Context, t *token.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.byID[t.ID] = &cp
	r.byHash[t.TokenHash] = t.ID
	return nil
}

func (r *FakeAccessTokenRepo) GetByHash(_ context.Context, tokenHash string) (*token.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, token.ErrAccessTokenNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *FakeAccessTokenRepo) Revoke(_ context.Context, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	t.RevokedReason = reason
	revokedAt := at
	t.RevokedAt = &revokedAt
	return true, nil
}

// Get returns a token by ID. Test helper, not part of the repo contract.
func (r *FakeAccessTokenRepo) Get(id string) *token.AccessToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}
