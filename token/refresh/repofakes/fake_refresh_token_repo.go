package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/radiantplatform/oauth-core/token/refresh"
)

// FakeRefreshTokenRepo is an in-memory refresh token store implementing the
// same compare-and-set revocation semantics as the relational
// implementation.
type FakeRefreshTokenRepo struct {
	mu     sync.Mutex
	byID   map[string]*refresh.Token
	byHash map[string]string // hash -> id
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		byID:   make(map[string]*refresh.Token),
		byHash: make(map[string]string),
	}
}

func (r *FakeRefreshTokenRepo) Create(_ context.Context, token *refresh.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.byID[token.ID] = &cp
	r.byHash[token.TokenHash] = token.ID
	return nil
}

func (r *FakeRefreshTokenRepo) GetByHash(_ context.Context, tokenHash string) (*refresh.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *FakeRefreshTokenRepo) Revoke(_ context.Context, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byID[id]
	if !ok || token.Revoked {
		return false, nil
	}
	token.Revoked = true
	token.RevokedReason = reason
	revokedAt := at
	token.RevokedAt = &revokedAt
	return true, nil
}

func (r *FakeRefreshTokenRepo) Descendants(_ context.Context, id string) ([]*refresh.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*refresh.Token
	current := id
	for {
		var next *refresh.Token
		for _, token := range r.byID {
			if token.PreviousTokenID == current {
				next = token
				break
			}
		}
		if next == nil {
			return out, nil
		}
		cp := *next
		out = append(out, &cp)
		current = next.ID
	}
}

// Get returns a token by ID. Test helper, not part of the Repo contract.
func (r *FakeRefreshTokenRepo) Get(id string) *refresh.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byID[id]
	if !ok {
		return nil
	}
	cp := *token
	return &cp
}
