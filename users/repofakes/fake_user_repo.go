package repofakes

import (
	"context"
	"sync"

	"github.com/radiantplatform/oauth-core/users"
)

// FakeUserRepo is an in-memory user store for tests.
type FakeUserRepo struct {
	mu    sync.RWMutex
	users map[string]*users.User
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{users: make(map[string]*users.User)}
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// Add stores a user. Test helper, not part of the Repo contract.
func (r *FakeUserRepo) Add(u *users.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}
