package repofakes

import (
	"context"
	"sync"

	"github.com/radiantplatform/oauth-core/clients"
)

// FakeClientRepo is an in-memory client registry for tests.
type FakeClientRepo struct {
	mu      sync.RWMutex
	clients map[string]*clients.Client
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{clients: make(map[string]*clients.Client)}
}

func (r *FakeClientRepo) Get(_ context.Context, clientID string) (*clients.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, clients.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Add registers a client. Test helper, not part of the Repo contract.
func (r *FakeClientRepo) Add(c *clients.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}
