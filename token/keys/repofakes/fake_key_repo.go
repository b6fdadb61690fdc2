package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/radiantplatform/oauth-core/token/keys"
)

// FakeKeyRepo is an in-memory signing key store.
type FakeKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*keys.SigningKey
}

func NewFakeKeyRepo() *FakeKeyRepo {
	return &FakeKeyRepo{keys: make(map[string]*keys.SigningKey)}
}

func (r *FakeKeyRepo) Create(_ context.Context, key *keys.SigningKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *key
	r.keys[key.ID] = &cp
	return nil
}

func (r *FakeKeyRepo) ActiveKey(_ context.Context, tenantID string) (*keys.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *keys.SigningKey
	for _, key := range r.keys {
		if key.TenantID != tenantID || !key.Active {
			continue
		}
		if newest == nil || key.CreatedAt.After(newest.CreatedAt) {
			newest = key
		}
	}
	if newest == nil {
		return nil, keys.ErrNoActiveKey
	}
	cp := *newest
	return &cp, nil
}

func (r *FakeKeyRepo) DeactivateOthers(_ context.Context, tenantID, keepID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, key := range r.keys {
		if key.TenantID == tenantID && key.Active && key.ID != keepID {
			key.Active = false
			deactivated := at
			key.DeactivatedAt = &deactivated
			n++
		}
	}
	return n, nil
}

func (r *FakeKeyRepo) VerificationSet(_ context.Context, tenantID string, cutoff time.Time) ([]*keys.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var set []*keys.SigningKey
	for _, key := range r.keys {
		if key.TenantID != tenantID {
			continue
		}
		if key.Active || (key.DeactivatedAt != nil && key.DeactivatedAt.After(cutoff)) {
			cp := *key
			set = append(set, &cp)
		}
	}
	return set, nil
}

func (r *FakeKeyRepo) ExpiredRetired(_ context.Context, before time.Time) ([]*keys.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var retired []*keys.SigningKey
	for _, key := range r.keys {
		if !key.Active && key.DeactivatedAt != nil && key.ExpiresAt.Before(before) {
			cp := *key
			retired = append(retired, &cp)
		}
	}
	return retired, nil
}

func (r *FakeKeyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, id)
	return nil
}
