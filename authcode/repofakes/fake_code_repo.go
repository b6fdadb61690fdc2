package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/radiantplatform/oauth-core/authcode"
)

// FakeCodeRepo is an in-memory authorization code store. Redeem implements
// the same compare-and-set semantics as the relational implementation.
type FakeCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*authcode.Code // keyed by code hash
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[string]*authcode.Code)}
}

func (r *FakeCodeRepo) Create(_ context.Context, code *authcode.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *code
	r.codes[code.CodeHash] = &cp
	return nil
}

func (r *FakeCodeRepo) Redeem(_ context.Context, codeHash, clientID string, _ time.Time) (*authcode.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[codeHash]
	if !ok || code.ClientID != clientID || code.Used {
		return nil, authcode.ErrCodeNotFound
	}
	code.Used = true
	cp := *code
	return &cp, nil
}

func (r *FakeCodeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, code := range r.codes {
		if code.Expired(now) {
			delete(r.codes, hash)
			n++
		}
	}
	return n, nil
}
