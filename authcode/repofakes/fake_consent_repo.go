package repofakes

import (
	"context"
	"sync"

	"github.com/radiantplatform/oauth-core/authcode"
)

// FakeConsentRepo is an in-memory UserAuthorization store.
type FakeConsentRepo struct {
	mu       sync.Mutex
	consents map[string]*authcode.Consent
}

func NewFakeConsentRepo() *FakeConsentRepo {
	return &FakeConsentRepo{consents: make(map[string]*authcode.Consent)}
}

func consentKey(userID, clientID, tenantID string) string {
	return userID + "|" + clientID + "|" + tenantID
}

func (r *FakeConsentRepo) Upsert(_ context.Context, consent *authcode.Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *consent
	r.consents[consentKey(consent.UserID, consent.ClientID, consent.TenantID)] = &cp
	return nil
}

func (r *FakeConsentRepo) Get(_ context.Context, userID, clientID, tenantID string) (*authcode.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consents[consentKey(userID, clientID, tenantID)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}
