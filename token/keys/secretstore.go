package keys

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrSecretNotFound is returned when no secret exists for the reference.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore holds private key material by opaque reference. The key table
// only ever stores the reference, never the material itself.
type SecretStore interface {
	Put(ctx context.Context, ref, material string) error
	Get(ctx context.Context, ref string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// InMemorySecretStore is a process-local SecretStore for tests and
// single-node development.
type InMemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewInMemorySecretStore() *InMemorySecretStore {
	return &InMemorySecretStore{secrets: make(map[string]string)}
}

func (s *InMemorySecretStore) Put(_ context.Context, ref, material string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = material
	return nil
}

func (s *InMemorySecretStore) Get(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	material, ok := s.secrets[ref]
	if !ok {
		return "", ErrSecretNotFound
	}
	return material, nil
}

func (s *InMemorySecretStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, ref)
	return nil
}
