package keys

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultKeyLifetime = 365 * 24 * time.Hour
	defaultGraceWindow = 24 * time.Hour
	defaultRetention   = 30 * 24 * time.Hour
	defaultCacheTTL    = 5 * time.Minute
	keyBits            = 2048
)

// Manager owns the signing key lifecycle per tenant:
//
//	active -> deactivated (within grace) -> deactivated (past grace) -> deleted
//
// At most one key per tenant is active at a time. Rotation activates the new
// key before deactivating the old so signing callers never observe zero
// active keys. Deactivated keys remain in the verification set for the grace
// window, then age out; rows are deleted only once inactive and 30+ days
// past their original expiry.
type Manager struct {
	repo    Repo
	secrets SecretStore

	keyLifetime time.Duration
	grace       time.Duration
	retention   time.Duration
	cacheTTL    time.Duration
	nowTime     func() time.Time

	mu      sync.RWMutex
	signers map[string]cachedSigner // tenantID -> signer
}

type cachedSigner struct {
	signer    *KeyPairSigner
	fetchedAt time.Time
}

// ManagerOption modifies a Manager.
type ManagerOption func(*Manager)

// WithKeyLifetime overrides the default one year key expiry.
func WithKeyLifetime(d time.Duration) ManagerOption {
	return func(m *Manager) { m.keyLifetime = d }
}

// WithGraceWindow overrides the 24 hour post-deactivation verification
// window.
func WithGraceWindow(d time.Duration) ManagerOption {
	return func(m *Manager) { m.grace = d }
}

// WithRetention overrides the 30 day retention of retired keys.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retention = d }
}

// WithCacheTTL bounds the signing key cache. The cache avoids a secret-store
// round trip per request and is invalidated on rotation.
func WithCacheTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.cacheTTL = d }
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.nowTime = now }
}

// NewManager creates a signing key manager.
func NewManager(repo Repo, secrets SecretStore, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] key repo is required")
	}
	if secrets == nil {
		return nil, errors.New("[NewManager] secret store is required")
	}
	m := &Manager{
		repo:        repo,
		secrets:     secrets,
		keyLifetime: defaultKeyLifetime,
		grace:       defaultGraceWindow,
		retention:   defaultRetention,
		cacheTTL:    defaultCacheTTL,
		nowTime:     time.Now,
		signers:     make(map[string]cachedSigner),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Generate creates a 2048-bit RSA key pair for the tenant, stores the
// private half in the secret store, and inserts the public half as the
// tenant's active key. It does not deactivate other keys; use Rotate for
// that.
func (m *Manager) Generate(ctx context.Context, tenantID string) (*SigningKey, error) {
	kid := uuid.New().String()
	keyPair, err := GenerateRSAKeyPair(kid, keyBits)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] GenerateRSAKeyPair")
	}

	publicPEM, err := keyPair.ExportPublicKeyPEM()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] ExportPublicKeyPEM")
	}

	secretRef := "signing-key/" + uuid.New().String()
	if err := m.secrets.Put(ctx, secretRef, keyPair.ExportPrivateKeyPEM()); err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] secrets.Put")
	}

	now := m.nowTime()
	key := &SigningKey{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Kid:          kid,
		Algorithm:    RS256,
		PublicKeyPEM: publicPEM,
		SecretRef:    secretRef,
		Active:       true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.keyLifetime),
	}
	if err := m.repo.Create(ctx, key); err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] repo.Create")
	}
	return key, nil
}

// Rotate generates and activates a new key for the tenant, then deactivates
// every other active key. The ordering matters: the new key is visible
// before the old one leaves, so there is never a moment with zero active
// keys. The signer cache entry for the tenant is dropped so the retired key
// is never used to sign again.
func (m *Manager) Rotate(ctx context.Context, tenantID string) (*SigningKey, error) {
	key, err := m.Generate(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Rotate] Generate")
	}

	if _, err := m.repo.DeactivateOthers(ctx, tenantID, key.ID, m.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[Manager.Rotate] DeactivateOthers")
	}

	m.mu.Lock()
	delete(m.signers, tenantID)
	m.mu.Unlock()

	return key, nil
}

// EnsureActiveKey generates a key for the tenant if none is active. Used at
// startup so the first token request never races key creation.
func (m *Manager) EnsureActiveKey(ctx context.Context, tenantID string) (*SigningKey, error) {
	key, err := m.repo.ActiveKey(ctx, tenantID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoActiveKey) {
		return nil, errors.Wrap(err, "[Manager.EnsureActiveKey] repo.ActiveKey")
	}
	return m.Generate(ctx, tenantID)
}

// Signer returns the signer for the tenant's active key, served from a
// TTL-bounded cache. A cached signer is never older than the cache TTL, and
// rotation invalidates it eagerly, so a retired key cannot be used to newly
// sign.
func (m *Manager) Signer(ctx context.Context, tenantID string) (Signer, error) {
	now := m.nowTime()

	m.mu.RLock()
	cached, ok := m.signers[tenantID]
	m.mu.RUnlock()
	if ok && now.Sub(cached.fetchedAt) < m.cacheTTL {
		return cached.signer, nil
	}

	key, err := m.repo.ActiveKey(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Signer] repo.ActiveKey")
	}

	privatePEM, err := m.secrets.Get(ctx, key.SecretRef)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Signer] secrets.Get")
	}
	privateKey, err := LoadRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Signer] LoadRSAPrivateKeyFromPEM")
	}

	signer := NewKeyPairSigner(key.Kid, privateKey)
	m.mu.Lock()
	m.signers[tenantID] = cachedSigner{signer: signer, fetchedAt: now}
	m.mu.Unlock()

	return signer, nil
}

// Keyfunc returns a jwt.Keyfunc resolving the token's kid header against the
// tenant's verification set: active keys plus keys deactivated within the
// grace window. Tokens signed moments before a rotation stay verifiable
// until they expire or the window lapses.
func (m *Manager) Keyfunc(ctx context.Context, tenantID string) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}

		set, err := m.repo.VerificationSet(ctx, tenantID, m.nowTime().Add(-m.grace))
		if err != nil {
			return nil, errors.Wrap(err, "VerificationSet")
		}
		for _, key := range set {
			if key.Kid == kid {
				return LoadRSAPublicKeyFromPEM(key.PublicKeyPEM)
			}
		}
		return nil, errors.Errorf("no verification key for kid %s", kid)
	}
}

// JWKS returns the published key set for the tenant, one JWK per key in the
// verification set.
func (m *Manager) JWKS(ctx context.Context, tenantID string) (*JWKS, error) {
	set, err := m.repo.VerificationSet(ctx, tenantID, m.nowTime().Add(-m.grace))
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.JWKS] VerificationSet")
	}
	jwks := &JWKS{Keys: make([]JWK, 0, len(set))}
	for _, key := range set {
		jwk, err := key.ToJWK()
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.JWKS] ToJWK")
		}
		jwks.Keys = append(jwks.Keys, *jwk)
	}
	return jwks, nil
}

// Cleanup permanently removes keys that have been inactive for the retention
// period past their original expiry, deleting the backing secret first. A
// failed secret deletion is logged and does not block removal of the row;
// each key is handled independently.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	retired, err := m.repo.ExpiredRetired(ctx, m.nowTime().Add(-m.retention))
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.Cleanup] ExpiredRetired")
	}

	removed := 0
	for _, key := range retired {
		if err := m.secrets.Delete(ctx, key.SecretRef); err != nil {
			log.Warn().Err(err).Str("kid", key.Kid).Msg("failed to delete signing key secret")
		}
		if err := m.repo.Delete(ctx, key.ID); err != nil {
			log.Error().Err(err).Str("kid", key.Kid).Msg("failed to delete signing key row")
			continue
		}
		removed++
	}
	return removed, nil
}
