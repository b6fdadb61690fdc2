package authcode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/oauth2"
)

const (
	codeGenerationLength = 32 // 256 bits of entropy
	prefixLength         = 8
)

// Code is a single-use authorization code record. The code value itself is
// never stored; only its SHA-256 hash and a short display prefix.
type Code struct {
	ID                  string
	CodeHash            string
	CodePrefix          string
	ClientID            string
	UserID              string
	TenantID            string
	RedirectURI         string
	Scopes              oauth2.ScopeSet
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeChallengeMethod
	Nonce               string
	Used                bool
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// Expired reports whether the code is past its expiry.
func (c *Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Consent is the UserAuthorization record for a (user, client, tenant)
// triple. The scope set reflects the latest consent decision: it is replaced
// on each approval, never merged.
type Consent struct {
	UserID    string
	ClientID  string
	TenantID  string
	Scopes    oauth2.ScopeSet
	Active    bool
	GrantedAt time.Time
}

// Hash returns the SHA-256 hex digest under which a plaintext code is stored.
func Hash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the short display prefix of a plaintext code.
func Prefix(plain string) string {
	if len(plain) < prefixLength {
		return plain
	}
	return plain[:prefixLength]
}

// IssueRequest carries a validated client plus the authenticated principal
// and the parameters of the authorization request.
type IssueRequest struct {
	Client              *clients.Client
	UserID              string
	TenantID            string
	RedirectURI         string
	Scopes              oauth2.ScopeSet
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeChallengeMethod
	Nonce               string
}

// Issuer mints authorization codes and maintains the consent record.
type Issuer struct {
	codes    Repo
	consents ConsentRepo
	lifetime time.Duration
	nowTime  func() time.Time
}

// IssuerOption modifies an Issuer.
type IssuerOption func(*Issuer)

// WithLifetime overrides the default 5 minute code expiry.
func WithLifetime(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.lifetime = d
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = now
	}
}

// NewIssuer creates an authorization code issuer.
func NewIssuer(codes Repo, consents ConsentRepo, options ...IssuerOption) (*Issuer, error) {
	if codes == nil {
		return nil, errors.New("[NewIssuer] code repo is required")
	}
	if consents == nil {
		return nil, errors.New("[NewIssuer] consent repo is required")
	}
	issuer := &Issuer{
		codes:    codes,
		consents: consents,
		lifetime: 5 * time.Minute,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(issuer)
	}
	return issuer, nil
}

// Issue validates the request against the client registration, mints a
// cryptographically random single-use code, and upserts the consent record
// for the (user, client) pair. The plaintext code is returned to the caller
// for the redirect and never persisted.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (string, error) {
	if req.Client == nil {
		return "", oauth2.NewError(oauth2.ErrInvalidRequest, "unknown client")
	}
	if req.RedirectURI == "" || !req.Client.HasRedirectURI(req.RedirectURI) {
		return "", oauth2.NewError(oauth2.ErrInvalidRequest, "redirect_uri is not registered")
	}
	if err := req.Client.ValidateScopes(req.Scopes); err != nil {
		return "", oauth2.NewError(oauth2.ErrInvalidScope, "requested scope exceeds client allowance")
	}
	if req.CodeChallenge == "" && req.Client.IsPublic() {
		return "", oauth2.NewError(oauth2.ErrInvalidRequest, "PKCE is required for public clients")
	}
	if req.CodeChallenge != "" && req.CodeChallengeMethod != oauth2.CodeChallengeMethodS256 {
		return "", oauth2.NewError(oauth2.ErrInvalidRequest, "only the S256 code_challenge_method is supported")
	}

	plain, err := generateCode()
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] generateCode")
	}

	now := i.nowTime()
	code := &Code{
		ID:                  uuid.New().String(),
		CodeHash:            Hash(plain),
		CodePrefix:          Prefix(plain),
		ClientID:            req.Client.ID,
		UserID:              req.UserID,
		TenantID:            req.TenantID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes.Clone(),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		ExpiresAt:           now.Add(i.lifetime),
		CreatedAt:           now,
	}
	if err := i.codes.Create(ctx, code); err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] codes.Create")
	}

	if err := i.consents.Upsert(ctx, &Consent{
		UserID:    req.UserID,
		ClientID:  req.Client.ID,
		TenantID:  req.TenantID,
		Scopes:    req.Scopes.Clone(),
		Active:    true,
		GrantedAt: now,
	}); err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] consents.Upsert")
	}

	return plain, nil
}

// HasConsent reports whether the user has an active consent covering every
// requested scope, letting the authorization endpoint skip re-prompting.
func (i *Issuer) HasConsent(ctx context.Context, userID, clientID, tenantID string, requested oauth2.ScopeSet) bool {
	consent, err := i.consents.Get(ctx, userID, clientID, tenantID)
	if err != nil || consent == nil || !consent.Active {
		return false
	}
	return requested.SubsetOf(consent.Scopes)
}

// PurgeExpired removes codes past their expiry. Intended to run on a sweep.
func (i *Issuer) PurgeExpired(ctx context.Context) (int64, error) {
	return i.codes.DeleteExpired(ctx, i.nowTime())
}

func generateCode() (string, error) {
	buf := make([]byte, codeGenerationLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
