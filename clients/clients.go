package clients

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/radiantplatform/oauth-core/oauth2"
)

// ClientType distinguishes clients that can hold a secret from those that
// cannot.
type ClientType string

const (
	// ConfidentialClient is a server-side application capable of keeping its
	// secret. Required for the client_credentials grant.
	ConfidentialClient ClientType = "confidential"

	// PublicClient is a browser or native application. Public clients have no
	// secret and must use PKCE on the authorization code flow.
	PublicClient ClientType = "public"
)

var (
	ErrInvalidRedirectURI = errors.New("redirect uri not registered for client")
	ErrInvalidScope       = errors.New("scope outside client's allowed set")
	ErrGrantNotAllowed    = errors.New("grant type not allowed for client")
	ErrInvalidSecret      = errors.New("client secret incorrect")
)

// TTLPolicy is the per-client token lifetime policy. Zero values fall back to
// the server defaults.
type TTLPolicy struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Client is a registered OAuth2 application. Registration and approval
// workflows live outside this core; the record is immutable for the duration
// of a token transaction.
type Client struct {
	ID            string
	TenantID      string
	Name          string
	Type          ClientType
	SecretHash    string // bcrypt hash, empty for public clients
	RedirectURIs  []string
	AllowedScopes oauth2.ScopeSet
	DefaultScopes oauth2.ScopeSet
	AllowedGrants []oauth2.GrantType
	TTL           TTLPolicy
}

// IsPublic reports whether the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return c.Type == PublicClient
}

// HasRedirectURI reports whether uri is an exact member of the registered
// redirect URI set. No prefix or pattern matching.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ValidateScopes checks that every requested scope is in the client's
// allowed set.
func (c *Client) ValidateScopes(requested oauth2.ScopeSet) error {
	if !requested.SubsetOf(c.AllowedScopes) {
		return ErrInvalidScope
	}
	return nil
}

// GrantAllowed reports whether the client may use the given grant type.
func (c *Client) GrantAllowed(grant oauth2.GrantType) bool {
	for _, g := range c.AllowedGrants {
		if g == grant {
			return true
		}
	}
	return false
}

// VerifySecret checks a presented secret against the stored bcrypt hash.
// Public clients present no secret and always pass with an empty one.
func (c *Client) VerifySecret(secret string) error {
	if c.IsPublic() {
		if secret != "" {
			return ErrInvalidSecret
		}
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// HashSecret produces the bcrypt hash stored in the registry.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "[HashSecret] bcrypt.GenerateFromPassword")
	}
	return string(hash), nil
}

// AccessTokenTTL returns the client's access token lifetime, falling back to
// def when the policy is unset.
func (c *Client) AccessTokenTTL(def time.Duration) time.Duration {
	if c.TTL.AccessTokenTTL > 0 {
		return c.TTL.AccessTokenTTL
	}
	return def
}

// RefreshTokenTTL returns the client's refresh token lifetime, falling back
// to def when the policy is unset.
func (c *Client) RefreshTokenTTL(def time.Duration) time.Duration {
	if c.TTL.RefreshTokenTTL > 0 {
		return c.TTL.RefreshTokenTTL
	}
	return def
}
