package storage

import (
	"strings"
	"time"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/token"
	"github.com/radiantplatform/oauth-core/token/keys"
	"github.com/radiantplatform/oauth-core/token/refresh"
	"github.com/radiantplatform/oauth-core/users"
)

// Scope sets and other string lists are persisted space-joined, matching the
// wire form of the scope parameter.

func joinScopes(s oauth2.ScopeSet) string { return s.String() }

func splitScopes(raw string) oauth2.ScopeSet { return oauth2.SplitScopes(raw) }

func joinStrings(list []string) string { return strings.Join(list, " ") }

func splitStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// ClientModel is the oauth_clients row.
type ClientModel struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string `gorm:"index"`
	Name            string
	Type            string
	SecretHash      string
	RedirectURIs    string
	AllowedScopes   string
	DefaultScopes   string
	AllowedGrants   string
	AccessTokenTTL  int64 // seconds, 0 means server default
	RefreshTokenTTL int64 // seconds, 0 means server default
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ClientModel) TableName() string { return "oauth_clients" }

func (m *ClientModel) toDomain() *clients.Client {
	grants := make([]oauth2.GrantType, 0)
	for _, g := range splitStrings(m.AllowedGrants) {
		grants = append(grants, oauth2.GrantType(g))
	}
	return &clients.Client{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Name:          m.Name,
		Type:          clients.ClientType(m.Type),
		SecretHash:    m.SecretHash,
		RedirectURIs:  splitStrings(m.RedirectURIs),
		AllowedScopes: splitScopes(m.AllowedScopes),
		DefaultScopes: splitScopes(m.DefaultScopes),
		AllowedGrants: grants,
		TTL: clients.TTLPolicy{
			AccessTokenTTL:  time.Duration(m.AccessTokenTTL) * time.Second,
			RefreshTokenTTL: time.Duration(m.RefreshTokenTTL) * time.Second,
		},
	}
}

func clientModelFrom(c *clients.Client) *ClientModel {
	grants := make([]string, 0, len(c.AllowedGrants))
	for _, g := range c.AllowedGrants {
		grants = append(grants, string(g))
	}
	return &ClientModel{
		ID:              c.ID,
		TenantID:        c.TenantID,
		Name:            c.Name,
		Type:            string(c.Type),
		SecretHash:      c.SecretHash,
		RedirectURIs:    joinStrings(c.RedirectURIs),
		AllowedScopes:   joinScopes(c.AllowedScopes),
		DefaultScopes:   joinScopes(c.DefaultScopes),
		AllowedGrants:   joinStrings(grants),
		AccessTokenTTL:  int64(c.TTL.AccessTokenTTL.Seconds()),
		RefreshTokenTTL: int64(c.TTL.RefreshTokenTTL.Seconds()),
	}
}

// UserModel is the users row.
type UserModel struct {
	ID            string `gorm:"primaryKey"`
	Email         string `gorm:"index"`
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
	TenantIDs     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) toDomain() *users.User {
	return &users.User{
		ID:            m.ID,
		Email:         m.Email,
		EmailVerified: m.EmailVerified,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		Picture:       m.Picture,
		TenantIDs:     splitStrings(m.TenantIDs),
	}
}

// CodeModel is the authorization_codes row.
type CodeModel struct {
	ID                  string `gorm:"primaryKey"`
	CodeHash            string `gorm:"uniqueIndex"`
	CodePrefix          string
	ClientID            string `gorm:"index"`
	UserID              string
	TenantID            string
	RedirectURI         string
	Scopes              string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	Used                bool
	ExpiresAt           time.Time `gorm:"index"`
	CreatedAt           time.Time
}

func (CodeModel) TableName() string { return "authorization_codes" }

func (m *CodeModel) toDomain() *authcode.Code {
	return &authcode.Code{
		ID:                  m.ID,
		CodeHash:            m.CodeHash,
		CodePrefix:          m.CodePrefix,
		ClientID:            m.ClientID,
		UserID:              m.UserID,
		TenantID:            m.TenantID,
		RedirectURI:         m.RedirectURI,
		Scopes:              splitScopes(m.Scopes),
		CodeChallenge:       m.CodeChallenge,
		CodeChallengeMethod: oauth2.CodeChallengeMethod(m.CodeChallengeMethod),
		Nonce:               m.Nonce,
		Used:                m.Used,
		ExpiresAt:           m.ExpiresAt,
		CreatedAt:           m.CreatedAt,
	}
}

func codeModelFrom(c *authcode.Code) *CodeModel {
	return &CodeModel{
		ID:                  c.ID,
		CodeHash:            c.CodeHash,
		CodePrefix:          c.CodePrefix,
		ClientID:            c.ClientID,
		UserID:              c.UserID,
		TenantID:            c.TenantID,
		RedirectURI:         c.RedirectURI,
		Scopes:              joinScopes(c.Scopes),
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: string(c.CodeChallengeMethod),
		Nonce:               c.Nonce,
		Used:                c.Used,
		ExpiresAt:           c.ExpiresAt,
		CreatedAt:           c.CreatedAt,
	}
}

// ConsentModel is the user_authorizations row, one per
// (user, client, tenant) triple.
type ConsentModel struct {
	UserID    string `gorm:"primaryKey"`
	ClientID  string `gorm:"primaryKey"`
	TenantID  string `gorm:"primaryKey"`
	Scopes    string
	Active    bool
	GrantedAt time.Time
}

func (ConsentModel) TableName() string { return "user_authorizations" }

func (m *ConsentModel) toDomain() *authcode.Consent {
	return &authcode.Consent{
		UserID:    m.UserID,
		ClientID:  m.ClientID,
		TenantID:  m.TenantID,
		Scopes:    splitScopes(m.Scopes),
		Active:    m.Active,
		GrantedAt: m.GrantedAt,
	}
}

// AccessTokenModel is the access_tokens row.
type AccessTokenModel struct {
	ID            string `gorm:"primaryKey"`
	TokenHash     string `gorm:"uniqueIndex"`
	TokenPrefix   string
	ClientID      string `gorm:"index"`
	UserID        string `gorm:"index"`
	TenantID      string
	Scopes        string
	Revoked       bool
	RevokedReason string
	RevokedAt     *time.Time
	ExpiresAt     time.Time `gorm:"index"`
	CreatedAt     time.Time
}

func (AccessTokenModel) TableName() string { return "access_tokens" }

func (m *AccessTokenModel) toDomain() *token.AccessToken {
	return &token.AccessToken{
		ID:            m.ID,
		TokenHash:     m.TokenHash,
		TokenPrefix:   m.TokenPrefix,
		ClientID:      m.ClientID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Scopes:        splitScopes(m.Scopes),
		Revoked:       m.Revoked,
		RevokedReason: m.RevokedReason,
		RevokedAt:     m.RevokedAt,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
	}
}

func accessTokenModelFrom(t *token.AccessToken) *AccessTokenModel {
	return &AccessTokenModel{
		ID:            t.ID,
		TokenHash:     t.TokenHash,
		TokenPrefix:   t.TokenPrefix,
		ClientID:      t.ClientID,
		UserID:        t.UserID,
		TenantID:      t.TenantID,
		Scopes:        joinScopes(t.Scopes),
		Revoked:       t.Revoked,
		RevokedReason: t.RevokedReason,
		RevokedAt:     t.RevokedAt,
		ExpiresAt:     t.ExpiresAt,
		CreatedAt:     t.CreatedAt,
	}
}

// RefreshTokenModel is the refresh_tokens row. PreviousTokenID links rotation
// lineages; Generation increases by one per rotation.
type RefreshTokenModel struct {
	ID              string `gorm:"primaryKey"`
	TokenHash       string `gorm:"uniqueIndex"`
	TokenPrefix     string
	ClientID        string `gorm:"index"`
	UserID          string `gorm:"index"`
	TenantID        string
	Scopes          string
	Generation      int
	PreviousTokenID string `gorm:"index"`
	Revoked         bool
	RevokedReason   string
	RevokedAt       *time.Time
	ExpiresAt       time.Time `gorm:"index"`
	CreatedAt       time.Time
}

func (RefreshTokenModel) TableName() string { return "refresh_tokens" }

func (m *RefreshTokenModel) toDomain() *refresh.Token {
	return &refresh.Token{
		ID:              m.ID,
		TokenHash:       m.TokenHash,
		TokenPrefix:     m.TokenPrefix,
		ClientID:        m.ClientID,
		UserID:          m.UserID,
		TenantID:        m.TenantID,
		Scopes:          splitScopes(m.Scopes),
		Generation:      m.Generation,
		PreviousTokenID: m.PreviousTokenID,
		Revoked:         m.Revoked,
		RevokedReason:   m.RevokedReason,
		RevokedAt:       m.RevokedAt,
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
	}
}

func refreshTokenModelFrom(t *refresh.Token) *RefreshTokenModel {
	return &RefreshTokenModel{
		ID:              t.ID,
		TokenHash:       t.TokenHash,
		TokenPrefix:     t.TokenPrefix,
		ClientID:        t.ClientID,
		UserID:          t.UserID,
		TenantID:        t.TenantID,
		Scopes:          joinScopes(t.Scopes),
		Generation:      t.Generation,
		PreviousTokenID: t.PreviousTokenID,
		Revoked:         t.Revoked,
		RevokedReason:   t.RevokedReason,
		RevokedAt:       t.RevokedAt,
		ExpiresAt:       t.ExpiresAt,
		CreatedAt:       t.CreatedAt,
	}
}

// SigningKeyModel is the signing_keys row. Only the public half lives here;
// SecretRef points at the private key in the secret store.
type SigningKeyModel struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"index"`
	Kid           string `gorm:"uniqueIndex"`
	Algorithm     string
	PublicKeyPEM  string
	SecretRef     string
	Active        bool `gorm:"index"`
	CreatedAt     time.Time
	ExpiresAt     time.Time
	DeactivatedAt *time.Time
}

func (SigningKeyModel) TableName() string { return "signing_keys" }

func (m *SigningKeyModel) toDomain() *keys.SigningKey {
	return &keys.SigningKey{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Kid:           m.Kid,
		Algorithm:     m.Algorithm,
		PublicKeyPEM:  m.PublicKeyPEM,
		SecretRef:     m.SecretRef,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
		ExpiresAt:     m.ExpiresAt,
		DeactivatedAt: m.DeactivatedAt,
	}
}

func signingKeyModelFrom(k *keys.SigningKey) *SigningKeyModel {
	return &SigningKeyModel{
		ID:            k.ID,
		TenantID:      k.TenantID,
		Kid:           k.Kid,
		Algorithm:     k.Algorithm,
		PublicKeyPEM:  k.PublicKeyPEM,
		SecretRef:     k.SecretRef,
		Active:        k.Active,
		CreatedAt:     k.CreatedAt,
		ExpiresAt:     k.ExpiresAt,
		DeactivatedAt: k.DeactivatedAt,
	}
}

// SecretModel is the secrets row holding AES-GCM encrypted material.
type SecretModel struct {
	Ref        string `gorm:"primaryKey"`
	Ciphertext []byte
	CreatedAt  time.Time
}

func (SecretModel) TableName() string { return "secrets" }
