package clients_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/oauth2"
)

func TestClient_VerifySecret(t *testing.T) {
	hash, err := clients.HashSecret("s3cret")
	require.NoError(t, err)

	confidential := &clients.Client{
		ID:         "web-backend",
		Type:       clients.ConfidentialClient,
		SecretHash: hash,
	}
	public := &clients.Client{
		ID:   "spa",
		Type: clients.PublicClient,
	}

	t.Run("correct secret", func(t *testing.T) {
		require.NoError(t, confidential.VerifySecret("s3cret"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		require.ErrorIs(t, confidential.VerifySecret("nope"), clients.ErrInvalidSecret)
	})

	t.Run("public client with no secret", func(t *testing.T) {
		require.NoError(t, public.VerifySecret(""))
	})

	t.Run("public client presenting a secret", func(t *testing.T) {
		require.ErrorIs(t, public.VerifySecret("anything"), clients.ErrInvalidSecret)
	})
}

func TestClient_HasRedirectURI(t *testing.T) {
	client := &clients.Client{
		RedirectURIs: []string{"https://app.example.com/callback"},
	}

	t.Run("exact match", func(t *testing.T) {
		require.True(t, client.HasRedirectURI("https://app.example.com/callback"))
	})

	t.Run("no prefix matching", func(t *testing.T) {
		require.False(t, client.HasRedirectURI("https://app.example.com/callback/extra"))
		require.False(t, client.HasRedirectURI("https://app.example.com/"))
	})
}

func TestClient_ValidateScopes(t *testing.T) {
	client := &clients.Client{
		AllowedScopes: oauth2.NewScopeSet(oauth2.ScopeOpenID, oauth2.ScopeProfile),
	}

	require.NoError(t, client.ValidateScopes(oauth2.NewScopeSet(oauth2.ScopeOpenID)))
	require.ErrorIs(t,
		client.ValidateScopes(oauth2.NewScopeSet(oauth2.ScopeOfflineAccess)),
		clients.ErrInvalidScope,
	)
}

func TestClient_GrantAllowed(t *testing.T) {
	client := &clients.Client{
		AllowedGrants: []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
	}

	require.True(t, client.GrantAllowed(oauth2.AuthorizationCodeGrant))
	require.False(t, client.GrantAllowed(oauth2.ClientCredentialsGrant))
}

func TestClient_TTLFallbacks(t *testing.T) {
	def := time.Hour

	t.Run("zero policy falls back", func(t *testing.T) {
		c := &clients.Client{}
		require.Equal(t, def, c.AccessTokenTTL(def))
		require.Equal(t, def, c.RefreshTokenTTL(def))
	})

	t.Run("policy wins", func(t *testing.T) {
		c := &clients.Client{TTL: clients.TTLPolicy{AccessTokenTTL: 10 * time.Minute}}
		require.Equal(t, 10*time.Minute, c.AccessTokenTTL(def))
		require.Equal(t, def, c.RefreshTokenTTL(def))
	})
}
