package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/clients"
	clientfakes "github.com/radiantplatform/oauth-core/clients/repofakes"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/token"
	"github.com/radiantplatform/oauth-core/token/keys"
	keyfakes "github.com/radiantplatform/oauth-core/token/keys/repofakes"
	"github.com/radiantplatform/oauth-core/token/refresh"
	"github.com/radiantplatform/oauth-core/token/repofakes"
	"github.com/radiantplatform/oauth-core/users"
	userfakes "github.com/radiantplatform/oauth-core/users/repofakes"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testIssuer    = "https://auth.example.com"
	testTenant    = "acme"
)

type managerFixture struct {
	store   *repofakes.FakeStore
	clients *clientfakes.FakeClientRepo
	users   *userfakes.FakeUserRepo
	keys    *keys.Manager
	manager *token.Manager
	now     time.Time
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		store:   repofakes.NewFakeStore(),
		clients: clientfakes.NewFakeClientRepo(),
		users:   userfakes.NewFakeUserRepo(),
		// jwt.Parse validates exp against the real clock, so the fixture
		// clock starts at the real now and only moves forward.
		now: time.Now().UTC().Truncate(time.Second),
	}

	keyManager, err := keys.NewManager(keyfakes.NewFakeKeyRepo(), keys.NewInMemorySecretStore(),
		keys.WithNowTime(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	_, err = keyManager.EnsureActiveKey(context.Background(), testTenant)
	require.NoError(t, err)
	f.keys = keyManager

	manager, err := token.New(f.store, f.clients, f.users, keyManager,
		token.WithIssuer(testIssuer),
		token.WithAudience("api"),
		token.WithNowTime(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	f.manager = manager

	f.users.Add(&users.User{
		ID:            "user-1",
		Email:         "jo@example.com",
		EmailVerified: true,
		FirstName:     "Jo",
		LastName:      "Smith",
	})
	return f
}

func (f *managerFixture) addPublicClient(t *testing.T) *clients.Client {
	t.Helper()
	c := &clients.Client{
		ID:            "spa",
		TenantID:      testTenant,
		Type:          clients.PublicClient,
		RedirectURIs:  []string{"https://app.example.com/callback"},
		AllowedScopes: oauth2.NewScopeSet(oauth2.ScopeOpenID, oauth2.ScopeProfile, oauth2.ScopeEmail, oauth2.ScopeOfflineAccess),
		AllowedGrants: []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
	}
	f.clients.Add(c)
	return c
}

func (f *managerFixture) addConfidentialClient(t *testing.T) *clients.Client {
	t.Helper()
	hash, err := clients.HashSecret("s3cret")
	require.NoError(t, err)
	c := &clients.Client{
		ID:            "backend",
		TenantID:      testTenant,
		Type:          clients.ConfidentialClient,
		SecretHash:    hash,
		AllowedScopes: oauth2.NewScopeSet(oauth2.ScopeOpenID, "orders:read"),
		DefaultScopes: oauth2.NewScopeSet("orders:read"),
		AllowedGrants: []oauth2.GrantType{oauth2.ClientCredentialsGrant},
	}
	f.clients.Add(c)
	return c
}

// seedCode stores an authorization code the way the issuance path would.
func (f *managerFixture) seedCode(t *testing.T, clientID string, scopes oauth2.ScopeSet) string {
	t.Helper()
	plain := "test-code-" + time.Now().Format("150405.000000000")
	code := &authcode.Code{
		ID:                  "code-" + plain,
		CodeHash:            authcode.Hash(plain),
		CodePrefix:          authcode.Prefix(plain),
		ClientID:            clientID,
		UserID:              "user-1",
		TenantID:            testTenant,
		RedirectURI:         "https://app.example.com/callback",
		Scopes:              scopes,
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: oauth2.CodeChallengeMethodS256,
		Nonce:               "n-abc",
		ExpiresAt:           f.now.Add(5 * time.Minute),
		CreatedAt:           f.now,
	}
	require.NoError(t, f.store.Codes.Create(context.Background(), code))
	return plain
}

func TestManager_AuthorizationCodeGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("full exchange with ID and refresh token", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID, oauth2.ScopeEmail, oauth2.ScopeOfflineAccess))

		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: testVerifier,
		})
		require.NoError(t, err)
		require.Equal(t, "Bearer", resp.TokenType)
		require.NotEmpty(t, resp.AccessToken)
		require.NotEmpty(t, resp.RefreshToken)
		require.NotEmpty(t, resp.IDToken)
		require.Equal(t, 3600, resp.ExpiresIn)

		// The access token verifies against the tenant's key set and carries
		// the expected claims.
		parsed, err := jwt.Parse(resp.AccessToken, f.keys.Keyfunc(ctx, testTenant))
		require.NoError(t, err)
		claims := parsed.Claims.(jwt.MapClaims)
		require.Equal(t, testIssuer, claims["iss"])
		require.Equal(t, "user-1", claims["sub"])
		require.Equal(t, client.ID, claims["client_id"])

		idToken, err := jwt.Parse(resp.IDToken, f.keys.Keyfunc(ctx, testTenant))
		require.NoError(t, err)
		idClaims := idToken.Claims.(jwt.MapClaims)
		require.Equal(t, "n-abc", idClaims["nonce"])
		require.Equal(t, "jo@example.com", idClaims["email"])
	})

	t.Run("no offline_access means no refresh token", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: testVerifier,
		})
		require.NoError(t, err)
		require.Empty(t, resp.RefreshToken)
	})

	t.Run("double redemption fails", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		params := token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: testVerifier,
		}
		_, err := f.manager.Exchange(ctx, params)
		require.NoError(t, err)

		_, err = f.manager.Exchange(ctx, params)
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("PKCE verifier mismatch", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verifier",
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("failed verification burns the code", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		params := token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verifier",
		}
		_, err := f.manager.Exchange(ctx, params)
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)

		// The correct verifier cannot rescue the code: the failed attempt
		// consumed it.
		params.CodeVerifier = testVerifier
		_, err = f.manager.Exchange(ctx, params)
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("missing verifier is invalid_request", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:   oauth2.AuthorizationCodeGrant,
			ClientID:    client.ID,
			Code:        code,
			RedirectURI: "https://app.example.com/callback",
		})
		require.Equal(t, oauth2.ErrInvalidRequest, oauth2.AsError(err).Code)
	})

	t.Run("redirect URI mismatch", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/other",
			CodeVerifier: testVerifier,
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("expired code", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID))

		f.now = f.now.Add(10 * time.Minute)
		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: testVerifier,
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("unknown client is invalid_client", func(t *testing.T) {
		f := newManagerFixture(t)
		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType: oauth2.AuthorizationCodeGrant,
			ClientID:  "ghost",
			Code:      "whatever",
		})
		require.Equal(t, oauth2.ErrInvalidClient, oauth2.AsError(err).Code)
	})
}

func TestManager_RefreshTokenGrant(t *testing.T) {
	ctx := context.Background()

	// exchangeFresh seeds and redeems a code, returning the initial refresh
	// token.
	exchangeFresh := func(t *testing.T, f *managerFixture, client *clients.Client) string {
		t.Helper()
		code := f.seedCode(t, client.ID, oauth2.NewScopeSet(oauth2.ScopeOpenID, oauth2.ScopeEmail, oauth2.ScopeOfflineAccess))
		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.AuthorizationCodeGrant,
			ClientID:     client.ID,
			Code:         code,
			RedirectURI:  "https://app.example.com/callback",
			CodeVerifier: testVerifier,
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.RefreshToken)
		return resp.RefreshToken
	}

	t.Run("rotation increments the generation", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		first := exchangeFresh(t, f, client)

		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: first,
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.RefreshToken)
		require.NotEqual(t, first, resp.RefreshToken)

		old, err := f.store.RefreshTokens.GetByHash(ctx, refresh.Hash(first))
		require.NoError(t, err)
		require.True(t, old.Revoked)
		require.Equal(t, refresh.ReasonRotated, old.RevokedReason)
		require.Equal(t, 1, old.Generation)

		rotated, err := f.store.RefreshTokens.GetByHash(ctx, refresh.Hash(resp.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, 2, rotated.Generation)
		require.Equal(t, old.ID, rotated.PreviousTokenID)
	})

	t.Run("replay revokes the whole live lineage", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		first := exchangeFresh(t, f, client)

		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: first,
		})
		require.NoError(t, err)
		second := resp.RefreshToken

		// Replaying the rotated token is reuse: the request fails and the
		// live successor dies with it.
		_, err = f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: first,
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)

		live, err := f.store.RefreshTokens.GetByHash(ctx, refresh.Hash(second))
		require.NoError(t, err)
		require.True(t, live.Revoked)
		require.Equal(t, refresh.ReasonReuseDetected, live.RevokedReason)

		// And the contained token can no longer be used either.
		_, err = f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: second,
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("scope narrowing sticks to the successor", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		first := exchangeFresh(t, f, client)

		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: first,
			Scope:        "openid",
		})
		require.NoError(t, err)
		require.Equal(t, "openid", resp.Scope)

		narrowed, err := f.store.RefreshTokens.GetByHash(ctx, refresh.Hash(resp.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, "openid", narrowed.Scopes.String())

		// Widening back out from the narrowed token must fail.
		_, err = f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: resp.RefreshToken,
			Scope:        "openid email",
		})
		require.Equal(t, oauth2.ErrInvalidScope, oauth2.AsError(err).Code)
	})

	t.Run("widening beyond the grant is invalid_scope", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		first := exchangeFresh(t, f, client)

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: first,
			Scope:        "openid profile",
		})
		require.Equal(t, oauth2.ErrInvalidScope, oauth2.AsError(err).Code)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		first := exchangeFresh(t, f, client)

		f.now = f.now.Add(31 * 24 * time.Hour)
		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			RefreshToken: first,
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})

	t.Run("token of another client is invalid_grant", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addPublicClient(t)
		first := exchangeFresh(t, f, client)

		other := &clients.Client{
			ID:            "other-spa",
			TenantID:      testTenant,
			Type:          clients.PublicClient,
			AllowedGrants: []oauth2.GrantType{oauth2.RefreshTokenGrant},
		}
		f.clients.Add(other)

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     other.ID,
			RefreshToken: first,
		})
		require.Equal(t, oauth2.ErrInvalidGrant, oauth2.AsError(err).Code)
	})
}

func TestManager_ClientCredentialsGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("mints an access token for the client principal", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addConfidentialClient(t)

		resp, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.ClientCredentialsGrant,
			ClientID:     client.ID,
			ClientSecret: "s3cret",
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
		require.Empty(t, resp.RefreshToken)
		require.Empty(t, resp.IDToken)
		require.Equal(t, "orders:read", resp.Scope)

		parsed, err := jwt.Parse(resp.AccessToken, f.keys.Keyfunc(ctx, testTenant))
		require.NoError(t, err)
		claims := parsed.Claims.(jwt.MapClaims)
		require.Equal(t, client.ID, claims["sub"])
	})

	t.Run("public clients are unauthorized", func(t *testing.T) {
		f := newManagerFixture(t)
		spa := f.addPublicClient(t)
		spa.AllowedGrants = append(spa.AllowedGrants, oauth2.ClientCredentialsGrant)
		f.clients.Add(spa)

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType: oauth2.ClientCredentialsGrant,
			ClientID:  spa.ID,
		})
		require.Equal(t, oauth2.ErrUnauthorizedClient, oauth2.AsError(err).Code)
	})

	t.Run("wrong secret is invalid_client", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addConfidentialClient(t)

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.ClientCredentialsGrant,
			ClientID:     client.ID,
			ClientSecret: "wrong",
		})
		require.Equal(t, oauth2.ErrInvalidClient, oauth2.AsError(err).Code)
	})

	t.Run("grant not allowed is unauthorized_client", func(t *testing.T) {
		f := newManagerFixture(t)
		client := f.addConfidentialClient(t)

		_, err := f.manager.Exchange(ctx, token.Params{
			GrantType:    oauth2.RefreshTokenGrant,
			ClientID:     client.ID,
			ClientSecret: "s3cret",
			RefreshToken: "whatever",
		})
		require.Equal(t, oauth2.ErrUnauthorizedClient, oauth2.AsError(err).Code)
	})
}

func TestManager_UnsupportedGrantType(t *testing.T) {
	f := newManagerFixture(t)
	client := f.addConfidentialClient(t)
	client.AllowedGrants = append(client.AllowedGrants, "password")
	f.clients.Add(client)

	_, err := f.manager.Exchange(context.Background(), token.Params{
		GrantType:    "password",
		ClientID:     client.ID,
		ClientSecret: "s3cret",
	})
	require.Equal(t, oauth2.ErrUnsupportedGrantType, oauth2.AsError(err).Code)
}
