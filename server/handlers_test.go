package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/clients"
	clientfakes "github.com/radiantplatform/oauth-core/clients/repofakes"
	"github.com/radiantplatform/oauth-core/internal/config"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/server"
	"github.com/radiantplatform/oauth-core/token"
	"github.com/radiantplatform/oauth-core/token/keys"
	keyfakes "github.com/radiantplatform/oauth-core/token/keys/repofakes"
	"github.com/radiantplatform/oauth-core/token/repofakes"
	"github.com/radiantplatform/oauth-core/users"
	userfakes "github.com/radiantplatform/oauth-core/users/repofakes"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testTenant    = "default"
	testRedirect  = "https://app.example.com/callback"
)

type serverFixture struct {
	srv     *httptest.Server
	store   *repofakes.FakeStore
	clients *clientfakes.FakeClientRepo
	users   *userfakes.FakeUserRepo
	issuer  *authcode.Issuer
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		store:   repofakes.NewFakeStore(),
		clients: clientfakes.NewFakeClientRepo(),
		users:   userfakes.NewFakeUserRepo(),
	}

	keyManager, err := keys.NewManager(keyfakes.NewFakeKeyRepo(), keys.NewInMemorySecretStore())
	require.NoError(t, err)
	_, err = keyManager.EnsureActiveKey(context.Background(), testTenant)
	require.NoError(t, err)

	cfg := config.New()

	tokenManager, err := token.New(f.store, f.clients, f.users, keyManager,
		token.WithIssuer(cfg.GetBaseURL()),
		token.WithAudience("api"),
	)
	require.NoError(t, err)

	f.issuer, err = authcode.NewIssuer(f.store.Codes, f.store.Consents)
	require.NoError(t, err)

	s, err := server.New(cfg, tokenManager, f.issuer, f.clients, f.users, keyManager,
		server.HeaderAuthenticator{},
	)
	require.NoError(t, err)

	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)

	f.users.Add(&users.User{
		ID:            "user-1",
		Email:         "jo@example.com",
		EmailVerified: true,
		FirstName:     "Jo",
		LastName:      "Smith",
	})
	return f
}

func (f *serverFixture) addPublicClient() *clients.Client {
	c := &clients.Client{
		ID:            "spa",
		TenantID:      testTenant,
		Name:          "Example SPA",
		Type:          clients.PublicClient,
		RedirectURIs:  []string{testRedirect},
		AllowedScopes: oauth2.NewScopeSet(oauth2.ScopeOpenID, oauth2.ScopeProfile, oauth2.ScopeEmail, oauth2.ScopeOfflineAccess),
		AllowedGrants: []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
	}
	f.clients.Add(c)
	return c
}

func (f *serverFixture) addConfidentialClient(t *testing.T) *clients.Client {
	t.Helper()
	hash, err := clients.HashSecret("s3cret")
	require.NoError(t, err)
	c := &clients.Client{
		ID:            "backend",
		TenantID:      testTenant,
		Type:          clients.ConfidentialClient,
		SecretHash:    hash,
		AllowedScopes: oauth2.NewScopeSet(oauth2.ScopeOpenID),
		DefaultScopes: oauth2.NewScopeSet(oauth2.ScopeOpenID),
		AllowedGrants: []oauth2.GrantType{oauth2.ClientCredentialsGrant},
	}
	f.clients.Add(c)
	return c
}

// noRedirect returns a client that surfaces 302s instead of following them.
func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// authorize performs a full approved authorization request and returns the
// issued code.
func (f *serverFixture) authorize(t *testing.T) string {
	t.Helper()
	form := url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {testRedirect},
		"scope":                 {"openid email offline_access"},
		"state":                 {"xyz"},
		"code_challenge":        {testChallenge},
		"code_challenge_method": {"S256"},
		"action":                {"allow"},
	}
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+server.RouteAuthorize, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Authenticated-User", "user-1")

	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "xyz", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (f *serverFixture) exchangeCode(t *testing.T, code string) *oauth2.TokenResponse {
	t.Helper()
	resp, err := http.PostForm(f.srv.URL+server.RouteToken, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"spa"},
		"code":          {code},
		"redirect_uri":  {testRedirect},
		"code_verifier": {testVerifier},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var tr oauth2.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	return &tr
}

func TestAuthorizeEndpoint(t *testing.T) {
	t.Run("approved request redirects with code and state", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()
		f.authorize(t)
	})

	t.Run("unauthenticated user is rejected", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()

		resp, err := noRedirect().Get(f.srv.URL + server.RouteAuthorize +
			"?response_type=code&client_id=spa&redirect_uri=" + url.QueryEscape(testRedirect))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unregistered redirect URI never redirects", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()

		req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteAuthorize+
			"?response_type=code&client_id=spa&redirect_uri="+url.QueryEscape("https://evil.example.com/"), nil)
		require.NoError(t, err)
		req.Header.Set("X-Authenticated-User", "user-1")

		resp, err := noRedirect().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("denied consent redirects with access_denied", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()

		form := url.Values{
			"response_type":         {"code"},
			"client_id":             {"spa"},
			"redirect_uri":          {testRedirect},
			"scope":                 {"openid"},
			"state":                 {"s1"},
			"code_challenge":        {testChallenge},
			"code_challenge_method": {"S256"},
			"action":                {"deny"},
		}
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+server.RouteAuthorize, strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Authenticated-User", "user-1")

		resp, err := noRedirect().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "access_denied", location.Query().Get("error"))
		require.Equal(t, "s1", location.Query().Get("state"))
	})

	t.Run("anything but an explicit allow is a denial", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()

		for _, action := range []string{"", "approve", "yes"} {
			form := url.Values{
				"response_type":         {"code"},
				"client_id":             {"spa"},
				"redirect_uri":          {testRedirect},
				"scope":                 {"openid"},
				"state":                 {"s2"},
				"code_challenge":        {testChallenge},
				"code_challenge_method": {"S256"},
			}
			if action != "" {
				form.Set("action", action)
			}
			req, err := http.NewRequest(http.MethodPost, f.srv.URL+server.RouteAuthorize, strings.NewReader(form.Encode()))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("X-Authenticated-User", "user-1")

			resp, err := noRedirect().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusFound, resp.StatusCode)

			location, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(t, err)
			require.Equal(t, "access_denied", location.Query().Get("error"), "action=%q", action)
			require.Empty(t, location.Query().Get("code"), "action=%q", action)
		}
	})

	t.Run("unknown scope is redirected with invalid_scope", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()

		req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteAuthorize+
			"?response_type=code&client_id=spa&scope="+url.QueryEscape("openid not:registered")+
			"&state=s3&redirect_uri="+url.QueryEscape(testRedirect)+
			"&code_challenge="+testChallenge+"&code_challenge_method=S256", nil)
		require.NoError(t, err)
		req.Header.Set("X-Authenticated-User", "user-1")

		resp, err := noRedirect().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "invalid_scope", location.Query().Get("error"))
		require.Equal(t, "s3", location.Query().Get("state"))
	})

	t.Run("first visit renders the consent form", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()

		req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteAuthorize+
			"?response_type=code&client_id=spa&scope=openid"+
			"&redirect_uri="+url.QueryEscape(testRedirect)+
			"&code_challenge="+testChallenge+"&code_challenge_method=S256", nil)
		require.NoError(t, err)
		req.Header.Set("X-Authenticated-User", "user-1")

		resp, err := noRedirect().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "Example SPA")
		require.Contains(t, string(body), "openid")
	})
}

func TestTokenEndpoint(t *testing.T) {
	t.Run("authorization code exchange", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()
		code := f.authorize(t)
		tr := f.exchangeCode(t, code)

		require.Equal(t, "Bearer", tr.TokenType)
		require.NotEmpty(t, tr.AccessToken)
		require.NotEmpty(t, tr.RefreshToken)
		require.NotEmpty(t, tr.IDToken)
	})

	t.Run("client_credentials with basic auth", func(t *testing.T) {
		f := newServerFixture(t)
		f.addConfidentialClient(t)

		req, err := http.NewRequest(http.MethodPost, f.srv.URL+server.RouteToken,
			strings.NewReader(url.Values{"grant_type": {"client_credentials"}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("backend", "s3cret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var tr oauth2.TokenResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
		require.NotEmpty(t, tr.AccessToken)
		require.Empty(t, tr.RefreshToken)
	})

	t.Run("prefixed alias path serves the same endpoint", func(t *testing.T) {
		f := newServerFixture(t)
		f.addConfidentialClient(t)

		resp, err := http.PostForm(f.srv.URL+server.RouteTokenAlias, url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"backend"},
			"client_secret": {"s3cret"},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("bad client credentials are 401 with RFC shape", func(t *testing.T) {
		f := newServerFixture(t)
		f.addConfidentialClient(t)

		resp, err := http.PostForm(f.srv.URL+server.RouteToken, url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"backend"},
			"client_secret": {"wrong"},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "invalid_client", body["error"])
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		f := newServerFixture(t)
		f.addConfidentialClient(t)

		resp, err := http.PostForm(f.srv.URL+server.RouteToken, url.Values{
			"grant_type":    {"password"},
			"client_id":     {"backend"},
			"client_secret": {"s3cret"},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "unauthorized_client", body["error"])
	})
}

func TestRevocationEndpoint(t *testing.T) {
	t.Run("always 200 for authenticated clients", func(t *testing.T) {
		f := newServerFixture(t)
		f.addConfidentialClient(t)

		for _, tokenValue := range []string{"unknown-token", ""} {
			resp, err := http.PostForm(f.srv.URL+server.RouteRevoke, url.Values{
				"client_id":     {"backend"},
				"client_secret": {"s3cret"},
				"token":         {tokenValue},
			})
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})

	t.Run("revoked refresh token stops working", func(t *testing.T) {
		f := newServerFixture(t)
		f.addPublicClient()
		f.addConfidentialClient(t)
		code := f.authorize(t)
		tr := f.exchangeCode(t, code)

		resp, err := http.PostForm(f.srv.URL+server.RouteRevoke, url.Values{
			"client_id":       {"backend"},
			"client_secret":   {"s3cret"},
			"token":           {tr.RefreshToken},
			"token_type_hint": {"refresh_token"},
		})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		refreshResp, err := http.PostForm(f.srv.URL+server.RouteToken, url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"spa"},
			"refresh_token": {tr.RefreshToken},
		})
		require.NoError(t, err)
		defer refreshResp.Body.Close()
		require.Equal(t, http.StatusBadRequest, refreshResp.StatusCode)
	})

	t.Run("unauthenticated callers are rejected", func(t *testing.T) {
		f := newServerFixture(t)
		resp, err := http.PostForm(f.srv.URL+server.RouteRevoke, url.Values{
			"token": {"whatever"},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestIntrospectionEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.addPublicClient()
	f.addConfidentialClient(t)
	code := f.authorize(t)
	tr := f.exchangeCode(t, code)

	introspect := func(t *testing.T, tokenValue string) map[string]any {
		t.Helper()
		resp, err := http.PostForm(f.srv.URL+server.RouteIntrospect, url.Values{
			"client_id":     {"backend"},
			"client_secret": {"s3cret"},
			"token":         {tokenValue},
		})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	t.Run("live access token", func(t *testing.T) {
		body := introspect(t, tr.AccessToken)
		require.Equal(t, true, body["active"])
		require.Equal(t, "spa", body["client_id"])
	})

	t.Run("garbage token is bare active false", func(t *testing.T) {
		body := introspect(t, "garbage")
		require.Equal(t, false, body["active"])
		require.NotContains(t, body, "client_id")
		require.NotContains(t, body, "scope")
	})
}

func TestUserInfoEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.addPublicClient()
	code := f.authorize(t)
	tr := f.exchangeCode(t, code)

	t.Run("returns claims gated by scope", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+server.RouteUserInfo, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tr.AccessToken)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var claims map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&claims))
		require.Equal(t, "user-1", claims["sub"])
		require.Equal(t, "jo@example.com", claims["email"])
		// profile was not requested, so no name claims.
		require.NotContains(t, claims, "given_name")
	})

	t.Run("missing token is 401", func(t *testing.T) {
		resp, err := http.Get(f.srv.URL + server.RouteUserInfo)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	})
}

func TestDiscoveryAndJWKS(t *testing.T) {
	f := newServerFixture(t)

	t.Run("discovery document", func(t *testing.T) {
		resp, err := http.Get(f.srv.URL + server.RouteWellKnownOpenIDConfig)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var doc map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		require.Contains(t, doc["authorization_endpoint"], server.RouteAuthorize)
		require.Contains(t, doc["token_endpoint"], server.RouteToken)
		require.Contains(t, doc["jwks_uri"], server.RouteJWKS)
		require.Equal(t, []any{"code"}, doc["response_types_supported"])
		require.Equal(t, []any{"S256"}, doc["code_challenge_methods_supported"])
	})

	t.Run("jwks serves the verification set", func(t *testing.T) {
		for _, path := range []string{server.RouteJWKS, server.RouteWellKnownJWKS} {
			resp, err := http.Get(f.srv.URL + path)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, resp.Header.Get("Cache-Control"), "max-age=3600")

			var jwks keys.JWKS
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
			resp.Body.Close()
			require.Len(t, jwks.Keys, 1)
			require.Equal(t, "RSA", jwks.Keys[0].Kty)
			require.Equal(t, "RS256", jwks.Keys[0].Alg)
		}
	})
}
