package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/radiantplatform/oauth-core/oauth2"
)

// handleDiscovery serves the OIDC discovery document.
func (s *Server) handleDiscovery(c echo.Context) error {
	baseURL := s.cfg.GetBaseURL()

	resp := map[string]any{
		"issuer":                 baseURL,
		"authorization_endpoint": baseURL + RouteAuthorize,
		"token_endpoint":         baseURL + RouteToken,
		"userinfo_endpoint":      baseURL + RouteUserInfo,
		"jwks_uri":               baseURL + RouteJWKS,
		"revocation_endpoint":    baseURL + RouteRevoke,
		"introspection_endpoint": baseURL + RouteIntrospect,

		"response_types_supported": []string{"code"},
		"response_modes_supported": []string{"query"},
		"subject_types_supported":  []string{"public"},

		"grant_types_supported": []string{
			string(oauth2.AuthorizationCodeGrant),
			string(oauth2.RefreshTokenGrant),
			string(oauth2.ClientCredentialsGrant),
		},

		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{string(oauth2.CodeChallengeMethodS256)},

		"scopes_supported": s.scopes.All(),

		"token_endpoint_auth_methods_supported": []string{
			"client_secret_basic",
			"client_secret_post",
			"none", // public clients with PKCE
		},
	}
	return c.JSON(http.StatusOK, resp)
}

// handleJWKS serves the verification key set: the active key plus any
// deactivated keys still inside the grace window.
func (s *Server) handleJWKS(c echo.Context) error {
	tenantID := c.QueryParam("tenant")
	if tenantID == "" {
		tenantID = s.cfg.GetDefaultTenantID()
	}

	jwks, err := s.keys.JWKS(c.Request().Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("jwks lookup failed")
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrServerError, "internal error"))
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=3600")
	return c.JSON(http.StatusOK, jwks)
}

// handleUserInfo serves OIDC userinfo, gated on a live access token carrying
// the openid scope. Profile and email claims follow the granted scopes.
func (s *Server) handleUserInfo(c echo.Context) error {
	rawToken := bearerToken(c.Request())
	if rawToken == "" {
		c.Response().Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
	}

	info, err := s.tokens.Introspect(c.Request().Context(), rawToken, "access_token")
	if err != nil {
		log.Error().Err(err).Msg("userinfo introspection failed")
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrServerError, "internal error"))
	}
	if !info.Active || info.Subject == "" {
		c.Response().Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
	}

	scopes := oauth2.SplitScopes(info.Scope)
	if !scopes.Contains(oauth2.ScopeOpenID) {
		c.Response().Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient_scope"})
	}

	user, err := s.users.GetByID(c.Request().Context(), info.Subject)
	if err != nil {
		log.Error().Err(err).Str("sub", info.Subject).Msg("userinfo lookup failed")
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrServerError, "internal error"))
	}

	claims := map[string]any{"sub": user.ID}
	if scopes.Contains(oauth2.ScopeEmail) {
		claims["email"] = user.Email
		claims["email_verified"] = user.EmailVerified
	}
	if scopes.Contains(oauth2.ScopeProfile) {
		claims["name"] = user.Name()
		claims["given_name"] = user.FirstName
		claims["family_name"] = user.LastName
		if user.Picture != "" {
			claims["picture"] = user.Picture
		}
	}
	return c.JSON(http.StatusOK, claims)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
