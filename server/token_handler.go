package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/token"
)

// handleToken serves the token endpoint for all three grant types.
func (s *Server) handleToken(c echo.Context) error {
	clientID, clientSecret := clientCredentials(c)

	params := token.Params{
		GrantType:    oauth2.GrantType(c.FormValue("grant_type")),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
		Scope:        c.FormValue("scope"),
	}

	// Token responses must never be cached (RFC 6749 §5.1).
	h := c.Response().Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")

	resp, err := s.tokens.Exchange(c.Request().Context(), params)
	if err != nil {
		oerr := oauth2.AsError(err)
		if oerr.Code == oauth2.ErrServerError {
			log.Error().Err(err).Str("grantType", string(params.GrantType)).Msg("token exchange failed")
		}
		if oerr.Code == oauth2.ErrInvalidClient {
			c.Response().Header().Set("WWW-Authenticate", `Basic realm="token"`)
		}
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleIntrospect serves RFC 7662 introspection. Callers must authenticate
// as a registered client; the response never distinguishes unknown from
// revoked or expired tokens.
func (s *Server) handleIntrospect(c echo.Context) error {
	if _, err := s.authenticateClient(c); err != nil {
		return writeOAuthError(c, err)
	}

	resp, err := s.tokens.Introspect(c.Request().Context(), c.FormValue("token"), c.FormValue("token_type_hint"))
	if err != nil {
		log.Error().Err(err).Msg("introspection failed")
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrServerError, "internal error"))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleRevoke serves RFC 7009 revocation. The response is 200 with an empty
// body whether or not a matching token existed.
func (s *Server) handleRevoke(c echo.Context) error {
	if _, err := s.authenticateClient(c); err != nil {
		return writeOAuthError(c, err)
	}

	if err := s.tokens.Revoke(c.Request().Context(), c.FormValue("token"), c.FormValue("token_type_hint")); err != nil {
		log.Error().Err(err).Msg("revocation failed")
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrServerError, "internal error"))
	}
	return c.JSON(http.StatusOK, echo.Map{})
}
