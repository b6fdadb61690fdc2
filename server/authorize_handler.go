package server

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/oauth2"
)

// authorizeRequest is the parsed and client-validated authorization request.
type authorizeRequest struct {
	client              *clients.Client
	redirectURI         string
	scopes              oauth2.ScopeSet
	state               string
	codeChallenge       string
	codeChallengeMethod string
	nonce               string
	tenantID            string
}

// handleAuthorize serves GET (initial request, consent prompt) and POST
// (consent decision). Errors before the redirect URI is validated are
// rendered directly; after validation they are redirected per RFC 6749 §4.1.2.1.
func (s *Server) handleAuthorize(c echo.Context) error {
	req, err := s.parseAuthorizeRequest(c)
	if err != nil {
		// Unknown client or unregistered redirect URI: never redirect.
		return writeOAuthError(c, err)
	}

	if c.FormValue("response_type") != string(oauth2.CodeResponseType) {
		return redirectError(c, req.redirectURI, req.state, oauth2.ErrUnsupportedResponseType, "only the code response type is supported")
	}

	// The redirect URI is validated, so scope errors travel back on it.
	req.scopes, err = s.scopes.Parse(c.FormValue("scope"))
	if err != nil {
		return redirectError(c, req.redirectURI, req.state, oauth2.ErrInvalidScope, "unknown scope")
	}

	userID, err := s.authenticator.UserID(c.Request())
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"error":             "login_required",
				"error_description": "end-user authentication required",
			})
		}
		log.Error().Err(err).Msg("user authentication failed")
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrServerError, "internal error"))
	}

	if c.Request().Method == http.MethodPost {
		// Anything other than an explicit allow is a denial.
		if c.FormValue("action") != "allow" {
			return redirectError(c, req.redirectURI, req.state, oauth2.ErrAccessDenied, "the resource owner denied the request")
		}
		return s.issueCode(c, req, userID)
	}

	if s.codes.HasConsent(c.Request().Context(), userID, req.client.ID, req.tenantID, req.scopes) {
		return s.issueCode(c, req, userID)
	}
	return s.renderConsent(c, req)
}

func (s *Server) parseAuthorizeRequest(c echo.Context) (*authorizeRequest, error) {
	clientID := c.FormValue("client_id")
	if clientID == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "client_id is required")
	}
	client, err := s.clients.Get(c.Request().Context(), clientID)
	if err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "unknown client")
	}

	redirectURI := c.FormValue("redirect_uri")
	if redirectURI == "" || !client.HasRedirectURI(redirectURI) {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "redirect_uri is not registered")
	}

	tenantID := client.TenantID
	if tenantID == "" {
		tenantID = s.cfg.GetDefaultTenantID()
	}

	return &authorizeRequest{
		client:              client,
		redirectURI:         redirectURI,
		state:               c.FormValue("state"),
		codeChallenge:       c.FormValue("code_challenge"),
		codeChallengeMethod: c.FormValue("code_challenge_method"),
		nonce:               c.FormValue("nonce"),
		tenantID:            tenantID,
	}, nil
}

func (s *Server) issueCode(c echo.Context, req *authorizeRequest, userID string) error {
	code, err := s.codes.Issue(c.Request().Context(), authcode.IssueRequest{
		Client:              req.client,
		UserID:              userID,
		TenantID:            req.tenantID,
		RedirectURI:         req.redirectURI,
		Scopes:              req.scopes,
		CodeChallenge:       req.codeChallenge,
		CodeChallengeMethod: oauth2.CodeChallengeMethod(req.codeChallengeMethod),
		Nonce:               req.nonce,
	})
	if err != nil {
		oerr := oauth2.AsError(err)
		if oerr.Code == oauth2.ErrServerError {
			log.Error().Err(err).Msg("authorization code issuance failed")
		}
		// The redirect URI was validated, so the error travels back on it.
		return redirectError(c, req.redirectURI, req.state, oerr.Code, oerr.Description)
	}

	location, _ := url.Parse(req.redirectURI)
	q := location.Query()
	q.Set("code", code)
	if req.state != "" {
		q.Set("state", req.state)
	}
	location.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, location.String())
}

func (s *Server) renderConsent(c echo.Context, req *authorizeRequest) error {
	params := map[string]string{
		"response_type": c.FormValue("response_type"),
		"client_id":     req.client.ID,
		"redirect_uri":  req.redirectURI,
		"scope":         req.scopes.String(),
		"state":         req.state,
	}
	if req.codeChallenge != "" {
		params["code_challenge"] = req.codeChallenge
		params["code_challenge_method"] = req.codeChallengeMethod
	}
	if req.nonce != "" {
		params["nonce"] = req.nonce
	}

	scopes := make([]string, 0, len(req.scopes))
	for _, scope := range req.scopes.Sorted() {
		scopes = append(scopes, string(scope))
	}
	return s.consent.Render(c.Response(), ConsentPage{
		ClientName: req.client.Name,
		Scopes:     scopes,
		Params:     params,
	})
}

func redirectError(c echo.Context, redirectURI, state string, code oauth2.ErrorCode, description string) error {
	location, err := url.Parse(redirectURI)
	if err != nil {
		return writeOAuthError(c, oauth2.NewError(oauth2.ErrInvalidRequest, "redirect_uri is malformed"))
	}
	q := location.Query()
	q.Set("error", string(code))
	if description != "" {
		q.Set("error_description", description)
	}
	if state != "" {
		q.Set("state", state)
	}
	location.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, location.String())
}
