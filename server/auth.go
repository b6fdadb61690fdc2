package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/oauth2"
)

// clientCredentials extracts client_id and client_secret from HTTP Basic auth
// or, failing that, the form body. Basic auth values are form-urlencoded per
// RFC 6749 §2.3.1.
func clientCredentials(c echo.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

// authenticateClient resolves and verifies the requesting client for the
// introspection and revocation endpoints.
func (s *Server) authenticateClient(c echo.Context) (*clients.Client, error) {
	clientID, clientSecret := clientCredentials(c)
	if clientID == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client authentication required")
	}
	client, err := s.clients.Get(c.Request().Context(), clientID)
	if err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client authentication failed")
	}
	if err := client.VerifySecret(clientSecret); err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client authentication failed")
	}
	return client, nil
}

// writeOAuthError renders err as an RFC 6749 error body with the status the
// error code maps to. Unknown errors become server_error without leaking
// internals.
func writeOAuthError(c echo.Context, err error) error {
	oerr := oauth2.AsError(err)
	return c.JSON(oerr.StatusCode(), echo.Map{
		"error":             string(oerr.Code),
		"error_description": oerr.Description,
	})
}

// HeaderAuthenticator trusts an upstream authentication proxy to identify
// the end-user through a request header. Deployments terminating login
// themselves should supply their own UserAuthenticator.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) UserID(r *http.Request) (string, error) {
	header := a.Header
	if header == "" {
		header = "X-Authenticated-User"
	}
	userID := r.Header.Get(header)
	if userID == "" {
		return "", ErrNotAuthenticated
	}
	return userID, nil
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.ClientName}}</title></head>
<body>
<h1>{{.ClientName}} is requesting access</h1>
<ul>
{{range .Scopes}}<li>{{.}}</li>{{end}}
</ul>
<form method="POST" action="` + RouteAuthorize + `">
{{range $k, $v := .Params}}<input type="hidden" name="{{$k}}" value="{{$v}}">
{{end}}<button type="submit" name="action" value="allow">Allow</button>
<button type="submit" name="action" value="deny">Deny</button>
</form>
</body>
</html>
`))

// defaultConsentRenderer serves a minimal HTML consent form.
type defaultConsentRenderer struct{}

func (defaultConsentRenderer) Render(w http.ResponseWriter, page ConsentPage) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return consentTemplate.Execute(w, page)
}
