// Package server is the HTTP transport: it parses and validates protocol
// parameters, maps domain errors onto RFC 6749 response shapes, and delegates
// every decision to the token, authcode, and keys packages.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/radiantplatform/oauth-core/authcode"
	"github.com/radiantplatform/oauth-core/clients"
	"github.com/radiantplatform/oauth-core/internal/config"
	"github.com/radiantplatform/oauth-core/oauth2"
	"github.com/radiantplatform/oauth-core/token"
	"github.com/radiantplatform/oauth-core/token/keys"
	"github.com/radiantplatform/oauth-core/users"
)

// UserAuthenticator resolves the authenticated end-user for an authorization
// request. Session and login UI live outside this core.
type UserAuthenticator interface {
	// UserID returns the authenticated user's ID, or ErrNotAuthenticated.
	UserID(r *http.Request) (string, error)
}

// ErrNotAuthenticated is returned by a UserAuthenticator when the request
// carries no valid end-user session.
var ErrNotAuthenticated = errors.New("not authenticated")

// ConsentPage carries what the consent renderer needs to show.
type ConsentPage struct {
	ClientName string
	Scopes     []string
	// Params are the authorization request parameters the approval form must
	// post back.
	Params map[string]string
}

// ConsentRenderer renders the consent prompt. The default implementation
// serves a minimal HTML form.
type ConsentRenderer interface {
	Render(w http.ResponseWriter, page ConsentPage) error
}

// Server wires the OAuth2/OIDC endpoints onto an echo instance.
type Server struct {
	echo          *echo.Echo
	cfg           config.Config
	tokens        *token.Manager
	codes         *authcode.Issuer
	clients       clients.Repo
	users         users.Repo
	keys          *keys.Manager
	authenticator UserAuthenticator
	consent       ConsentRenderer
	limiter       *rateLimiter
	scopes        *oauth2.ScopeRegistry
}

// Option modifies a Server.
type Option func(*Server)

// WithConsentRenderer replaces the default HTML consent form.
func WithConsentRenderer(r ConsentRenderer) Option {
	return func(s *Server) { s.consent = r }
}

// WithRateLimit overrides the default token endpoint rate limit.
func WithRateLimit(perSecond, burst int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(perSecond, burst) }
}

// WithScopeRegistry replaces the scope registry requested scopes are
// validated against at the authorization endpoint. Should be the same
// registry the token manager validates with.
func WithScopeRegistry(r *oauth2.ScopeRegistry) Option {
	return func(s *Server) { s.scopes = r }
}

// New creates the server and registers all routes.
func New(
	cfg config.Config,
	tokens *token.Manager,
	codes *authcode.Issuer,
	clientRepo clients.Repo,
	userRepo users.Repo,
	keyManager *keys.Manager,
	authenticator UserAuthenticator,
	options ...Option,
) (*Server, error) {
	if tokens == nil || codes == nil || clientRepo == nil || userRepo == nil || keyManager == nil {
		return nil, errors.New("[server.New] all dependencies are required")
	}
	if authenticator == nil {
		return nil, errors.New("[server.New] user authenticator is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:          e,
		cfg:           cfg,
		tokens:        tokens,
		codes:         codes,
		clients:       clientRepo,
		users:         userRepo,
		keys:          keyManager,
		authenticator: authenticator,
		consent:       defaultConsentRenderer{},
		limiter:       newRateLimiter(10, 20),
		scopes:        oauth2.NewScopeRegistry(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.echo.Use(requestLogger())
	s.echo.Use(securityHeaders())

	s.echo.GET(RouteWellKnownOpenIDConfig, s.handleDiscovery)
	s.echo.GET(RouteJWKS, s.handleJWKS)
	s.echo.GET(RouteWellKnownJWKS, s.handleJWKS)

	s.echo.GET(RouteAuthorize, s.handleAuthorize)
	s.echo.POST(RouteAuthorize, s.handleAuthorize)
	s.echo.GET(RouteAuthorizeAlias, s.handleAuthorize)
	s.echo.POST(RouteAuthorizeAlias, s.handleAuthorize)

	s.echo.POST(RouteToken, s.handleToken, s.rateLimit())
	s.echo.POST(RouteTokenAlias, s.handleToken, s.rateLimit())
	s.echo.POST(RouteIntrospect, s.handleIntrospect)
	s.echo.POST(RouteIntrospectAlias, s.handleIntrospect)
	s.echo.POST(RouteRevoke, s.handleRevoke)
	s.echo.POST(RouteRevokeAlias, s.handleRevoke)

	s.echo.GET(RouteUserInfo, s.handleUserInfo)

	s.echo.GET(RouteHealth, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "[Server.Start] echo.Start")
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Wrap(s.echo.Shutdown(ctx), "[Server.Shutdown] echo.Shutdown")
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
