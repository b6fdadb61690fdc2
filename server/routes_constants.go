package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteJWKS                  = "/jwks.json"
	RouteAuthorize             = "/authorize"
	RouteToken                 = "/token"
	RouteIntrospect            = "/introspect"
	RouteRevoke                = "/revoke"
	RouteUserInfo              = "/userinfo"

	// Operational Routes
	RouteHealth = "/healthz"
)

// Alias routes for clients expecting the conventional prefixed layout. The
// discovery document advertises the canonical paths above.
const (
	RouteAuthorizeAlias  = "/oauth2/authorize"
	RouteTokenAlias      = "/oauth2/token"
	RouteIntrospectAlias = "/oauth2/introspect"
	RouteRevokeAlias     = "/oauth2/revoke"
	RouteWellKnownJWKS   = "/.well-known/jwks.json"
)
