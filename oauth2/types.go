package oauth2

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Returns an authorization code that must be exchanged for tokens at the token endpoint.
	// Example: /authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// CodeChallengeMethod represents the PKCE (Proof Key for Code Exchange) challenge method.
// Used to prevent authorization code interception attacks (mandatory for public clients).
type CodeChallengeMethod string

const (
	// CodeChallengeMethodS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: BASE64URL(SHA256(provided code_verifier)) == stored code_challenge
	// This is the only method the server accepts; "plain" is rejected at the
	// authorization endpoint.
	CodeChallengeMethodS256 CodeChallengeMethod = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, client_secret, redirect_uri, code_verifier (if PKCE)
	// Returns: access_token, id_token (openid scope), refresh_token (offline_access scope)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsGrant allows machine-to-machine authentication.
	// Token request includes: client_id, client_secret, scope
	// Returns: access_token only (no refresh_token or id_token)
	ClientCredentialsGrant GrantType = "client_credentials"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token, client_id, client_secret
	// Returns: new access_token, id_token, and a rotated refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenTypeBearer is the only token type issued by this server.
const TokenTypeBearer = "Bearer"
