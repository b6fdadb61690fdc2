package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in
// RFC 6749, returned from the /token endpoint for all grant types.
type TokenResponse struct {
	// AccessToken is the JWT used to access protected resources.
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// IDToken is the OpenID Connect ID token with user identity claims.
	// Only present when the "openid" scope was granted to a user principal.
	IDToken string `json:"id_token,omitempty"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds. The authoritative
	// expiry is the JWT "exp" claim; this is a hint for clients.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is the opaque rotating refresh token. Only present when
	// the "offline_access" scope was granted. Each use rotates it; the value
	// presented is invalidated the moment a replacement is issued.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the granted scope set, space-joined. May be narrower than
	// requested.
	Scope string `json:"scope,omitempty"`
}
