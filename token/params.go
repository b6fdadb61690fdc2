package token

import "github.com/radiantplatform/oauth-core/oauth2"

// Params carries the form parameters of a token endpoint request. Which
// fields are consulted depends on the grant type.
type Params struct {
	GrantType    oauth2.GrantType
	ClientID     string
	ClientSecret string

	// authorization_code grant
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token grant
	RefreshToken string

	// Scope is the raw requested scope string. Used by client_credentials,
	// and by refresh_token to narrow the granted set.
	Scope string
}
