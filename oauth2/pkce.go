package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// S256Challenge computes the PKCE S256 transformation of a code verifier:
// BASE64URL-ENCODE(SHA256(ASCII(code_verifier))) without padding (RFC 7636 §4.2).
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge checks a presented code_verifier against the challenge
// stored at code issuance. Only S256 is supported; any other method fails.
func VerifyCodeChallenge(challenge string, method CodeChallengeMethod, verifier string) bool {
	if method != CodeChallengeMethodS256 {
		return false
	}
	computed := S256Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
