package authcode

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE challenge methods (RFC 7636).
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// VerifyPKCE checks a code_verifier against the challenge recorded at
// authorization time. Unknown methods always fail. Comparisons are
// constant time.
func VerifyPKCE(method, challenge, verifier string) bool {
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case MethodPlain:
		// Case sensitive, byte for byte.
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
