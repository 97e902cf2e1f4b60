package token

import (
	"crypto/rsa"
	"errors"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/internal/config"
)

// ErrInvalidToken is the single validation failure surfaced to callers.
// The cause (signature, expiry, issuer, audience) is logged, never
// returned.
var ErrInvalidToken = errors.New("invalid token")

// Validator checks access tokens. Expiry is evaluated with zero leeway:
// a token one second past exp is rejected.
type Validator struct {
	public   *rsa.PublicKey
	issuer   string
	audience string
	clock    clock.Clock
}

func NewValidator(cfg config.Config, key *SigningKey, clk clock.Clock) *Validator {
	return &Validator{
		public:   &key.Private.PublicKey,
		issuer:   cfg.TokenIssuer,
		audience: cfg.TokenAudience,
		clock:    clk,
	}
}

// Validate verifies the signature and the registered claims and returns
// the decoded claims on success.
func (v *Validator) Validate(raw string) (*AccessClaims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var claims AccessClaims
	if err := parsed.Claims(v.public, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	expected := jwt.Expected{
		Issuer:      v.issuer,
		AnyAudience: jwt.Audience{v.audience},
		Time:        v.clock.Now(),
	}
	if err := claims.ValidateWithLeeway(expected, 0); err != nil {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
