package token

import (
	"crypto/rand"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/oklog/ulid/v2"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/internal/config"
)

// AccessClaims is the payload of an issued access token.
type AccessClaims struct {
	jwt.Claims
	TenantID string   `json:"tenant_id,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Scope    string   `json:"scope,omitempty"`
}

// IssueParams describes one access token to mint.
type IssueParams struct {
	Subject  string
	TenantID string
	ClientID string
	Roles    []string
	Scope    string
	TTL      time.Duration
}

// Issuer mints RS256-signed access tokens.
type Issuer struct {
	signer   jose.Signer
	issuer   string
	audience string
	clock    clock.Clock
}

func NewIssuer(cfg config.Config, key *SigningKey, clk clock.Clock) (*Issuer, error) {
	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KeyID)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key.Private}, opts)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	return &Issuer{
		signer:   signer,
		issuer:   cfg.TokenIssuer,
		audience: cfg.TokenAudience,
		clock:    clk,
	}, nil
}

// Issue signs a token valid from now for the given TTL and returns the
// compact serialization alongside the claims it carries.
func (i *Issuer) Issue(params IssueParams) (string, AccessClaims, error) {
	now := i.clock.Now()

	jti, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", AccessClaims{}, err
	}

	claims := AccessClaims{
		Claims: jwt.Claims{
			ID:       jti.String(),
			Issuer:   i.issuer,
			Subject:  params.Subject,
			Audience: jwt.Audience{i.audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(params.TTL)),
		},
		TenantID: params.TenantID,
		ClientID: params.ClientID,
		Roles:    params.Roles,
		Scope:    params.Scope,
	}

	raw, err := jwt.Signed(i.signer).Claims(claims).Serialize()
	if err != nil {
		return "", AccessClaims{}, fmt.Errorf("sign token: %w", err)
	}
	return raw, claims, nil
}
