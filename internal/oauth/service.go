package oauth

import (
	"context"
	"errors"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/client"
	"github.com/smallbiznis/authcore/internal/oauth/token"
	"github.com/smallbiznis/authcore/internal/observability/metrics"
	"github.com/smallbiznis/authcore/internal/tenant"
	"github.com/smallbiznis/authcore/internal/user"
)

// TokenResponse is the successful body of POST /oauth/token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Service orchestrates the grant flows over the collaborators.
type Service struct {
	log      *zap.Logger
	policy   *config.TokenPolicyHolder
	resolver *tenant.Resolver
	tenants  tenant.Repository
	verifier user.Verifier
	roles    user.RoleSource
	clients  client.Store
	codes    *authcode.Service
	issuer   *token.Issuer
	valid    *token.Validator
	refresh  *token.RefreshService
	key      *token.SigningKey
	metrics  *metrics.Metrics
}

type ServiceParams struct {
	Log      *zap.Logger
	Policy   *config.TokenPolicyHolder
	Resolver *tenant.Resolver
	Tenants  tenant.Repository
	Verifier user.Verifier
	Roles    user.RoleSource
	Clients  client.Store
	Codes    *authcode.Service
	Issuer   *token.Issuer
	Valid    *token.Validator
	Refresh  *token.RefreshService
	Key      *token.SigningKey
	Metrics  *metrics.Metrics
}

func NewService(p ServiceParams) *Service {
	return &Service{
		log:      p.Log.Named("oauth.service"),
		policy:   p.Policy,
		resolver: p.Resolver,
		tenants:  p.Tenants,
		verifier: p.Verifier,
		roles:    p.Roles,
		clients:  p.Clients,
		codes:    p.Codes,
		issuer:   p.Issuer,
		valid:    p.Valid,
		refresh:  p.Refresh,
		key:      p.Key,
		metrics:  p.Metrics,
	}
}

// JWKS is the public key set served at /.well-known/jwks.json.
func (s *Service) JWKS() jose.JSONWebKeySet {
	return s.key.JWKS()
}

// authenticateClient resolves and authenticates the caller. Confidential
// clients must present their secret; public clients must not present one.
func (s *Service) authenticateClient(ctx context.Context, clientID, clientSecret string) (*client.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClient()
	}
	record, err := s.clients.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			return nil, ErrInvalidClient()
		}
		return nil, err
	}
	if record.Public() {
		if clientSecret != "" {
			return nil, ErrInvalidClient()
		}
		return record, nil
	}
	if !client.VerifySecret(clientSecret, record.SecretHash) {
		return nil, ErrInvalidClient()
	}
	return record, nil
}

func (s *Service) accessTTL(t *tenant.Tenant) time.Duration {
	if t != nil && t.AccessTokenTTLMinutes != nil && *t.AccessTokenTTLMinutes > 0 {
		return time.Duration(*t.AccessTokenTTLMinutes) * time.Minute
	}
	return s.policy.Get().AccessTokenTTL()
}

func (s *Service) refreshTTL(t *tenant.Tenant) time.Duration {
	if t != nil && t.RefreshTokenTTLDays != nil && *t.RefreshTokenTTLDays > 0 {
		return time.Duration(*t.RefreshTokenTTLDays) * 24 * time.Hour
	}
	return s.policy.Get().RefreshTokenTTL()
}

// issueTokens mints the access/refresh pair every successful grant ends
// with.
func (s *Service) issueTokens(ctx context.Context, t *tenant.Tenant, grant token.RefreshParams) (*TokenResponse, error) {
	accessTTL := s.accessTTL(t)

	raw, _, err := s.issuer.Issue(token.IssueParams{
		Subject:  grant.UserID.String(),
		TenantID: grant.TenantID.String(),
		ClientID: grant.ClientID,
		Roles:    grant.Roles,
		Scope:    grant.Scope,
		TTL:      accessTTL,
	})
	if err != nil {
		return nil, err
	}

	grant.TTL = s.refreshTTL(t)
	refreshRaw, _, err := s.refresh.Issue(ctx, grant)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		RefreshToken: refreshRaw,
		Scope:        grant.Scope,
	}, nil
}

// resolveTenant maps the request hints to a tenant, falling back to the
// authenticated client's tenant when no hint is present. The resolved
// tenant must be active and must own the client.
func (s *Service) resolveTenant(ctx context.Context, c *client.Client, explicitID, username, host string) (*tenant.Tenant, error) {
	hints := tenant.ResolveRequest{
		ExplicitID:  explicitID,
		EmailDomain: tenant.EmailDomain(username),
		Host:        host,
	}

	var resolved *tenant.Tenant
	var err error
	if hints.ExplicitID == "" && hints.EmailDomain == "" && hints.Host == "" {
		resolved, err = s.tenants.FindByID(ctx, c.TenantID)
	} else {
		resolved, err = s.resolver.Resolve(ctx, hints)
	}
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return nil, ErrAccessDenied()
		}
		return nil, err
	}
	if !resolved.IsActive || resolved.ID != c.TenantID {
		return nil, ErrAccessDenied()
	}
	return resolved, nil
}
