package oauth

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/client"
	"github.com/smallbiznis/authcore/internal/oauth/token"
	"github.com/smallbiznis/authcore/internal/observability/metrics"
	"github.com/smallbiznis/authcore/internal/tenant"
	"github.com/smallbiznis/authcore/internal/user"
	"go.uber.org/zap"
)

var Module = fx.Module("oauth",
	client.Module,
	authcode.Module,
	token.Module,
	fx.Provide(func(
		log *zap.Logger,
		policy *config.TokenPolicyHolder,
		resolver *tenant.Resolver,
		tenants tenant.Repository,
		verifier user.Verifier,
		roles user.RoleSource,
		clients client.Store,
		codes *authcode.Service,
		issuer *token.Issuer,
		valid *token.Validator,
		refresh *token.RefreshService,
		key *token.SigningKey,
		m *metrics.Metrics,
	) *Service {
		return NewService(ServiceParams{
			Log:      log,
			Policy:   policy,
			Resolver: resolver,
			Tenants:  tenants,
			Verifier: verifier,
			Roles:    roles,
			Clients:  clients,
			Codes:    codes,
			Issuer:   issuer,
			Valid:    valid,
			Refresh:  refresh,
			Key:      key,
			Metrics:  m,
		})
	}),
	fx.Provide(NewHandler),
)
