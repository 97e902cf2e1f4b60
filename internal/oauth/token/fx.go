package token

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/authcore/internal/config"
)

var Module = fx.Module("oauth.token",
	fx.Provide(func(cfg config.Config) (*SigningKey, error) {
		return LoadSigningKey(cfg.SigningKeyPath)
	}),
	fx.Provide(NewIssuer),
	fx.Provide(NewValidator),
	fx.Provide(NewRefreshStore),
	fx.Provide(NewRefreshService),
)
