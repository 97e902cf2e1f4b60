package authcode

import "go.uber.org/fx"

var Module = fx.Module("oauth.authcode",
	fx.Provide(NewStore),
	fx.Provide(NewService),
)
