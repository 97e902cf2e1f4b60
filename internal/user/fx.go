package user

import "go.uber.org/fx"

var Module = fx.Module("user",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Verifier { return s }),
	fx.Provide(func(s *Service) RoleSource { return s }),
)
