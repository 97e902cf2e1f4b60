package ratelimit

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/internal/config"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewReader),
	fx.Provide(func(cfg config.Config, clk clock.Clock) Counter {
		// Redis shares windows across replicas; a single instance
		// counts in memory.
		if cfg.RedisAddr != "" {
			return NewRedisCounter(newRedisClient(cfg))
		}
		return NewMemoryCounter(clk)
	}),
	fx.Provide(NewLimiter),
)
