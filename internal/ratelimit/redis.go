package ratelimit

import (
	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/authcore/internal/config"
)

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
