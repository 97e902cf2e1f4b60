package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the key and stamps the window expiry on
// first touch, atomically.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// redisCounter shares windows across replicas through Redis.
type redisCounter struct {
	client *redis.Client
}

// NewRedisCounter returns a fixed-window counter backed by Redis. Use it
// when the server runs more than one replica behind a balancer.
func NewRedisCounter(client *redis.Client) Counter {
	return &redisCounter{client: client}
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := fixedWindowScript.Run(ctx, c.client,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, err
	}
	return count, nil
}
