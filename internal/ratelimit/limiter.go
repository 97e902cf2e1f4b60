package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of one limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	RetryAfter time.Duration
}

var allow = Decision{Allowed: true}

// Limiter combines the config reader and a counter into per-endpoint,
// per-caller fixed-window limiting.
type Limiter struct {
	log     *zap.Logger
	reader  *Reader
	counter Counter
}

func NewLimiter(log *zap.Logger, reader *Reader, counter Counter) *Limiter {
	l := &Limiter{
		log:     log.Named("ratelimit.limiter"),
		reader:  reader,
		counter: counter,
	}
	l.log.Info("rate limiting ready, failing open on config or counter errors")
	return l
}

// Check records one request from the caller against the endpoint's
// window. Unlimited endpoints and counter failures both allow: the
// limiter protects the endpoints, it must never become the outage.
func (l *Limiter) Check(ctx context.Context, endpoint, caller string) Decision {
	cfg, ok := l.reader.Get(ctx, endpoint)
	if !ok {
		l.log.Debug("no rate limit configured", zap.String("endpoint", endpoint))
		return allow
	}

	key := fmt.Sprintf("%s:%s", endpoint, caller)
	count, err := l.counter.Incr(ctx, key, cfg.Window())
	if err != nil {
		l.log.Warn("rate limit counter failed, failing open",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return allow
	}

	if count > int64(cfg.MaxRequests) {
		return Decision{
			Allowed:    false,
			Limit:      cfg.MaxRequests,
			RetryAfter: cfg.Window(),
		}
	}
	return Decision{Allowed: true, Limit: cfg.MaxRequests}
}
