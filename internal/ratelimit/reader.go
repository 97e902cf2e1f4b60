package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/authcore/internal/cache"
)

const configCacheTTL = 30 * time.Second

// Reader resolves the limit configured for an endpoint. Lookups are
// cached so the hot path stays off the database.
type Reader struct {
	log   *zap.Logger
	db    *gorm.DB
	cache cache.Cache[string, *Config]
}

func NewReader(log *zap.Logger, db *gorm.DB) *Reader {
	return &Reader{
		log:   log.Named("ratelimit.reader"),
		db:    db,
		cache: cache.NewTTLCache[string, *Config](),
	}
}

// Get returns the enabled config for the endpoint, or false when the
// endpoint is unlimited. Database failures also return false: limiting
// fails open rather than taking the token endpoint down with it.
func (r *Reader) Get(ctx context.Context, endpoint string) (*Config, bool) {
	if cached, ok := r.cache.Get(endpoint); ok {
		if cached == nil {
			return nil, false
		}
		return cached, true
	}

	var cfg Config
	err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&cfg).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Warn("rate limit config lookup failed, failing open",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			return nil, false
		}
		// Cache the absence too.
		r.cache.Set(endpoint, nil, configCacheTTL)
		return nil, false
	}

	if !cfg.Enabled || cfg.MaxRequests <= 0 || cfg.WindowSeconds <= 0 {
		r.cache.Set(endpoint, nil, configCacheTTL)
		return nil, false
	}

	r.cache.Set(endpoint, &cfg, configCacheTTL)
	return &cfg, true
}
