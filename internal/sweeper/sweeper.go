// Package sweeper removes expired authorization codes and refresh
// tokens in the background. The request path never depends on it:
// expired records are already rejected at validation time.
package sweeper

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/token"
)

const defaultInterval = 5 * time.Minute

// Sweeper periodically deletes expired protocol state.
type Sweeper struct {
	log      *zap.Logger
	codes    *authcode.Service
	refresh  *token.RefreshService
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func New(log *zap.Logger, cfg config.Config, codes *authcode.Service, refresh *token.RefreshService) *Sweeper {
	interval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil || interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		log:      log.Named("sweeper"),
		codes:    codes,
		refresh:  refresh,
		interval: interval,
	}
}

// Start launches the sweep loop. The first sweep is jittered so
// restarting replicas do not all hit the store at once.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		jitter := time.Duration(rand.Int63n(int64(s.interval)))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.sweep(ctx)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	codes, err := s.codes.CleanupExpired(ctx)
	if err != nil {
		s.log.Warn("code sweep failed", zap.Error(err))
	}
	tokens, err := s.refresh.CleanupExpired(ctx)
	if err != nil {
		s.log.Warn("refresh token sweep failed", zap.Error(err))
	}
	if codes > 0 || tokens > 0 {
		s.log.Info("swept expired records",
			zap.Int64("codes", codes),
			zap.Int64("refresh_tokens", tokens),
		)
	}
}

var Module = fx.Module("sweeper",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				s.Stop()
				return nil
			},
		})
	}),
)
