// Package server assembles the HTTP surface and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth"
	"github.com/smallbiznis/authcore/internal/observability"
	"github.com/smallbiznis/authcore/internal/observability/logger"
	"github.com/smallbiznis/authcore/internal/observability/metrics"
	"github.com/smallbiznis/authcore/internal/observability/tracing"
	"github.com/smallbiznis/authcore/internal/ratelimit"
)

// NewEngine wires the middleware chain and mounts every route.
func NewEngine(
	cfg config.Config,
	obsCfg observability.Config,
	handler *oauth.Handler,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	httpMetrics *metrics.HTTPMetrics,
) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{Debug: obsCfg.Debug()}))
	engine.Use(tracing.GinMiddleware())
	engine.Use(metrics.GinMiddleware(httpMetrics))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.Register(engine, ratelimit.Middleware(limiter, m))
	return engine
}

// Run starts the HTTP server under the fx lifecycle with graceful
// shutdown.
func Run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Invoke(Run),
)
