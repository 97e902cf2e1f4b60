package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/migration"
	"github.com/smallbiznis/authcore/internal/oauth"
	"github.com/smallbiznis/authcore/internal/observability"
	"github.com/smallbiznis/authcore/internal/ratelimit"
	"github.com/smallbiznis/authcore/internal/server"
	"github.com/smallbiznis/authcore/internal/sweeper"
	"github.com/smallbiznis/authcore/internal/tenant"
	"github.com/smallbiznis/authcore/internal/user"
	"github.com/smallbiznis/authcore/pkg/db"
)

func main() {
	fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(int64(cfg.NodeID))
		}),
		migration.Module,
		tenant.Module,
		user.Module,
		oauth.Module,
		ratelimit.Module,
		sweeper.Module,
		server.Module,
	).Run()
}
