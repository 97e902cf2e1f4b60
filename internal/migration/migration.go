// Package migration brings the database schema up to date at startup.
package migration

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/client"
	"github.com/smallbiznis/authcore/internal/oauth/token"
	"github.com/smallbiznis/authcore/internal/ratelimit"
	"github.com/smallbiznis/authcore/internal/tenant"
	"github.com/smallbiznis/authcore/internal/user"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run applies versioned SQL migrations on postgres. Other backends
// (sqlite for local development, mysql) fall back to AutoMigrate.
func Run(cfg config.Config, db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if cfg.DBType == "postgres" {
		return runVersioned(db, log)
	}

	log.Info("running auto migration", zap.String("db_type", cfg.DBType))
	return db.AutoMigrate(
		&tenant.Tenant{},
		&user.User{},
		&client.Client{},
		&authcode.AuthorizationCode{},
		&token.RefreshToken{},
		&ratelimit.Config{},
	)
}

func runVersioned(db *gorm.DB, log *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
