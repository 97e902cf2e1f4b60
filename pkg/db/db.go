// Package db owns the gorm connection used by every repository.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/authcore/internal/config"
	obslogger "github.com/smallbiznis/authcore/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// New opens the configured database and tunes the connection pool.
func New(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	return conn, nil
}

// NewTest opens an isolated in-memory sqlite database for tests. The
// pool is pinned to a single connection so every session sees the same
// in-memory database.
func NewTest() (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}

var Module = fx.Module("db",
	fx.Provide(New),
)
