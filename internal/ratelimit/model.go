// Package ratelimit applies per-caller fixed-window limits to the
// authorization endpoints.
package ratelimit

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Config is the persisted limit for one endpoint. A missing or disabled
// row means the endpoint is not limited.
type Config struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	Endpoint string       `gorm:"column:endpoint;type:text;not null;uniqueIndex"`

	MaxRequests   int  `gorm:"column:max_requests;not null"`
	WindowSeconds int  `gorm:"column:window_seconds;not null"`
	Enabled       bool `gorm:"column:enabled;not null"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Config) TableName() string { return "rate_limit_configs" }

func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
