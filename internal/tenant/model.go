// Package tenant resolves the tenancy scope of every authorization request.
package tenant

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is one isolated customer of the authorization server.
type Tenant struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Slug string       `gorm:"column:slug;type:text;not null;uniqueIndex"`
	Name string       `gorm:"column:name;type:text;not null"`

	// EmailDomain and Hostname allow resolution without an explicit tenant id.
	EmailDomain string `gorm:"column:email_domain;type:text;index"`
	Hostname    string `gorm:"column:hostname;type:text;index"`

	// Token lifetime overrides; nil falls back to the process-wide policy.
	AccessTokenTTLMinutes *int `gorm:"column:access_token_ttl_minutes"`
	RefreshTokenTTLDays   *int `gorm:"column:refresh_token_ttl_days"`

	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Tenant) TableName() string { return "tenants" }
