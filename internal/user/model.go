// Package user provides the resource-owner store and the credential
// verifier consumed by the authorization server.
package user

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// User represents a resource owner within one tenant.
type User struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	TenantID     snowflake.ID   `gorm:"column:tenant_id;not null;index:idx_users_tenant_email,unique"`
	Email        string         `gorm:"column:email;type:text;not null;index:idx_users_tenant_email,unique"`
	Username     string         `gorm:"column:username;type:text;index"`
	PasswordHash *string        `gorm:"column:password_hash;type:text"`
	Roles        pq.StringArray `gorm:"column:roles;type:text[]"`
	IsActive     bool           `gorm:"column:is_active;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string { return "users" }
