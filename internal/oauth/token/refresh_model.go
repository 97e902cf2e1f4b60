package token

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// RefreshToken is the persisted record of an issued refresh token. Only
// the SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index"`
	ClientID  string       `gorm:"column:client_id;type:text;not null"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	Scope     string       `gorm:"column:scope;type:text"`

	// Roles captured at grant time so rotation does not re-read the user.
	Roles pq.StringArray `gorm:"column:roles;type:text[]"`

	IsRevoked bool       `gorm:"column:is_revoked;not null;default:false"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`

	// ReplacedBy links a rotated token to its successor for audit.
	ReplacedBy *snowflake.ID `gorm:"column:replaced_by"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

func (RefreshToken) TableName() string { return "oauth_refresh_tokens" }

func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
