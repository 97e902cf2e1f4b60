// Package authcode issues and consumes single-use authorization codes
// with PKCE binding.
package authcode

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CodeTTL is the lifetime of an authorization code. Codes are short
// lived by design and the window is not tenant-configurable.
const CodeTTL = 10 * time.Minute

// AuthorizationCode is the persisted record of an issued code. Only the
// SHA-256 hash of the code value is stored; the plaintext exists solely
// in the redirect back to the client.
type AuthorizationCode struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index"`
	CodeHash string       `gorm:"column:code_hash;type:text;not null;uniqueIndex"`

	ClientID    string       `gorm:"column:client_id;type:text;not null"`
	UserID      snowflake.ID `gorm:"column:user_id;not null"`
	RedirectURI string       `gorm:"column:redirect_uri;type:text;not null"`
	Scope       string       `gorm:"column:scope;type:text"`

	// State is stored opaquely for auditing; the server echoes it from
	// the request and never interprets it.
	State string `gorm:"column:state;type:text"`

	// CodeChallenge is stored in the clear so the plain method can be
	// verified; it is not a secret once the code itself is hashed.
	CodeChallenge       string `gorm:"column:code_challenge;type:text"`
	CodeChallengeMethod string `gorm:"column:code_challenge_method;type:text"`

	IsUsed bool       `gorm:"column:is_used;not null;default:false"`
	UsedAt *time.Time `gorm:"column:used_at"`

	IPAddress string `gorm:"column:ip_address;type:text"`
	UserAgent string `gorm:"column:user_agent;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

func (AuthorizationCode) TableName() string { return "oauth_authorization_codes" }

// Expired reports whether the code is past its expiry at the given
// instant. A code at exactly ExpiresAt is still valid.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
