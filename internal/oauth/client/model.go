// Package client stores the OAuth clients registered with the server.
package client

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Client is a registered OAuth2 client application.
type Client struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index"`
	ClientID string       `gorm:"column:client_id;type:text;not null;uniqueIndex"`

	// SecretHash is empty for public clients (PKCE-only).
	SecretHash string `gorm:"column:secret_hash;type:text"`

	// RedirectURIs is the exact-match allow list; no prefix or wildcard
	// matching is performed.
	RedirectURIs pq.StringArray `gorm:"column:redirect_uris;type:text[]"`

	Name      string    `gorm:"column:name;type:text"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "oauth_clients" }

// Public reports whether the client has no secret and must use PKCE.
func (c *Client) Public() bool { return c.SecretHash == "" }

// AllowsRedirectURI checks the exact-match allow list.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
