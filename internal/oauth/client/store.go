package client

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/smallbiznis/authcore/pkg/db"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrClientExists   = errors.New("client already registered")
)

// Store provides persistence for registered clients.
type Store interface {
	Create(ctx context.Context, c *Client) error
	FindByClientID(ctx context.Context, clientID string) (*Client, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, c *Client) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ErrClientExists
		}
		return err
	}
	return nil
}

func (s *gormStore) FindByClientID(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	err := s.db.WithContext(ctx).Where("client_id = ? AND is_active = ?", strings.TrimSpace(clientID), true).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// HashSecret derives the stored form of a client secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret compares a presented secret against the stored hash in
// constant time.
func VerifySecret(presented, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashSecret(presented)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
