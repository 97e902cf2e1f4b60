package token

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshStore provides persistence for refresh tokens.
type RefreshStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke marks the token revoked if and only if it is not already.
	// It reports false when another caller revoked it first.
	Revoke(ctx context.Context, id snowflake.ID, at time.Time, replacedBy *snowflake.ID) (bool, error)

	RevokeAllForUser(ctx context.Context, tenantID, userID snowflake.ID, at time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormRefreshStore struct {
	db *gorm.DB
}

func NewRefreshStore(db *gorm.DB) RefreshStore {
	return &gormRefreshStore{db: db}
}

func (s *gormRefreshStore) Create(ctx context.Context, token *RefreshToken) error {
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *gormRefreshStore) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var token RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Revoke uses a conditional update so concurrent rotations of the same
// token resolve to exactly one winner.
func (s *gormRefreshStore) Revoke(ctx context.Context, id snowflake.ID, at time.Time, replacedBy *snowflake.ID) (bool, error) {
	updates := map[string]any{
		"is_revoked": true,
		"revoked_at": at,
	}
	if replacedBy != nil {
		updates["replaced_by"] = *replacedBy
	}
	res := s.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("id = ? AND is_revoked = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *gormRefreshStore) RevokeAllForUser(ctx context.Context, tenantID, userID snowflake.ID, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("tenant_id = ? AND user_id = ? AND is_revoked = ?", tenantID, userID, false).
		Updates(map[string]any{
			"is_revoked": true,
			"revoked_at": at,
		})
	return res.RowsAffected, res.Error
}

func (s *gormRefreshStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}
