package authcode

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrCodeNotFound = errors.New("authorization code not found")

// Store provides persistence for authorization codes.
type Store interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	FindByHash(ctx context.Context, codeHash string) (*AuthorizationCode, error)

	// Consume marks the code used if and only if it is still unused.
	// It reports false when another caller consumed it first.
	Consume(ctx context.Context, codeHash string, at time.Time) (bool, error)

	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, code *AuthorizationCode) error {
	return s.db.WithContext(ctx).Create(code).Error
}

func (s *gormStore) FindByHash(ctx context.Context, codeHash string) (*AuthorizationCode, error) {
	var code AuthorizationCode
	err := s.db.WithContext(ctx).Where("code_hash = ?", codeHash).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// Consume is the single-use gate. The conditional UPDATE lets the
// database arbitrate concurrent exchanges: exactly one caller observes
// RowsAffected == 1.
func (s *gormStore) Consume(ctx context.Context, codeHash string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&AuthorizationCode{}).
		Where("code_hash = ? AND is_used = ?", codeHash, false).
		Updates(map[string]any{
			"is_used": true,
			"used_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&AuthorizationCode{})
	return res.RowsAffected, res.Error
}
