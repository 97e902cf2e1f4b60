package user

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/authcore/pkg/db"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Repository provides persistence for users.
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByLogin(ctx context.Context, tenantID snowflake.ID, usernameOrEmail string) (*User, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, user *User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) FindByLogin(ctx context.Context, tenantID snowflake.ID, usernameOrEmail string) (*User, error) {
	login := strings.ToLower(strings.TrimSpace(usernameOrEmail))
	var u User
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND (email = ? OR username = ?)", tenantID, login, login).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
