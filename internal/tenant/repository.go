package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

var ErrTenantNotFound = errors.New("tenant not found")

// Repository provides persistence for tenants.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	FindByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	FindBySlug(ctx context.Context, slugValue string) (*Tenant, error)
	FindByEmailDomain(ctx context.Context, domain string) (*Tenant, error)
	FindByHostname(ctx context.Context, hostname string) (*Tenant, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, tenant *Tenant) error {
	tenant.Slug = slug.Make(tenant.Slug)
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*Tenant, error) {
	var t Tenant
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&t).Error
	return checkFound(&t, err)
}

func (r *repo) FindBySlug(ctx context.Context, slugValue string) (*Tenant, error) {
	var t Tenant
	err := r.db.WithContext(ctx).Where("slug = ? AND is_active = ?", slug.Make(slugValue), true).First(&t).Error
	return checkFound(&t, err)
}

func (r *repo) FindByEmailDomain(ctx context.Context, domain string) (*Tenant, error) {
	var t Tenant
	err := r.db.WithContext(ctx).Where("email_domain = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(domain)), true).First(&t).Error
	return checkFound(&t, err)
}

func (r *repo) FindByHostname(ctx context.Context, hostname string) (*Tenant, error) {
	var t Tenant
	err := r.db.WithContext(ctx).Where("hostname = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(hostname)), true).First(&t).Error
	return checkFound(&t, err)
}

func checkFound(t *Tenant, err error) (*Tenant, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
