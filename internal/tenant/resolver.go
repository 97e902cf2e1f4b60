package tenant

import (
	"context"
	"net"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// ResolveRequest carries the hints available to identify a tenant, in
// decreasing order of authority.
type ResolveRequest struct {
	ExplicitID  string
	EmailDomain string
	Host        string
}

// Resolver maps request hints to a tenant.
type Resolver struct {
	repo Repository
	log  *zap.Logger
}

func NewResolver(repo Repository, log *zap.Logger) *Resolver {
	return &Resolver{repo: repo, log: log.Named("tenant.resolver")}
}

// Resolve tries the explicit tenant id first, then the email domain, then
// the request host. The first hint that matches wins; a hint that is present
// but matches nothing fails the whole resolution rather than falling through.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Tenant, error) {
	if explicit := strings.TrimSpace(req.ExplicitID); explicit != "" {
		if id, err := snowflake.ParseString(explicit); err == nil {
			return r.repo.FindByID(ctx, id)
		}
		return r.repo.FindBySlug(ctx, explicit)
	}

	if domain := strings.TrimSpace(req.EmailDomain); domain != "" {
		return r.repo.FindByEmailDomain(ctx, domain)
	}

	if host := normalizeHost(req.Host); host != "" {
		return r.repo.FindByHostname(ctx, host)
	}

	r.log.Warn("tenant resolution received no usable hints")
	return nil, ErrTenantNotFound
}

// EmailDomain extracts the domain part of an address, or "" when the value
// is not an email.
func EmailDomain(usernameOrEmail string) string {
	at := strings.LastIndex(usernameOrEmail, "@")
	if at < 0 || at == len(usernameOrEmail)-1 {
		return ""
	}
	return strings.ToLower(usernameOrEmail[at+1:])
}

func normalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}
	if stripped, _, err := net.SplitHostPort(host); err == nil {
		host = stripped
	}
	return host
}
