package oauth

import (
	"context"

	"go.uber.org/zap"
)

// IntrospectionResponse is the RFC 7662 response body. Every field
// except Active is omitted when the token is not active: inactive
// tokens disclose nothing, not even why they are inactive.
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	TokenID   string   `json:"jti,omitempty"`
}

var inactive = &IntrospectionResponse{Active: false}

// IntrospectRequest carries a POST /oauth/introspect body. The caller
// has already been authenticated as a registered client.
type IntrospectRequest struct {
	Token         string
	TokenTypeHint string
}

// Introspect reports whether the token is live. It never fails on a bad
// token: every invalid, expired, malformed or unknown token is simply
// {active: false}.
func (s *Service) Introspect(ctx context.Context, req IntrospectRequest) *IntrospectionResponse {
	if req.Token == "" {
		s.metrics.RecordIntrospection(ctx, false)
		return inactive
	}

	var resp *IntrospectionResponse
	switch req.TokenTypeHint {
	case "refresh_token":
		resp = s.introspectRefresh(ctx, req.Token)
		if !resp.Active {
			resp = s.introspectAccess(req.Token)
		}
	default:
		resp = s.introspectAccess(req.Token)
		if !resp.Active {
			resp = s.introspectRefresh(ctx, req.Token)
		}
	}

	s.metrics.RecordIntrospection(ctx, resp.Active)
	return resp
}

func (s *Service) introspectAccess(raw string) *IntrospectionResponse {
	claims, err := s.valid.Validate(raw)
	if err != nil {
		return inactive
	}
	resp := &IntrospectionResponse{
		Active:    true,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		TenantID:  claims.TenantID,
		Roles:     claims.Roles,
		TokenType: "Bearer",
		Issuer:    claims.Issuer,
		Audience:  claims.Audience,
		TokenID:   claims.ID,
	}
	if claims.Expiry != nil {
		resp.ExpiresAt = claims.Expiry.Time().Unix()
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time().Unix()
	}
	return resp
}

func (s *Service) introspectRefresh(ctx context.Context, raw string) *IntrospectionResponse {
	record, active, err := s.refresh.Lookup(ctx, raw)
	if err != nil {
		s.log.Warn("refresh token introspection lookup failed", zap.Error(err))
		return inactive
	}
	if !active {
		return inactive
	}
	return &IntrospectionResponse{
		Active:    true,
		Scope:     record.Scope,
		ClientID:  record.ClientID,
		Subject:   record.UserID.String(),
		TenantID:  record.TenantID.String(),
		TokenType: "refresh_token",
		ExpiresAt: record.ExpiresAt.Unix(),
		IssuedAt:  record.CreatedAt.Unix(),
	}
}
