package oauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/token"
	"github.com/smallbiznis/authcore/internal/user"
	"github.com/smallbiznis/authcore/pkg/tenantctx"
)

// Grant type values accepted at POST /oauth/token.
const (
	GrantPassword          = "password"
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// PasswordGrantRequest carries a resource owner password credentials
// exchange.
type PasswordGrantRequest struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scope        string

	// TenantID and Host are resolution hints; the username's email
	// domain is derived internally.
	TenantID string
	Host     string
}

// PasswordGrant authenticates the resource owner directly and mints the
// token pair.
func (s *Service) PasswordGrant(ctx context.Context, req PasswordGrantRequest) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, s.grantFailed(ctx, GrantPassword, ErrInvalidRequest("username and password are required"))
	}

	c, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantPassword, err)
	}

	t, err := s.resolveTenant(ctx, c, req.TenantID, req.Username, req.Host)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantPassword, err)
	}
	ctx = tenantctx.WithTenantID(ctx, int64(t.ID))

	userID, err := s.verifier.Verify(ctx, t.ID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			return nil, s.grantFailed(ctx, GrantPassword, ErrAccessDenied())
		}
		return nil, s.grantFailed(ctx, GrantPassword, err)
	}

	roles, err := s.roles.RolesFor(ctx, userID)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantPassword, err)
	}

	resp, err := s.issueTokens(ctx, t, token.RefreshParams{
		TenantID: t.ID,
		UserID:   userID,
		ClientID: c.ClientID,
		Scope:    req.Scope,
		Roles:    roles,
	})
	if err != nil {
		return nil, s.grantFailed(ctx, GrantPassword, err)
	}

	s.metrics.RecordTokenIssued(ctx, GrantPassword)
	s.log.Info("password grant succeeded",
		zap.String("client_id", c.ClientID),
		zap.String("tenant_id", t.ID.String()),
	)
	return resp, nil
}

// CodeGrantRequest carries an authorization code exchange.
type CodeGrantRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// ExchangeCode consumes an authorization code and mints the token pair.
// The code is consumed before minting, so a minting failure leaves it
// dead rather than replayable.
func (s *Service) ExchangeCode(ctx context.Context, req CodeGrantRequest) (*TokenResponse, error) {
	if req.Code == "" || req.RedirectURI == "" {
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, ErrInvalidRequest("code and redirect_uri are required"))
	}

	c, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, err)
	}
	if c.Public() && req.CodeVerifier == "" {
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, ErrInvalidRequest("code_verifier is required for public clients"))
	}

	grant, err := s.codes.ValidateAndConsume(ctx, authcode.ConsumeRequest{
		Code:         req.Code,
		ClientID:     c.ClientID,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		if errors.Is(err, authcode.ErrInvalidCode) || errors.Is(err, authcode.ErrPKCEVerification) {
			return nil, s.grantFailed(ctx, GrantAuthorizationCode, ErrInvalidGrant())
		}
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, err)
	}

	t, err := s.tenants.FindByID(ctx, grant.TenantID)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, err)
	}
	ctx = tenantctx.WithTenantID(ctx, int64(t.ID))

	roles, err := s.roles.RolesFor(ctx, grant.UserID)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, err)
	}

	resp, err := s.issueTokens(ctx, t, token.RefreshParams{
		TenantID: grant.TenantID,
		UserID:   grant.UserID,
		ClientID: grant.ClientID,
		Scope:    grant.Scope,
		Roles:    roles,
	})
	if err != nil {
		return nil, s.grantFailed(ctx, GrantAuthorizationCode, err)
	}

	s.metrics.RecordTokenIssued(ctx, GrantAuthorizationCode)
	return resp, nil
}

// RefreshGrantRequest carries a refresh token rotation.
type RefreshGrantRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// RefreshGrant rotates the presented refresh token and mints a fresh
// access token.
func (s *Service) RefreshGrant(ctx context.Context, req RefreshGrantRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, s.grantFailed(ctx, GrantRefreshToken, ErrInvalidRequest("refresh_token is required"))
	}

	c, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantRefreshToken, err)
	}

	// The tenant's TTL policy is needed before rotation can mint the
	// successor, so resolve the record first. Rotation re-checks the
	// record atomically.
	record, active, err := s.refresh.Lookup(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantRefreshToken, err)
	}
	if !active || record.ClientID != c.ClientID {
		return nil, s.grantFailed(ctx, GrantRefreshToken, ErrInvalidGrant())
	}

	t, err := s.tenants.FindByID(ctx, record.TenantID)
	if err != nil {
		return nil, s.grantFailed(ctx, GrantRefreshToken, err)
	}
	ctx = tenantctx.WithTenantID(ctx, int64(t.ID))

	newRefresh, successor, err := s.refresh.Rotate(ctx, req.RefreshToken, c.ClientID, s.refreshTTL(t))
	if err != nil {
		if errors.Is(err, token.ErrInvalidRefreshToken) {
			return nil, s.grantFailed(ctx, GrantRefreshToken, ErrInvalidGrant())
		}
		return nil, s.grantFailed(ctx, GrantRefreshToken, err)
	}

	accessTTL := s.accessTTL(t)
	raw, _, err := s.issuer.Issue(token.IssueParams{
		Subject:  successor.UserID.String(),
		TenantID: successor.TenantID.String(),
		ClientID: successor.ClientID,
		Roles:    successor.Roles,
		Scope:    successor.Scope,
		TTL:      accessTTL,
	})
	if err != nil {
		return nil, s.grantFailed(ctx, GrantRefreshToken, err)
	}

	s.metrics.RecordTokenIssued(ctx, GrantRefreshToken)
	return &TokenResponse{
		AccessToken:  raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		RefreshToken: newRefresh,
		Scope:        successor.Scope,
	}, nil
}

func (s *Service) grantFailed(ctx context.Context, grantType string, err error) error {
	oautherr := AsError(err)
	s.metrics.RecordGrantFailure(ctx, grantType, oautherr.Code)
	if oautherr.Code == "server_error" {
		s.log.Error("grant failed", zap.String("grant_type", grantType), zap.Error(err))
	} else {
		s.log.Debug("grant rejected",
			zap.String("grant_type", grantType),
			zap.String("error_code", oautherr.Code),
		)
	}
	return oautherr
}
