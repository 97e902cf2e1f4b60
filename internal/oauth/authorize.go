package oauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/client"
	"github.com/smallbiznis/authcore/internal/user"
	"github.com/smallbiznis/authcore/pkg/tenantctx"
)

// RedirectError is an authorize failure that is safe to deliver to the
// client's registered redirect URI. Failures before the redirect URI
// has been validated never become RedirectErrors.
type RedirectError struct {
	Code        string
	Description string
}

func (e *RedirectError) Error() string { return e.Code + ": " + e.Description }

// AuthorizeRequest carries a GET /oauth/authorize request. The resource
// owner's credentials arrive out of band from the OAuth parameters
// (basic auth or form fields), since this core has no session layer.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	Username string
	Password string
	TenantID string
	Host     string

	IPAddress string
	UserAgent string
}

// AuthorizeResult is a successful authorization: the code to deliver to
// the validated redirect URI.
type AuthorizeResult struct {
	Code        string
	RedirectURI string
}

// Authorize runs the authorization transaction: validate the client and
// redirect URI, authenticate the resource owner, issue a code. Errors
// after redirect validation come back as *RedirectError so the handler
// can deliver them per protocol, state included.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	c, err := s.clients.FindByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			return nil, ErrInvalidClient()
		}
		return nil, ErrServerError()
	}

	// An unregistered redirect URI must never be redirected to.
	if req.RedirectURI == "" || !c.AllowsRedirectURI(req.RedirectURI) {
		return nil, ErrInvalidRequest("redirect_uri is missing or not registered")
	}

	if req.ResponseType != "code" {
		return nil, &RedirectError{
			Code:        "unsupported_response_type",
			Description: "only response_type=code is supported",
		}
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		// RFC 7636 defaults a bare challenge to the plain method.
		method = authcode.MethodPlain
	}
	if req.CodeChallenge != "" && method != authcode.MethodS256 && method != authcode.MethodPlain {
		return nil, &RedirectError{
			Code:        "invalid_request",
			Description: "unsupported code_challenge_method",
		}
	}
	if c.Public() && req.CodeChallenge == "" {
		return nil, &RedirectError{
			Code:        "invalid_request",
			Description: "public clients must send a code_challenge",
		}
	}

	if req.Username == "" || req.Password == "" {
		return nil, &RedirectError{
			Code:        "access_denied",
			Description: "resource owner authentication required",
		}
	}

	t, err := s.resolveTenant(ctx, c, req.TenantID, req.Username, req.Host)
	if err != nil {
		return nil, &RedirectError{Code: "access_denied", Description: "authentication failed"}
	}
	ctx = tenantctx.WithTenantID(ctx, int64(t.ID))

	userID, err := s.verifier.Verify(ctx, t.ID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			return nil, &RedirectError{Code: "access_denied", Description: "authentication failed"}
		}
		s.log.Error("authorize verification failed", zap.Error(err))
		return nil, &RedirectError{Code: "server_error", Description: "authorization failed"}
	}

	code, err := s.codes.Issue(ctx, authcode.IssueRequest{
		TenantID:            t.ID,
		ClientID:            c.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		IPAddress:           req.IPAddress,
		UserAgent:           req.UserAgent,
	})
	if err != nil {
		s.log.Error("code issuance failed", zap.Error(err))
		return nil, &RedirectError{Code: "server_error", Description: "authorization failed"}
	}

	return &AuthorizeResult{Code: code, RedirectURI: req.RedirectURI}, nil
}
