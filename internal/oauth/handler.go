package oauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authcore/internal/ratelimit"
)

// Handler exposes the protocol endpoints over gin.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the protocol routes. The rate limit middleware guards
// the endpoints the governor is configured for; unlimited endpoints
// pass through it untouched.
func (h *Handler) Register(r *gin.Engine, limit gin.HandlerFunc) {
	r.POST("/oauth/token", limit, h.Token)
	r.GET("/oauth/authorize", limit, h.Authorize)
	r.POST("/oauth/introspect", limit, h.Introspect)
	r.GET("/.well-known/jwks.json", h.JWKS)
}

// tokenRequest is the union of the three grant bodies. The password
// grant may arrive as JSON; the other grants are form encoded.
type tokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	ClientID     string `form:"client_id" json:"client_id"`
	ClientSecret string `form:"client_secret" json:"client_secret"`

	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	Scope    string `form:"scope" json:"scope"`
	TenantID string `form:"tenant_id" json:"tenant_id"`

	Code         string `form:"code" json:"code"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`

	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Token handles POST /oauth/token.
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, ErrInvalidRequest("malformed request body"))
			return
		}
	} else if err := c.ShouldBind(&req); err != nil {
		writeError(c, ErrInvalidRequest("malformed request body"))
		return
	}

	// HTTP basic credentials take precedence over body fields.
	if id, secret, ok := c.Request.BasicAuth(); ok {
		req.ClientID, req.ClientSecret = id, secret
	}

	var resp *TokenResponse
	var err error
	switch req.GrantType {
	case GrantPassword:
		resp, err = h.svc.PasswordGrant(c.Request.Context(), PasswordGrantRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Username:     req.Username,
			Password:     req.Password,
			Scope:        req.Scope,
			TenantID:     req.TenantID,
			Host:         c.Request.Host,
		})
	case GrantAuthorizationCode:
		resp, err = h.svc.ExchangeCode(c.Request.Context(), CodeGrantRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
		})
	case GrantRefreshToken:
		resp, err = h.svc.RefreshGrant(c.Request.Context(), RefreshGrantRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RefreshToken: req.RefreshToken,
		})
	case "":
		err = ErrInvalidRequest("grant_type is required")
	default:
		err = ErrUnsupportedGrantType(req.GrantType)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

// Authorize handles GET /oauth/authorize. The resource owner's
// credentials arrive via HTTP basic auth, or username/password query
// parameters for non-browser callers.
func (h *Handler) Authorize(c *gin.Context) {
	req := AuthorizeRequest{
		ResponseType:        c.Query("response_type"),
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
		Username:            c.Query("username"),
		Password:            c.Query("password"),
		TenantID:            c.Query("tenant_id"),
		Host:                c.Request.Host,
		IPAddress:           ratelimit.ClientIP(c.Request),
		UserAgent:           c.Request.UserAgent(),
	}
	if username, password, ok := c.Request.BasicAuth(); ok {
		req.Username, req.Password = username, password
	}

	result, err := h.svc.Authorize(c.Request.Context(), req)
	if err != nil {
		var redirect *RedirectError
		if errors.As(err, &redirect) {
			c.Redirect(http.StatusFound, errorRedirect(req.RedirectURI, redirect, req.State))
			return
		}
		writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, codeRedirect(result.RedirectURI, result.Code, req.State))
}

// introspectRequest is the RFC 7662 body, form or JSON.
type introspectRequest struct {
	Token         string `form:"token" json:"token"`
	TokenTypeHint string `form:"token_type_hint" json:"token_type_hint"`
	ClientID      string `form:"client_id" json:"client_id"`
	ClientSecret  string `form:"client_secret" json:"client_secret"`
}

// Introspect handles POST /oauth/introspect. The endpoint is not
// anonymous: callers authenticate as a registered client.
func (h *Handler) Introspect(c *gin.Context) {
	var req introspectRequest
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, ErrInvalidRequest("malformed request body"))
			return
		}
	} else if err := c.ShouldBind(&req); err != nil {
		writeError(c, ErrInvalidRequest("malformed request body"))
		return
	}
	if id, secret, ok := c.Request.BasicAuth(); ok {
		req.ClientID, req.ClientSecret = id, secret
	}

	if _, err := h.svc.authenticateClient(c.Request.Context(), req.ClientID, req.ClientSecret); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.svc.Introspect(c.Request.Context(), IntrospectRequest{
		Token:         req.Token,
		TokenTypeHint: req.TokenTypeHint,
	}))
}

// JWKS handles GET /.well-known/jwks.json. The document is public and
// cacheable.
func (h *Handler) JWKS(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, h.svc.JWKS())
}

func writeError(c *gin.Context, err error) {
	oautherr := AsError(err)
	if oautherr.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Basic realm="oauth"`)
	}
	c.JSON(oautherr.Status, gin.H{
		"error":             oautherr.Code,
		"error_description": oautherr.Description,
	})
}

func codeRedirect(redirectURI, code, state string) string {
	return appendQuery(redirectURI, url.Values{
		"code":  {code},
		"state": {state},
	})
}

func errorRedirect(redirectURI string, err *RedirectError, state string) string {
	return appendQuery(redirectURI, url.Values{
		"error":             {err.Code},
		"error_description": {err.Description},
		"state":             {state},
	})
}

// appendQuery merges params into the registered URI, preserving any
// query it already carries. A present state is echoed back unchanged
// on both success and error; an absent state stays absent.
func appendQuery(redirectURI string, params url.Values) string {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		// The URI was validated against the registration already.
		return redirectURI
	}
	q := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			if key == "state" && v == "" {
				continue
			}
			q.Set(key, v)
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
