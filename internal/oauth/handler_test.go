package oauth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/client"
	"github.com/smallbiznis/authcore/internal/oauth/token"
	"github.com/smallbiznis/authcore/internal/ratelimit"
	"github.com/smallbiznis/authcore/internal/tenant"
	"github.com/smallbiznis/authcore/internal/user"
	"github.com/smallbiznis/authcore/pkg/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testPassword    = "correct horse battery staple"
	testRedirectURI = "https://app.example.com/callback"
)

type fixture struct {
	engine    *gin.Engine
	svc       *Service
	validator *token.Validator
	clk       *clock.FakeClock
	limiter   *ratelimit.Limiter
}

func newFixture(t *testing.T, limitConfigs ...ratelimit.Config) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&tenant.Tenant{},
		&user.User{},
		&client.Client{},
		&authcode.AuthorizationCode{},
		&token.RefreshToken{},
		&ratelimit.Config{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	// Seed one tenant, one resource owner and two clients.
	seededTenant := &tenant.Tenant{
		ID:          snowflake.ID(10),
		Slug:        "acme",
		Name:        "Acme",
		EmailDomain: "example.com",
		IsActive:    true,
	}
	if err := conn.Create(seededTenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	hash, err := user.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := conn.Create(&user.User{
		ID:           snowflake.ID(42),
		TenantID:     seededTenant.ID,
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: &hash,
		Roles:        []string{"admin"},
		IsActive:     true,
	}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	for _, c := range []*client.Client{
		{
			ID:           snowflake.ID(100),
			TenantID:     seededTenant.ID,
			ClientID:     "web-app",
			SecretHash:   client.HashSecret("s3cret"),
			RedirectURIs: []string{testRedirectURI},
			IsActive:     true,
		},
		{
			ID:           snowflake.ID(101),
			TenantID:     seededTenant.ID,
			ClientID:     "native-app",
			RedirectURIs: []string{testRedirectURI},
			IsActive:     true,
		},
	} {
		if err := conn.Create(c).Error; err != nil {
			t.Fatalf("seed client: %v", err)
		}
	}

	for i := range limitConfigs {
		limitConfigs[i].ID = snowflake.ID(500 + i)
		if err := conn.Create(&limitConfigs[i]).Error; err != nil {
			t.Fatalf("seed rate limit: %v", err)
		}
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := token.NewSigningKey(priv)
	if err != nil {
		t.Fatalf("signing key: %v", err)
	}

	cfg := config.Config{
		TokenIssuer:   "https://auth.test",
		TokenAudience: "test-api",
	}
	issuer, err := token.NewIssuer(cfg, key, clk)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	validator := token.NewValidator(cfg, key, clk)

	userSvc := user.NewService(log, user.NewRepository(conn))
	svc := NewService(ServiceParams{
		Log:      log,
		Policy:   config.NewStaticTokenPolicyHolder(config.DefaultTokenPolicy()),
		Resolver: tenant.NewResolver(tenant.NewRepository(conn), log),
		Tenants:  tenant.NewRepository(conn),
		Verifier: userSvc,
		Roles:    userSvc,
		Clients:  client.NewStore(conn),
		Codes:    authcode.NewService(log, authcode.NewStore(conn), clk, node),
		Issuer:   issuer,
		Valid:    validator,
		Refresh:  token.NewRefreshService(log, token.NewRefreshStore(conn), clk, node),
		Key:      key,
	})

	limiter := ratelimit.NewLimiter(log, ratelimit.NewReader(log, conn), ratelimit.NewMemoryCounter(clk))

	engine := gin.New()
	NewHandler(svc).Register(engine, ratelimit.Middleware(limiter, nil))

	return &fixture{
		engine:    engine,
		svc:       svc,
		validator: validator,
		clk:       clk,
		limiter:   limiter,
	}
}

func (f *fixture) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) TokenResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error, body.Description
}

func passwordForm() url.Values {
	return url.Values{
		"grant_type":    {"password"},
		"client_id":     {"web-app"},
		"client_secret": {"s3cret"},
		"username":      {"alice@example.com"},
		"password":      {testPassword},
		"scope":         {"openid profile"},
	}
}

func TestPasswordGrantForm(t *testing.T) {
	f := newFixture(t)

	resp := decodeToken(t, f.postForm(t, "/oauth/token", passwordForm()))
	if resp.TokenType != "Bearer" {
		t.Fatalf("token_type = %q", resp.TokenType)
	}
	if resp.ExpiresIn != 15*60 {
		t.Fatalf("expires_in = %d", resp.ExpiresIn)
	}
	if resp.RefreshToken == "" {
		t.Fatal("missing refresh token")
	}

	claims, err := f.validator.Validate(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.Subject != "42" || claims.TenantID != "10" {
		t.Fatalf("claims = %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("roles = %v", claims.Roles)
	}
}

func TestPasswordGrantJSON(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(map[string]string{
		"grant_type":    "password",
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"username":      "alice@example.com",
		"password":      testPassword,
	})
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	resp := decodeToken(t, rec)
	if resp.AccessToken == "" {
		t.Fatal("missing access token")
	}
}

func TestPasswordGrantRejections(t *testing.T) {
	f := newFixture(t)

	t.Run("wrong password", func(t *testing.T) {
		form := passwordForm()
		form.Set("password", "nope")
		rec := f.postForm(t, "/oauth/token", form)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d", rec.Code)
		}
		if code, _ := decodeError(t, rec); code != "access_denied" {
			t.Fatalf("error = %q", code)
		}
	})

	t.Run("wrong client secret", func(t *testing.T) {
		form := passwordForm()
		form.Set("client_secret", "nope")
		rec := f.postForm(t, "/oauth/token", form)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if code, _ := decodeError(t, rec); code != "invalid_client" {
			t.Fatalf("error = %q", code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatal("missing WWW-Authenticate")
		}
	})

	t.Run("unknown grant type", func(t *testing.T) {
		form := passwordForm()
		form.Set("grant_type", "implicit")
		rec := f.postForm(t, "/oauth/token", form)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if code, _ := decodeError(t, rec); code != "unsupported_grant_type" {
			t.Fatalf("error = %q", code)
		}
	})
}

// Challenge and verifier from RFC 7636 appendix B.
const (
	pkceVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	pkceChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func (f *fixture) authorize(t *testing.T, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	req.SetBasicAuth("alice@example.com", testPassword)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func authorizeParams() url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {"native-app"},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"openid"},
		"state":                 {"xyz-123"},
		"code_challenge":        {pkceChallenge},
		"code_challenge_method": {"S256"},
	}
}

func redirectQuery(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if got := loc.Scheme + "://" + loc.Host + loc.Path; got != testRedirectURI {
		t.Fatalf("redirect target = %q", got)
	}
	return loc.Query()
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := newFixture(t)

	q := redirectQuery(t, f.authorize(t, authorizeParams()))
	if q.Get("state") != "xyz-123" {
		t.Fatalf("state = %q", q.Get("state"))
	}
	code := q.Get("code")
	if code == "" {
		t.Fatal("missing code in redirect")
	}

	exchange := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"native-app"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {pkceVerifier},
	}
	resp := decodeToken(t, f.postForm(t, "/oauth/token", exchange))
	claims, err := f.validator.Validate(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Scope != "openid" || claims.ClientID != "native-app" {
		t.Fatalf("claims = %+v", claims)
	}

	// Replaying the consumed code must fail.
	rec := f.postForm(t, "/oauth/token", exchange)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("replay status = %d", rec.Code)
	}
	if errCode, _ := decodeError(t, rec); errCode != "invalid_grant" {
		t.Fatalf("replay error = %q", errCode)
	}
}

func TestAuthorizeWrongVerifier(t *testing.T) {
	f := newFixture(t)

	q := redirectQuery(t, f.authorize(t, authorizeParams()))

	exchange := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"native-app"},
		"code":          {q.Get("code")},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {pkceVerifier[:len(pkceVerifier)-1] + "x"},
	}
	rec := f.postForm(t, "/oauth/token", exchange)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if errCode, _ := decodeError(t, rec); errCode != "invalid_grant" {
		t.Fatalf("error = %q", errCode)
	}
}

func TestAuthorizeUnregisteredRedirect(t *testing.T) {
	f := newFixture(t)

	params := authorizeParams()
	params.Set("redirect_uri", "https://evil.example.com/cb")
	rec := f.authorize(t, params)

	// No redirect to an unregistered URI, ever.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if errCode, _ := decodeError(t, rec); errCode != "invalid_request" {
		t.Fatalf("error = %q", errCode)
	}
}

func TestAuthorizeDeniedRedirectsWithState(t *testing.T) {
	f := newFixture(t)

	params := authorizeParams()
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	req.SetBasicAuth("alice@example.com", "wrong password")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	q := redirectQuery(t, rec)
	if q.Get("error") != "access_denied" {
		t.Fatalf("error = %q", q.Get("error"))
	}
	if q.Get("state") != "xyz-123" {
		t.Fatalf("state = %q, must be echoed on error", q.Get("state"))
	}
	if q.Get("code") != "" {
		t.Fatal("code must not be present on denial")
	}
}

func TestAuthorizePublicClientRequiresPKCE(t *testing.T) {
	f := newFixture(t)

	params := authorizeParams()
	params.Del("code_challenge")
	params.Del("code_challenge_method")
	q := redirectQuery(t, f.authorize(t, params))
	if q.Get("error") != "invalid_request" {
		t.Fatalf("error = %q", q.Get("error"))
	}
}

func TestRefreshGrantRotation(t *testing.T) {
	f := newFixture(t)

	first := decodeToken(t, f.postForm(t, "/oauth/token", passwordForm()))

	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"web-app"},
		"client_secret": {"s3cret"},
		"refresh_token": {first.RefreshToken},
	}
	second := decodeToken(t, f.postForm(t, "/oauth/token", refreshForm))
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := f.validator.Validate(second.AccessToken); err != nil {
		t.Fatalf("validate rotated access token: %v", err)
	}

	// The consumed refresh token is dead.
	rec := f.postForm(t, "/oauth/token", refreshForm)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reuse status = %d", rec.Code)
	}
	if errCode, _ := decodeError(t, rec); errCode != "invalid_grant" {
		t.Fatalf("reuse error = %q", errCode)
	}
}

func TestIntrospect(t *testing.T) {
	f := newFixture(t)

	issued := decodeToken(t, f.postForm(t, "/oauth/token", passwordForm()))

	introspect := func(t *testing.T, form url.Values, authed bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/oauth/introspect", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if authed {
			req.SetBasicAuth("web-app", "s3cret")
		}
		rec := httptest.NewRecorder()
		f.engine.ServeHTTP(rec, req)
		return rec
	}

	t.Run("active access token", func(t *testing.T) {
		rec := introspect(t, url.Values{"token": {issued.AccessToken}}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp IntrospectionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !resp.Active || resp.Subject != "42" || resp.TokenType != "Bearer" {
			t.Fatalf("resp = %+v", resp)
		}
	})

	t.Run("active refresh token", func(t *testing.T) {
		rec := introspect(t, url.Values{
			"token":           {issued.RefreshToken},
			"token_type_hint": {"refresh_token"},
		}, true)
		var resp IntrospectionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !resp.Active || resp.TokenType != "refresh_token" {
			t.Fatalf("resp = %+v", resp)
		}
	})

	t.Run("invalid token discloses nothing", func(t *testing.T) {
		rec := introspect(t, url.Values{"token": {"garbage"}}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp) != 1 || resp["active"] != false {
			t.Fatalf("inactive body must carry only the active flag, got %v", resp)
		}
	})

	t.Run("expired token is just inactive", func(t *testing.T) {
		f.clk.Advance(16 * time.Minute)
		rec := introspect(t, url.Values{"token": {issued.AccessToken}}, true)
		var resp IntrospectionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Active {
			t.Fatal("expired token reported active")
		}
	})

	t.Run("requires client authentication", func(t *testing.T) {
		rec := introspect(t, url.Values{"token": {issued.AccessToken}}, false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestJWKSEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			Alg string `json:"alg"`
			N   string `json:"n"`
			D   string `json:"d"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("keys = %d", len(doc.Keys))
	}
	k := doc.Keys[0]
	if k.Kty != "RSA" || k.Use != "sig" || k.Alg != "RS256" || k.Kid == "" || k.N == "" {
		t.Fatalf("jwk = %+v", k)
	}
	if k.D != "" {
		t.Fatal("private exponent leaked into JWKS")
	}
}

func TestTokenEndpointRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.Config{
		Endpoint:      "oauth/token",
		MaxRequests:   2,
		WindowSeconds: 60,
		Enabled:       true,
	})

	form := passwordForm()
	for i := 0; i < 2; i++ {
		if rec := f.postForm(t, "/oauth/token", form); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	rec := f.postForm(t, "/oauth/token", form)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	errCode, desc := decodeError(t, rec)
	if errCode != "too_many_requests" || desc == "" {
		t.Fatalf("error = %q desc = %q", errCode, desc)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}
