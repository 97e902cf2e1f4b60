package authcode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/clock"
)

var (
	// ErrInvalidCode covers unknown, expired, already-used and
	// wrongly-bound codes. Callers must not tell these apart in
	// responses.
	ErrInvalidCode = errors.New("invalid authorization code")

	// ErrPKCEVerification is returned when the verifier does not match
	// the recorded challenge, or a required verifier is missing.
	ErrPKCEVerification = errors.New("pkce verification failed")
)

// IssueRequest carries the parameters bound into a new code.
type IssueRequest struct {
	TenantID            snowflake.ID
	ClientID            string
	UserID              snowflake.ID
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	IPAddress           string
	UserAgent           string
}

// ConsumeRequest carries the parameters of a token exchange.
type ConsumeRequest struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// Grant is what a successfully consumed code entitles the caller to.
type Grant struct {
	TenantID snowflake.ID
	UserID   snowflake.ID
	ClientID string
	Scope    string
}

// Service issues and consumes authorization codes.
type Service struct {
	log   *zap.Logger
	store Store
	clock clock.Clock
	node  *snowflake.Node
}

func NewService(log *zap.Logger, store Store, clk clock.Clock, node *snowflake.Node) *Service {
	return &Service{
		log:   log.Named("authcode.service"),
		store: store,
		clock: clk,
		node:  node,
	}
}

// Issue mints a fresh code bound to the request parameters and returns
// the plaintext value. The store only ever sees the hash.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	record := &AuthorizationCode{
		ID:                  s.node.Generate(),
		TenantID:            req.TenantID,
		CodeHash:            hashCode(code),
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		IPAddress:           req.IPAddress,
		UserAgent:           req.UserAgent,
		CreatedAt:           now,
		ExpiresAt:           now.Add(CodeTTL),
	}
	if err := s.store.Create(ctx, record); err != nil {
		return "", err
	}

	s.log.Debug("authorization code issued",
		zap.String("client_id", req.ClientID),
		zap.String("tenant_id", req.TenantID.String()),
	)
	return code, nil
}

// ValidateAndConsume checks the exchange parameters against the stored
// record and atomically marks the code used. The conditional update in
// the store guarantees at most one caller ever receives the grant, even
// under concurrent replay.
func (s *Service) ValidateAndConsume(ctx context.Context, req ConsumeRequest) (*Grant, error) {
	record, err := s.store.FindByHash(ctx, hashCode(req.Code))
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if record.ClientID != req.ClientID {
		s.log.Warn("code presented by wrong client", zap.String("client_id", req.ClientID))
		return nil, ErrInvalidCode
	}
	if record.RedirectURI != req.RedirectURI {
		return nil, ErrInvalidCode
	}
	if record.Expired(s.clock.Now()) {
		return nil, ErrInvalidCode
	}

	if record.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, ErrPKCEVerification
		}
		if !VerifyPKCE(record.CodeChallengeMethod, record.CodeChallenge, req.CodeVerifier) {
			return nil, ErrPKCEVerification
		}
	}

	// Consume last, after every other check has passed, so a rejected
	// exchange does not burn the code.
	consumed, err := s.store.Consume(ctx, record.CodeHash, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !consumed {
		s.log.Warn("authorization code replay detected",
			zap.String("client_id", req.ClientID),
			zap.String("tenant_id", record.TenantID.String()),
		)
		return nil, ErrInvalidCode
	}

	return &Grant{
		TenantID: record.TenantID,
		UserID:   record.UserID,
		ClientID: record.ClientID,
		Scope:    record.Scope,
	}, nil
}

// CleanupExpired removes codes past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredBefore(ctx, s.clock.Now())
}

func generateCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
