package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/clock"
)

// ErrInvalidRefreshToken covers unknown, expired, revoked and
// wrongly-bound refresh tokens. Reuse of a rotated token lands here
// too; callers must not tell the cases apart in responses.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// RefreshParams describes one refresh token to mint.
type RefreshParams struct {
	TenantID snowflake.ID
	UserID   snowflake.ID
	ClientID string
	Scope    string
	Roles    []string
	TTL      time.Duration
}

// RefreshService issues opaque refresh tokens and rotates them on use.
type RefreshService struct {
	log   *zap.Logger
	store RefreshStore
	clock clock.Clock
	node  *snowflake.Node
}

func NewRefreshService(log *zap.Logger, store RefreshStore, clk clock.Clock, node *snowflake.Node) *RefreshService {
	return &RefreshService{
		log:   log.Named("token.refresh"),
		store: store,
		clock: clk,
		node:  node,
	}
}

// Issue mints a fresh refresh token and returns the plaintext value.
// The store only ever sees the hash.
func (s *RefreshService) Issue(ctx context.Context, params RefreshParams) (string, *RefreshToken, error) {
	value, err := generateOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	now := s.clock.Now()
	record := &RefreshToken{
		ID:        s.node.Generate(),
		TenantID:  params.TenantID,
		UserID:    params.UserID,
		ClientID:  params.ClientID,
		TokenHash: hashToken(value),
		Scope:     params.Scope,
		Roles:     params.Roles,
		CreatedAt: now,
		ExpiresAt: now.Add(params.TTL),
	}
	if err := s.store.Create(ctx, record); err != nil {
		return "", nil, err
	}
	return value, record, nil
}

// Rotate consumes the presented token and mints its successor. The old
// token is revoked before the new one is created, so a crash between
// the two steps costs the client a re-login, never a duplicate live
// token.
func (s *RefreshService) Rotate(ctx context.Context, raw, clientID string, ttl time.Duration) (string, *RefreshToken, error) {
	record, err := s.store.FindByHash(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return "", nil, ErrInvalidRefreshToken
		}
		return "", nil, err
	}

	if record.ClientID != clientID {
		return "", nil, ErrInvalidRefreshToken
	}
	now := s.clock.Now()
	if record.IsRevoked || record.Expired(now) {
		if record.IsRevoked {
			s.log.Warn("refresh token reuse detected",
				zap.String("client_id", clientID),
				zap.String("tenant_id", record.TenantID.String()),
			)
		}
		return "", nil, ErrInvalidRefreshToken
	}

	successorID := s.node.Generate()
	revoked, err := s.store.Revoke(ctx, record.ID, now, &successorID)
	if err != nil {
		return "", nil, err
	}
	if !revoked {
		// A concurrent rotation won the conditional update.
		return "", nil, ErrInvalidRefreshToken
	}

	value, err := generateOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	successor := &RefreshToken{
		ID:        successorID,
		TenantID:  record.TenantID,
		UserID:    record.UserID,
		ClientID:  record.ClientID,
		TokenHash: hashToken(value),
		Scope:     record.Scope,
		Roles:     record.Roles,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.Create(ctx, successor); err != nil {
		return "", nil, err
	}
	return value, successor, nil
}

// Lookup resolves a presented refresh token for introspection. The
// second return is the active flag: the record exists, is not revoked
// and is not expired. An inactive token returns (nil, false).
func (s *RefreshService) Lookup(ctx context.Context, raw string) (*RefreshToken, bool, error) {
	record, err := s.store.FindByHash(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if record.IsRevoked || record.Expired(s.clock.Now()) {
		return nil, false, nil
	}
	return record, true, nil
}

// RevokeAllForUser invalidates every live refresh token of a user, for
// password resets and administrative lockouts.
func (s *RefreshService) RevokeAllForUser(ctx context.Context, tenantID, userID snowflake.ID) (int64, error) {
	return s.store.RevokeAllForUser(ctx, tenantID, userID, s.clock.Now())
}

// CleanupExpired removes refresh tokens past their expiry.
func (s *RefreshService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredBefore(ctx, s.clock.Now())
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
