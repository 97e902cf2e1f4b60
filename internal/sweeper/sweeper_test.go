package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/internal/config"
	"github.com/smallbiznis/authcore/internal/oauth/authcode"
	"github.com/smallbiznis/authcore/internal/oauth/token"
	"github.com/smallbiznis/authcore/pkg/db"
)

func TestSweepRemovesExpiredState(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&authcode.AuthorizationCode{}, &token.RefreshToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	codes := authcode.NewService(log, authcode.NewStore(conn), clk, node)
	refresh := token.NewRefreshService(log, token.NewRefreshStore(conn), clk, node)

	ctx := context.Background()
	if _, err := codes.Issue(ctx, authcode.IssueRequest{
		TenantID:    snowflake.ID(10),
		ClientID:    "web-app",
		UserID:      snowflake.ID(42),
		RedirectURI: "https://app.example.com/callback",
	}); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if _, _, err := refresh.Issue(ctx, token.RefreshParams{
		TenantID: snowflake.ID(10),
		UserID:   snowflake.ID(42),
		ClientID: "web-app",
		TTL:      time.Hour,
	}); err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	s := New(log, config.Config{SweepInterval: "1m"}, codes, refresh)
	if s.interval != time.Minute {
		t.Fatalf("interval = %v", s.interval)
	}

	// Nothing is expired yet.
	s.sweep(ctx)
	var codeCount, tokenCount int64
	conn.Model(&authcode.AuthorizationCode{}).Count(&codeCount)
	conn.Model(&token.RefreshToken{}).Count(&tokenCount)
	if codeCount != 1 || tokenCount != 1 {
		t.Fatalf("counts after early sweep = %d/%d", codeCount, tokenCount)
	}

	clk.Advance(2 * time.Hour)
	s.sweep(ctx)
	conn.Model(&authcode.AuthorizationCode{}).Count(&codeCount)
	conn.Model(&token.RefreshToken{}).Count(&tokenCount)
	if codeCount != 0 || tokenCount != 0 {
		t.Fatalf("counts after sweep = %d/%d", codeCount, tokenCount)
	}
}

func TestIntervalFallback(t *testing.T) {
	s := New(zap.NewNop(), config.Config{SweepInterval: "bogus"}, nil, nil)
	if s.interval != defaultInterval {
		t.Fatalf("interval = %v, want %v", s.interval, defaultInterval)
	}
}
