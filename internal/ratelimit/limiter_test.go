package ratelimit

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/internal/clock"
	"github.com/smallbiznis/authcore/pkg/db"
)

func newTestLimiter(t *testing.T, cfgs ...Config) (*Limiter, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&Config{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := range cfgs {
		cfgs[i].ID = snowflake.ID(i + 1)
		if err := conn.Create(&cfgs[i]).Error; err != nil {
			t.Fatalf("seed config: %v", err)
		}
	}

	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	return NewLimiter(log, NewReader(log, conn), NewMemoryCounter(clk)), clk
}

func TestCheckDeniesAboveLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		Endpoint:      "oauth/token",
		MaxRequests:   5,
		WindowSeconds: 60,
		Enabled:       true,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if d := limiter.Check(ctx, "oauth/token", "web-app"); !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	d := limiter.Check(ctx, "oauth/token", "web-app")
	if d.Allowed {
		t.Fatal("6th request allowed, want denied")
	}
	if d.RetryAfter != time.Minute {
		t.Fatalf("retry after = %v", d.RetryAfter)
	}

	// Another caller has its own window.
	if d := limiter.Check(ctx, "oauth/token", "other-app"); !d.Allowed {
		t.Fatal("independent caller denied")
	}
}

func TestCheckWindowReset(t *testing.T) {
	limiter, clk := newTestLimiter(t, Config{
		Endpoint:      "oauth/token",
		MaxRequests:   2,
		WindowSeconds: 60,
		Enabled:       true,
	})
	ctx := context.Background()

	// Pin the clock to a window boundary so the advance below cannot
	// land inside the same fixed window.
	clk.Advance(clk.Now().Truncate(time.Minute).Add(time.Minute).Sub(clk.Now()))

	limiter.Check(ctx, "oauth/token", "web-app")
	limiter.Check(ctx, "oauth/token", "web-app")
	if d := limiter.Check(ctx, "oauth/token", "web-app"); d.Allowed {
		t.Fatal("over-limit request allowed")
	}

	clk.Advance(time.Minute)
	if d := limiter.Check(ctx, "oauth/token", "web-app"); !d.Allowed {
		t.Fatal("request denied after window reset")
	}
}

func TestCheckFailsOpenWithoutConfig(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if d := limiter.Check(ctx, "oauth/token", "web-app"); !d.Allowed {
			t.Fatal("unlimited endpoint denied")
		}
	}
}

func TestCheckFailsOpenWhenDisabled(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		Endpoint:      "oauth/token",
		MaxRequests:   1,
		WindowSeconds: 60,
		Enabled:       false,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if d := limiter.Check(ctx, "oauth/token", "web-app"); !d.Allowed {
			t.Fatal("disabled limit denied")
		}
	}
}

func TestMemoryCounterConcurrent(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	counter := NewMemoryCounter(clk)
	ctx := context.Background()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	var max atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				n, err := counter.Incr(ctx, "k", time.Minute)
				if err != nil {
					t.Error(err)
					return
				}
				for {
					cur := max.Load()
					if n <= cur || max.CompareAndSwap(cur, n) {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	// Every increment lands exactly once in the same window.
	if got := max.Load(); got != workers*perWorker {
		t.Fatalf("count = %d, want %d", got, workers*perWorker)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/oauth/token", nil)
	req.RemoteAddr = "10.0.0.9:4312"

	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("peer ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("forwarded ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip, 10.0.0.1")
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("malformed forwarded header should fall back to peer, got %q", got)
	}
}
