package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/authcore/pkg/db"
)

func newTestResolver(t *testing.T) (*Resolver, Repository) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&Tenant{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewRepository(conn)

	ctx := context.Background()
	seeds := []*Tenant{
		{ID: snowflake.ID(1), Slug: "acme", Name: "Acme", EmailDomain: "acme.com", Hostname: "auth.acme.com", IsActive: true},
		{ID: snowflake.ID(2), Slug: "globex", Name: "Globex", EmailDomain: "globex.io", Hostname: "login.globex.io", IsActive: true},
		{ID: snowflake.ID(3), Slug: "closed", Name: "Closed", EmailDomain: "closed.example", IsActive: false},
	}
	for _, seed := range seeds {
		if err := repo.Create(ctx, seed); err != nil {
			t.Fatalf("seed tenant: %v", err)
		}
	}
	return NewResolver(repo, zap.NewNop()), repo
}

func TestResolvePrecedence(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	t.Run("explicit id", func(t *testing.T) {
		got, err := r.Resolve(ctx, ResolveRequest{ExplicitID: "1", EmailDomain: "globex.io", Host: "login.globex.io"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got.ID != snowflake.ID(1) {
			t.Fatalf("id = %v, explicit hint must win", got.ID)
		}
	})

	t.Run("explicit slug", func(t *testing.T) {
		got, err := r.Resolve(ctx, ResolveRequest{ExplicitID: "globex"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got.ID != snowflake.ID(2) {
			t.Fatalf("id = %v", got.ID)
		}
	})

	t.Run("email domain", func(t *testing.T) {
		got, err := r.Resolve(ctx, ResolveRequest{EmailDomain: "acme.com", Host: "login.globex.io"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got.ID != snowflake.ID(1) {
			t.Fatalf("id = %v, email domain must beat host", got.ID)
		}
	})

	t.Run("host with port", func(t *testing.T) {
		got, err := r.Resolve(ctx, ResolveRequest{Host: "Login.Globex.io:8443"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got.ID != snowflake.ID(2) {
			t.Fatalf("id = %v", got.ID)
		}
	})
}

func TestResolveUnmatchedHintFails(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	// A present hint that matches nothing must not fall through to the
	// next hint.
	_, err := r.Resolve(ctx, ResolveRequest{EmailDomain: "unknown.example", Host: "auth.acme.com"})
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound", err)
	}

	if _, err := r.Resolve(ctx, ResolveRequest{}); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound for no hints", err)
	}
}

func TestResolveSkipsInactive(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve(context.Background(), ResolveRequest{EmailDomain: "closed.example"})
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound for inactive tenant", err)
	}
}

func TestEmailDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice@Example.COM", "example.com"},
		{"alice", ""},
		{"alice@", ""},
		{"a@b@corp.io", "corp.io"},
	}
	for _, tc := range cases {
		if got := EmailDomain(tc.in); got != tc.want {
			t.Fatalf("EmailDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
