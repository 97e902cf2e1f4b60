package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultTokenPolicy(t *testing.T) {
	policy := DefaultTokenPolicy()

	require.Equal(t, 15*time.Minute, policy.AccessTokenTTL())
	require.Equal(t, 30*24*time.Hour, policy.RefreshTokenTTL())
}

func TestStaticTokenPolicyHolder(t *testing.T) {
	holder := NewStaticTokenPolicyHolder(TokenPolicy{
		AccessTokenTTLMinutes: 5,
		RefreshTokenTTLDays:   7,
	})

	got := holder.Get()
	require.Equal(t, 5*time.Minute, got.AccessTokenTTL())
	require.Equal(t, 7*24*time.Hour, got.RefreshTokenTTL())
}

func TestValidateTokenPolicy(t *testing.T) {
	require.NoError(t, validateTokenPolicy(DefaultTokenPolicy()))
	require.Error(t, validateTokenPolicy(TokenPolicy{AccessTokenTTLMinutes: 0, RefreshTokenTTLDays: 30}))
	require.Error(t, validateTokenPolicy(TokenPolicy{AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: -1}))
}

func TestIsDev(t *testing.T) {
	for env, want := range map[string]bool{
		"development": true,
		"local":       true,
		"test":        true,
		"production":  false,
		"staging":     false,
	} {
		require.Equal(t, want, Config{Environment: env}.IsDev(), env)
	}
}
