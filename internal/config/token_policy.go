package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TokenPolicy holds process-wide token lifetime defaults. Tenants may
// override both values; these apply when a tenant carries no override.
type TokenPolicy struct {
	AccessTokenTTLMinutes int `mapstructure:"accessTokenTTLMinutes"`
	RefreshTokenTTLDays   int `mapstructure:"refreshTokenTTLDays"`
}

func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   30,
	}
}

func (p TokenPolicy) AccessTokenTTL() time.Duration {
	return time.Duration(p.AccessTokenTTLMinutes) * time.Minute
}

func (p TokenPolicy) RefreshTokenTTL() time.Duration {
	return time.Duration(p.RefreshTokenTTLDays) * 24 * time.Hour
}

// TokenPolicyHolder exposes the current policy via an atomic snapshot so the
// request path never touches the filesystem.
type TokenPolicyHolder struct {
	current atomic.Value // holds TokenPolicy
}

// NewTokenPolicyHolder loads token policy from an optional config file and
// hot-reloads it on change.
func NewTokenPolicyHolder() (*TokenPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("tokenpolicy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/authcore/config")
	v.AddConfigPath("/etc/authcore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultTokenPolicy()
		v.SetDefault("tokens.accessTokenTTLMinutes", defaults.AccessTokenTTLMinutes)
		v.SetDefault("tokens.refreshTokenTTLDays", defaults.RefreshTokenTTLDays)
	}

	var policy TokenPolicy
	if err := v.UnmarshalKey("tokens", &policy); err != nil {
		return nil, err
	}
	if err := validateTokenPolicy(policy); err != nil {
		return nil, err
	}

	holder := &TokenPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated TokenPolicy
		if err := v.UnmarshalKey("tokens", &updated); err != nil {
			log.Printf("[token-policy] reload failed: %v", err)
			return
		}
		if err := validateTokenPolicy(updated); err != nil {
			log.Printf("[token-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[token-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticTokenPolicyHolder wraps a fixed policy, for tests and
// embedded use without a config file.
func NewStaticTokenPolicyHolder(policy TokenPolicy) *TokenPolicyHolder {
	holder := &TokenPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *TokenPolicyHolder) Get() TokenPolicy {
	return h.current.Load().(TokenPolicy)
}

func validateTokenPolicy(policy TokenPolicy) error {
	if policy.AccessTokenTTLMinutes <= 0 {
		return errors.New("tokens.accessTokenTTLMinutes must be positive")
	}
	if policy.RefreshTokenTTLDays <= 0 {
		return errors.New("tokens.refreshTokenTTLDays must be positive")
	}
	return nil
}
