package goIssuer

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIssuer/keys"
)

// Config is the full engine configuration. Build copies it; later changes to
// the caller's value have no effect on a built engine.
type Config struct {
	Token   TokenConfig
	Keys    KeysConfig
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the claims and lifetimes of issued tokens.
type TokenConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Leeway is the clock skew tolerance applied to token and session expiry.
	Leeway time.Duration
	// MaxFutureIAT bounds how far in the future an iat claim may sit.
	MaxFutureIAT time.Duration
}

/*
====================================
KEYS CONFIG
====================================
*/

// KeysConfig controls the signing key ring.
type KeysConfig struct {
	Algorithm   keys.Algorithm
	RSABits     int
	MaxKeys     int
	RedisPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session store and the per-user ceiling.
type SessionConfig struct {
	RedisPrefix        string
	MaxSessionsPerUser int
	// Retention is the minimum lifetime of a Redis session record and its
	// token indexes, counted from the last create or refresh. The store
	// never uses less than Token.RefreshTTL plus Token.Leeway, so a refresh
	// token that still verifies always finds its session.
	Retention time.Duration
}

// storeTTL is the expiry applied to session records by the Redis store.
func (c Config) storeTTL() time.Duration {
	ttl := c.Session.Retention
	if floor := c.Token.RefreshTTL + c.Token.Leeway; ttl < floor {
		ttl = floor
	}
	return ttl
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:       "goissuer",
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   24 * time.Hour,
			Leeway:       30 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Keys: KeysConfig{
			Algorithm:   keys.AlgEdDSA,
			RSABits:     2048,
			MaxKeys:     5,
			RedisPrefix: "jwks",
		},
		Session: SessionConfig{
			RedisPrefix:        "sess",
			MaxSessionsPerUser: 5,
			Retention:          24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration used when [Builder.WithConfig] is
// never called.
func DefaultConfig() Config {
	return defaultConfig()
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	// Token
	if strings.TrimSpace(c.Token.Issuer) == "" {
		return errors.New("Token Issuer must be set")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}
	if c.Token.MaxFutureIAT < 0 {
		return errors.New("Token MaxFutureIAT must be >= 0")
	}

	// Keys
	switch c.Keys.Algorithm {
	case keys.AlgEdDSA, keys.AlgRS256:
	default:
		return errors.New("unsupported Keys Algorithm")
	}
	if c.Keys.MaxKeys < 1 {
		return errors.New("Keys MaxKeys must be >= 1")
	}
	if c.Keys.Algorithm == keys.AlgRS256 && c.Keys.RSABits < 2048 {
		return errors.New("Keys RSABits must be >= 2048")
	}
	if strings.TrimSpace(c.Keys.RedisPrefix) == "" {
		return errors.New("Keys RedisPrefix must be set")
	}

	// Session
	if c.Session.MaxSessionsPerUser < 1 {
		return errors.New("Session MaxSessionsPerUser must be >= 1")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if c.Session.RedisPrefix == c.Keys.RedisPrefix {
		return errors.New("Session RedisPrefix must differ from Keys RedisPrefix")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
