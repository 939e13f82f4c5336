package goIssuer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIssuer/keys"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Environment variables read by [ConfigFromEnv].
const (
	EnvIssuer             = "JWT_ISSUER"
	EnvAlgorithm          = "JWT_ALGORITHM"
	EnvAccessTTL          = "ACCESS_TOKEN_TTL"
	EnvRefreshTTL         = "REFRESH_TOKEN_TTL"
	EnvLeeway             = "JWT_LEEWAY"
	EnvMaxKeys            = "JWKS_MAX_KEYS"
	EnvKeysPrefix         = "JWKS_REDIS_PREFIX"
	EnvSessionPrefix      = "SESSION_REDIS_PREFIX"
	EnvMaxSessionsPerUser = "MAX_SESSIONS_PER_USER"
	EnvMetricsEnabled     = "METRICS_ENABLED"
	EnvAuditEnabled       = "AUDIT_ENABLED"
)

// ConfigFromEnv overlays environment values onto the default configuration.
// Unset or empty variables keep their defaults; malformed values are
// reported with the variable name. The result is validated.
func ConfigFromEnv(lookup LookupFunc) (Config, error) {
	cfg := defaultConfig()
	if lookup == nil {
		return cfg, nil
	}

	r := envReader{lookup: lookup}
	r.str(EnvIssuer, &cfg.Token.Issuer)
	r.duration(EnvAccessTTL, &cfg.Token.AccessTTL)
	r.duration(EnvRefreshTTL, &cfg.Token.RefreshTTL)
	r.duration(EnvLeeway, &cfg.Token.Leeway)
	if v, ok := r.get(EnvAlgorithm); ok {
		alg, err := parseAlgorithm(v)
		if err != nil {
			r.fail(EnvAlgorithm, err)
		}
		cfg.Keys.Algorithm = alg
	}
	r.integer(EnvMaxKeys, &cfg.Keys.MaxKeys)
	r.str(EnvKeysPrefix, &cfg.Keys.RedisPrefix)
	r.str(EnvSessionPrefix, &cfg.Session.RedisPrefix)
	r.integer(EnvMaxSessionsPerUser, &cfg.Session.MaxSessionsPerUser)
	r.boolean(EnvMetricsEnabled, &cfg.Metrics.Enabled)
	r.boolean(EnvAuditEnabled, &cfg.Audit.Enabled)

	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseAlgorithm(v string) (keys.Algorithm, error) {
	switch strings.ToUpper(v) {
	case "EDDSA", "ED25519":
		return keys.AlgEdDSA, nil
	case "RS256":
		return keys.AlgRS256, nil
	default:
		return "", fmt.Errorf("unsupported algorithm %q", v)
	}
}

// envReader keeps the first parse error so callers can read every
// variable and check once.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: %s: %w", key, err)
	}
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = b
}
