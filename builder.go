package goIssuer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIssuer/internal"
	"github.com/MrEthical07/goIssuer/internal/flows"
	"github.com/MrEthical07/goIssuer/jwt"
	"github.com/MrEthical07/goIssuer/keys"
	"github.com/MrEthical07/goIssuer/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions  session.Backend
	users     UserDirectory
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client shared by the key store and, unless
// [Builder.WithSessionBackend] is used, the session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionBackend replaces the Redis session store, for example with
// session/pgstore.
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.sessions = backend
	return b
}

// WithUserDirectory makes CreateSession reject users the directory does not know.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in
// the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for best-effort failures. Defaults to
// slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token stamps, session expiry and key
// metadata.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the ValidateBearer latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the key manager, token codec,
// session store and flows. It performs no I/O; the first signing call
// provisions a key if none is active.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- KEY LIFECYCLE --------
	km, err := keys.NewManager(b.redis, keys.Config{
		Algorithm:   cfg.Keys.Algorithm,
		RSABits:     cfg.Keys.RSABits,
		MaxKeys:     cfg.Keys.MaxKeys,
		RedisPrefix: cfg.Keys.RedisPrefix,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(km, jwt.Config{
		Issuer:       cfg.Token.Issuer,
		AccessTTL:    cfg.Token.AccessTTL,
		RefreshTTL:   cfg.Token.RefreshTTL,
		Leeway:       cfg.Token.Leeway,
		MaxFutureIAT: cfg.Token.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := b.sessions
	if store == nil {
		store = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.storeTTL())
	}

	engine := &Engine{
		config:   cfg,
		keys:     km,
		codec:    codec,
		sessions: store,
		redis:    b.redis,
		logger:   logger.With("component", "goissuer"),
		now:      now,
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	var userExists func(ctx context.Context, id string) (bool, error)
	if b.users != nil {
		userExists = b.users.GetUserByID
	}

	engine.flowService = flows.New(flows.Deps{
		Create: flows.CreateDeps{
			UserExists:   userExists,
			NewSessionID: internal.NewSessionID,
			Sign:         codec.Sign,
			AccessTTL:    cfg.Token.AccessTTL,
			MaxActive:    cfg.Session.MaxSessionsPerUser,
			Now:          now,
			SessionStore: store,
		},
		Refresh: flows.RefreshDeps{
			Verify:       codec.Verify,
			Sign:         codec.Sign,
			AccessTTL:    cfg.Token.AccessTTL,
			Now:          now,
			SessionStore: store,
		},
		Validate: flows.ValidateDeps{
			Verify:       codec.Verify,
			Now:          now,
			Leeway:       cfg.Token.Leeway,
			Warn:         engine.logger.Warn,
			SessionStore: store,
		},
		Revoke: flows.RevokeDeps{
			SessionStore: store,
		},
	})

	b.built = true

	return engine, nil
}
