package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	// Prefix namespaces the counter keys.
	Prefix string
	// Max is the number of hits allowed per Window. Zero disables the limiter.
	Max int
	// Window is the fixed window length.
	Window time.Duration
}

// Limiter is a fixed-window counter per key, shared across processes
// through Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow records one hit for key and reports whether it is within budget.
// Errors wrap [ErrRedisUnavailable]; callers decide whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.config.Max <= 0 || key == "" {
		return true, nil
	}

	count, err := l.incrementWithTTL(ctx, l.config.Prefix+":"+key, l.config.Window)
	if err != nil {
		return false, err
	}
	return count <= int64(l.config.Max), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
