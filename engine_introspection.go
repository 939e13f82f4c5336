package goIssuer

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIssuer/session"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// ActiveSessions lists a user's active sessions, oldest first. Token values
// and digests are never included.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	list, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return nil, wrapCause(ErrStoreUnavailable, err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionInfo(s))
	}
	return out, nil
}

// ActiveSessionCount returns how many active sessions count against the
// user's ceiling.
//
//	Performance: 1 store round trip.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.CountActive(ctx, userID)
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return 0, wrapCause(ErrStoreUnavailable, err)
	}
	return n, nil
}

// NextEviction returns the session the next CreateSession for userID would
// revoke, or nil when the user is below the ceiling.
//
//	Performance: 2 store round trips.
func (e *Engine) NextEviction(ctx context.Context, userID string) (*SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	n, err := e.sessions.CountActive(ctx, userID)
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return nil, wrapCause(ErrStoreUnavailable, err)
	}
	if n < e.config.Session.MaxSessionsPerUser {
		return nil, nil
	}
	oldest, err := e.sessions.OldestActive(ctx, userID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return nil, nil
	case err != nil:
		e.metricInc(MetricStoreFailure)
		return nil, wrapCause(ErrStoreUnavailable, err)
	}
	info := toSessionInfo(oldest)
	return &info, nil
}

// GetSessionInfo returns the token-free view of one session in any state.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		e.metricInc(MetricStoreFailure)
		return nil, wrapCause(ErrStoreUnavailable, err)
	}
	info := toSessionInfo(sess)
	return &info, nil
}

// Health pings Redis, which backs the key ring in every deployment.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.redis == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
}
