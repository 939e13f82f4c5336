package goIssuer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIssuer/internal/flows"
	"github.com/MrEthical07/goIssuer/jwt"
	"github.com/MrEthical07/goIssuer/keys"
	"github.com/MrEthical07/goIssuer/session"
	"github.com/redis/go-redis/v9"
)

// Engine is the session lifecycle engine. It is safe for concurrent use and
// for use by many processes sharing the same stores.
type Engine struct {
	config      Config
	keys        *keys.Manager
	codec       *jwt.Codec
	sessions    session.Backend
	redis       redis.UniversalClient
	flowService flows.Service
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Close flushes and stops the audit dispatcher. Stores are owned by the
// caller and stay open.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks [Engine.AuditDropped] down by audit event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flowService.Initialized()
}

/*
====================================
SESSIONS
====================================
*/

// CreateSession starts a session for userID and returns its first token
// pair. When the user already holds MaxSessionsPerUser active sessions, the
// oldest one is revoked in the same atomic step.
//
//	Flow: user lookup (optional) -> session id -> sign pair -> store create with ceiling.
func (e *Engine) CreateSession(ctx context.Context, userID string) (Credentials, error) {
	if !e.ready() {
		return Credentials{}, ErrEngineNotReady
	}
	if userID == "" {
		return Credentials{}, ErrUserNotFound
	}

	res := e.flowService.Create(ctx, userID)
	if res.Failure != flows.CreateFailureNone {
		err := mapCreateFailure(res)
		e.metricInc(MetricSessionCreateFailure)
		if errors.Is(err, ErrInternal) {
			e.metricInc(MetricStoreFailure)
		}
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionCreateFailure,
			userID:    userID,
			sessionID: res.SessionID,
			err:       err,
		}, nil)
		return Credentials{}, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSessionCreated,
		success:   true,
		userID:    userID,
		sessionID: res.SessionID,
	}, nil)
	if res.EvictedID != "" {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionEvicted,
			success:   true,
			userID:    userID,
			sessionID: res.EvictedID,
		}, func() map[string]string {
			return map[string]string{"replaced_by": res.SessionID}
		})
	}

	return Credentials{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		SessionID:    res.SessionID,
	}, nil
}

// RefreshSession exchanges a refresh token for a new pair under the same
// session id. The presented token is consumed: of two concurrent calls with
// the same token exactly one succeeds.
//
//	Flow: verify -> lookup by refresh token -> owner/status checks -> sign -> compare-and-swap.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flowService.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		err := e.recordRefreshFailure(ctx, res)
		return nil, err
	}

	e.recordRefreshSuccess(ctx, res)
	return &RefreshResult{
		Credentials: Credentials{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			SessionID:    res.SessionID,
		},
		Session: toSessionInfo(res.Session),
	}, nil
}

func (e *Engine) recordRefreshSuccess(ctx context.Context, res flows.RefreshResult) {
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRefreshSuccess,
		success:   true,
		userID:    res.UserID,
		sessionID: res.SessionID,
	}, nil)
}

func (e *Engine) recordRefreshFailure(ctx context.Context, res flows.RefreshResult) error {
	err := mapRefreshFailure(res)
	e.metricInc(MetricRefreshFailure)

	eventType := auditEventRefreshInvalid
	switch {
	case res.Failure == flows.RefreshFailureStale:
		e.metricInc(MetricRefreshRace)
		eventType = auditEventRefreshRace
	case errors.Is(err, ErrStoreUnavailable):
		e.metricInc(MetricStoreFailure)
		eventType = auditEventStoreUnavailable
		e.logger.Warn("refresh failed on store", "session_id", res.SessionID, "error", res.Err)
	}
	e.emitAudit(ctx, auditRecord{
		eventType: eventType,
		userID:    res.UserID,
		sessionID: res.SessionID,
		err:       err,
	}, nil)
	return err
}

// RevokeSession ends a session. Revoking a revoked or expired session is a
// no-op; an unknown id returns [ErrSessionNotFound].
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrSessionNotFound
	}

	res := e.flowService.Revoke(ctx, sessionID)
	switch res.Failure {
	case flows.RevokeFailureNone:
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionRevoked,
			success:   true,
			userID:    res.UserID,
			sessionID: sessionID,
		}, nil)
		return nil
	case flows.RevokeFailureTerminal:
		return nil
	case flows.RevokeFailureNotFound:
		return ErrSessionNotFound
	default:
		e.metricInc(MetricStoreFailure)
		err := wrapCause(ErrStoreUnavailable, res.Err)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventStoreUnavailable,
			userID:    res.UserID,
			sessionID: sessionID,
			err:       err,
		}, nil)
		return err
	}
}

// ValidateBearer authenticates a request. The access token must verify and
// map to an active, unexpired session it belongs to. When the access token
// fails verification and refreshToken is non-empty, the refresh token is
// rotated instead and the new pair is returned in [AuthResult.Rotated].
//
//	Flow: verify access -> lookup by access token -> owner/status/expiry checks,
//	or on verification failure: RefreshSession(refreshToken).
func (e *Engine) ValidateBearer(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	res := e.flowService.Validate(ctx, accessToken, refreshToken)
	if res.ExpiredNow {
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionExpired,
			success:   true,
			userID:    res.UserID,
			sessionID: res.SessionID,
		}, nil)
	}

	if res.Refreshed != nil {
		if res.Refreshed.Failure != flows.RefreshFailureNone {
			e.metricInc(MetricValidateFailure)
			return nil, e.recordRefreshFailure(ctx, *res.Refreshed)
		}
		e.recordRefreshSuccess(ctx, *res.Refreshed)
		e.metricInc(MetricValidateRotated)
	}

	if res.Failure != flows.ValidateFailureNone {
		err := mapValidateFailure(res)
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, ErrStoreUnavailable) {
			e.metricInc(MetricStoreFailure)
			e.logger.Warn("bearer validation failed on store", "session_id", res.SessionID, "error", res.Err)
		}
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventValidateFailure,
			userID:    res.UserID,
			sessionID: res.SessionID,
			err:       err,
		}, nil)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	out := &AuthResult{
		UserID:    res.UserID,
		SessionID: res.SessionID,
	}
	if res.Refreshed != nil {
		out.Rotated = &Credentials{
			AccessToken:  res.Refreshed.AccessToken,
			RefreshToken: res.Refreshed.RefreshToken,
			SessionID:    res.Refreshed.SessionID,
		}
	}
	return out, nil
}

/*
====================================
FAILURE MAPPING
====================================
*/

func mapCreateFailure(res flows.CreateResult) error {
	switch res.Failure {
	case flows.CreateFailureUserNotFound:
		return ErrUserNotFound
	case flows.CreateFailureSign:
		return wrapCause(ErrSigningFailed, res.Err)
	case flows.CreateFailureConflict:
		return wrapCause(ErrTokenConflict, res.Err)
	default:
		return wrapCause(ErrSessionCreationFailed, res.Err)
	}
}

func mapRefreshFailure(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureVerify,
		flows.RefreshFailureSessionNotFound,
		flows.RefreshFailureOwnerMismatch,
		flows.RefreshFailureNotActive,
		flows.RefreshFailureStale:
		return wrapCause(ErrRefreshInvalid, res.Err)
	case flows.RefreshFailureSign:
		return wrapCause(ErrSigningFailed, res.Err)
	case flows.RefreshFailureConflict:
		return wrapCause(ErrTokenConflict, res.Err)
	default:
		return wrapCause(ErrStoreUnavailable, res.Err)
	}
}

func mapValidateFailure(res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureUnauthorized,
		flows.ValidateFailureSessionNotFound,
		flows.ValidateFailureMismatch:
		return wrapCause(ErrTokenInvalid, res.Err)
	case flows.ValidateFailureRevoked:
		return ErrSessionRevoked
	case flows.ValidateFailureExpired:
		return ErrSessionExpired
	case flows.ValidateFailureRefresh:
		if res.Refreshed != nil {
			return mapRefreshFailure(*res.Refreshed)
		}
		return ErrRefreshInvalid
	default:
		return wrapCause(ErrStoreUnavailable, res.Err)
	}
}
