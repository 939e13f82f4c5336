package goIssuer

import (
	"context"
	"errors"
)

const (
	auditEventSessionCreated       = "session_created"
	auditEventSessionCreateFailure = "session_create_failure"
	auditEventSessionEvicted       = "session_evicted"
	auditEventSessionRevoked       = "session_revoked"
	auditEventSessionExpired       = "session_expired"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshRace          = "refresh_race_lost"
	auditEventValidateFailure      = "validate_failure"
	auditEventKeyRotated           = "key_rotated"
	auditEventKeyRevoked           = "key_revoked"
	auditEventKeyRevokeFailure     = "key_revoke_failure"
	auditEventStoreUnavailable     = "store_unavailable"
)

// AuditErrorCode is the stable, low-cardinality error label carried by
// audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized          AuditErrorCode = "unauthorized"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrRefreshInvalid        AuditErrorCode = "refresh_invalid"
	auditErrSessionRevoked        AuditErrorCode = "session_revoked"
	auditErrSessionExpired        AuditErrorCode = "session_expired"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrUserNotFound          AuditErrorCode = "user_not_found"
	auditErrKeyNotFound           AuditErrorCode = "key_not_found"
	auditErrDuplicate             AuditErrorCode = "duplicate"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrSigning               AuditErrorCode = "signing_failed"
	auditErrInternal              AuditErrorCode = "internal_error"
)

// auditRecord is the variable part of one event.
type auditRecord struct {
	eventType string
	success   bool
	userID    string
	sessionID string
	keyID     string
	err       error
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord, metadataBuilder func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.eventType,
		UserID:    rec.userID,
		SessionID: rec.sessionID,
		KeyID:     rec.keyID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   rec.success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(rec.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrKeyNotFound):
		return auditErrKeyNotFound
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrSigningFailed):
		return auditErrSigning
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}
