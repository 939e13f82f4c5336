package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIssuer/session"
)

// RevokeFailureKind classifies revocation failures for root-level mapping.
type RevokeFailureKind int

const (
	// RevokeFailureNone means the session moved to revoked.
	RevokeFailureNone RevokeFailureKind = iota
	// RevokeFailureNotFound means no session has the id.
	RevokeFailureNotFound
	// RevokeFailureTerminal means the session was already revoked or expired.
	RevokeFailureTerminal
	// RevokeFailureStore means the session store failed.
	RevokeFailureStore
)

// RevokeResult reports the outcome of a revocation. UserID is filled when
// the session could be loaded.
type RevokeResult struct {
	Failure   RevokeFailureKind
	Err       error
	SessionID string
	UserID    string
}

type RevokeSessionStore interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	SetStatus(ctx context.Context, id string, from, to session.Status) error
}

// RevokeDeps captures revocation flow dependencies.
type RevokeDeps struct {
	SessionStore RevokeSessionStore
}

// RunRevoke moves a session to revoked. Revoking a revoked session is a
// no-op. An expired session stays expired and is reported as terminal.
func RunRevoke(ctx context.Context, sessionID string, deps RevokeDeps) RevokeResult {
	sess, err := deps.SessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return RevokeResult{Failure: RevokeFailureNotFound, Err: err, SessionID: sessionID}
		}
		return RevokeResult{Failure: RevokeFailureStore, Err: err, SessionID: sessionID}
	}

	err = deps.SessionStore.SetStatus(ctx, sessionID, session.StatusActive, session.StatusRevoked)
	switch {
	case err == nil:
		return RevokeResult{SessionID: sessionID, UserID: sess.UserID}
	case errors.Is(err, session.ErrSessionNotFound):
		return RevokeResult{Failure: RevokeFailureNotFound, Err: err, SessionID: sessionID}
	case errors.Is(err, session.ErrNotActive):
		return RevokeResult{Failure: RevokeFailureTerminal, Err: err, SessionID: sessionID, UserID: sess.UserID}
	default:
		return RevokeResult{Failure: RevokeFailureStore, Err: err, SessionID: sessionID, UserID: sess.UserID}
	}
}
