package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIssuer/jwt"
	"github.com/MrEthical07/goIssuer/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	// RefreshFailureNone means the pair was rotated.
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureVerify means the presented token failed verification.
	RefreshFailureVerify
	// RefreshFailureKeyStore means the key store could not be read.
	RefreshFailureKeyStore
	// RefreshFailureSessionNotFound means no session holds the presented token.
	RefreshFailureSessionNotFound
	// RefreshFailureOwnerMismatch means token claims disagree with the stored session.
	RefreshFailureOwnerMismatch
	// RefreshFailureNotActive means the session is revoked or expired.
	RefreshFailureNotActive
	// RefreshFailureSign means the new pair could not be signed.
	RefreshFailureSign
	// RefreshFailureStale means a concurrent refresh consumed the token first.
	RefreshFailureStale
	// RefreshFailureConflict means a new token digest is already indexed.
	RefreshFailureConflict
	// RefreshFailureStore means the session store failed.
	RefreshFailureStore
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SessionID    string
	UserID       string
	Session      *session.Session
	AccessToken  string
	RefreshToken string
}

type RefreshSessionStore interface {
	GetByRefreshToken(ctx context.Context, token string) (*session.Session, error)
	Rotate(ctx context.Context, req session.RotateRequest) (*session.Session, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Verify       VerifyFunc
	Sign         SignFunc
	AccessTTL    time.Duration
	Now          func() time.Time
	SessionStore RefreshSessionStore
}

// RunRefresh executes refresh rotation: verify the token, load the session
// it is bound to, check ownership and status, mint a new pair under the same
// session id and swap it in with a compare-and-swap on the presented token.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	now := deps.Now()

	claims, err := deps.Verify(ctx, refreshToken, jwt.KindRefresh, now)
	if err != nil {
		var verr *jwt.VerifyError
		if errors.As(err, &verr) {
			return RefreshResult{Failure: RefreshFailureVerify, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureKeyStore, Err: err}
	}

	sess, err := deps.SessionStore.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		failure := RefreshFailureStore
		if errors.Is(err, session.ErrSessionNotFound) {
			failure = RefreshFailureSessionNotFound
		}
		return RefreshResult{Failure: failure, Err: err, SessionID: claims.SessionID, UserID: claims.Subject}
	}
	if sess.ID != claims.SessionID || sess.UserID != claims.Subject {
		return RefreshResult{
			Failure:   RefreshFailureOwnerMismatch,
			Err:       session.ErrOwnerMismatch,
			SessionID: claims.SessionID,
			UserID:    claims.Subject,
		}
	}
	if !sess.Active() {
		return RefreshResult{
			Failure:   RefreshFailureNotActive,
			Err:       session.ErrNotActive,
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Session:   sess,
		}
	}

	access, refresh, err := signPair(ctx, deps.Sign, sess.UserID, sess.ID, now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSign, Err: err, SessionID: sess.ID, UserID: sess.UserID, Session: sess}
	}

	updated, err := deps.SessionStore.Rotate(ctx, session.RotateRequest{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		PresentedRefresh: refreshToken,
		NextAccess:       access,
		NextRefresh:      refresh,
		ExpiresAt:        now.Add(deps.AccessTTL),
		RefreshedAt:      now,
	})
	if err != nil {
		var failure RefreshFailureKind
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrStaleRefresh):
			// Another rotation consumed the token between our read and the swap.
			failure = RefreshFailureStale
		case errors.Is(err, session.ErrOwnerMismatch):
			failure = RefreshFailureOwnerMismatch
		case errors.Is(err, session.ErrNotActive):
			failure = RefreshFailureNotActive
		case errors.Is(err, session.ErrTokenConflict):
			failure = RefreshFailureConflict
		default:
			failure = RefreshFailureStore
		}
		return RefreshResult{Failure: failure, Err: err, SessionID: sess.ID, UserID: sess.UserID, Session: sess}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		SessionID:    updated.ID,
		UserID:       updated.UserID,
		Session:      updated,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
