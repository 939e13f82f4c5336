package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIssuer/jwt"
	"github.com/MrEthical07/goIssuer/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	// ValidateFailureNone means the access token maps to an active session.
	ValidateFailureNone ValidateFailureKind = iota
	// ValidateFailureUnauthorized means the access token failed verification and no refresh token was given.
	ValidateFailureUnauthorized
	// ValidateFailureKeyStore means the key store could not be read.
	ValidateFailureKeyStore
	// ValidateFailureSessionNotFound means no session holds the access token.
	ValidateFailureSessionNotFound
	// ValidateFailureMismatch means token claims disagree with the stored session.
	ValidateFailureMismatch
	// ValidateFailureRevoked means the session is revoked.
	ValidateFailureRevoked
	// ValidateFailureExpired means the session is expired.
	ValidateFailureExpired
	// ValidateFailureStore means the session store failed.
	ValidateFailureStore
	// ValidateFailureRefresh means the refresh fallback ran and failed; see Refreshed.
	ValidateFailureRefresh
)

// ValidateResult returns either the authenticated identity or a classified
// failure. Refreshed is set whenever the refresh fallback ran.
type ValidateResult struct {
	Failure   ValidateFailureKind
	Err       error
	UserID    string
	SessionID string
	Session   *session.Session
	Refreshed *RefreshResult
	// ExpiredNow is true when this call moved the session to expired.
	ExpiredNow bool
}

type ValidateSessionStore interface {
	GetByAccessToken(ctx context.Context, token string) (*session.Session, error)
	SetStatus(ctx context.Context, id string, from, to session.Status) error
}

// ValidateDeps captures bearer validation dependencies. Refresh is the
// fallback used when the access token fails verification.
type ValidateDeps struct {
	Verify       VerifyFunc
	Refresh      func(ctx context.Context, refreshToken string) RefreshResult
	Now          func() time.Time
	Leeway       time.Duration
	Warn         func(string, ...any)
	SessionStore ValidateSessionStore
}

// RunValidate executes bearer validation with refresh fallback.
func RunValidate(ctx context.Context, accessToken, refreshToken string, deps ValidateDeps) ValidateResult {
	now := deps.Now()

	claims, err := deps.Verify(ctx, accessToken, jwt.KindAccess, now)
	if err != nil {
		var verr *jwt.VerifyError
		if !errors.As(err, &verr) {
			// Key store outage: refreshing would hit the same store.
			return ValidateResult{Failure: ValidateFailureKeyStore, Err: err}
		}
		if refreshToken == "" || deps.Refresh == nil {
			return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
		}

		refreshed := deps.Refresh(ctx, refreshToken)
		if refreshed.Failure != RefreshFailureNone {
			return ValidateResult{Failure: ValidateFailureRefresh, Err: refreshed.Err, Refreshed: &refreshed}
		}
		return ValidateResult{
			Failure:   ValidateFailureNone,
			UserID:    refreshed.UserID,
			SessionID: refreshed.SessionID,
			Session:   refreshed.Session,
			Refreshed: &refreshed,
		}
	}

	sess, err := deps.SessionStore.GetByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err, SessionID: claims.SessionID, UserID: claims.Subject}
		}
		return ValidateResult{Failure: ValidateFailureStore, Err: err, SessionID: claims.SessionID, UserID: claims.Subject}
	}
	if sess.ID != claims.SessionID || sess.UserID != claims.Subject {
		return ValidateResult{Failure: ValidateFailureMismatch, Err: session.ErrOwnerMismatch, SessionID: claims.SessionID, UserID: claims.Subject}
	}

	switch sess.Status {
	case session.StatusRevoked:
		return ValidateResult{Failure: ValidateFailureRevoked, SessionID: sess.ID, UserID: sess.UserID, Session: sess}
	case session.StatusExpired:
		return ValidateResult{Failure: ValidateFailureExpired, SessionID: sess.ID, UserID: sess.UserID, Session: sess}
	}

	if !now.Before(sess.ExpiresAt.Add(deps.Leeway)) {
		res := ValidateResult{Failure: ValidateFailureExpired, SessionID: sess.ID, UserID: sess.UserID, Session: sess}
		err := deps.SessionStore.SetStatus(ctx, sess.ID, session.StatusActive, session.StatusExpired)
		switch {
		case err == nil:
			res.ExpiredNow = true
		case deps.Warn != nil:
			deps.Warn("session expiry transition failed", "session_id", sess.ID, "error", err)
		}
		return res
	}

	return ValidateResult{
		Failure:   ValidateFailureNone,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Session:   sess,
	}
}
