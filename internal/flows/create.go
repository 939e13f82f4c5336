package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIssuer/session"
)

// CreateFailureKind classifies session creation failures for root-level mapping.
type CreateFailureKind int

const (
	// CreateFailureNone means the session was stored.
	CreateFailureNone CreateFailureKind = iota
	// CreateFailureUserLookup means the user directory returned an error.
	CreateFailureUserLookup
	// CreateFailureUserNotFound means the user directory does not know the user.
	CreateFailureUserNotFound
	// CreateFailureSessionID means no session id could be generated.
	CreateFailureSessionID
	// CreateFailureSign means the token pair could not be signed.
	CreateFailureSign
	// CreateFailureConflict means a token digest is already indexed.
	CreateFailureConflict
	// CreateFailurePersist means the session store rejected or failed the write.
	CreateFailurePersist
)

// CreateResult carries the issued pair or failure metadata.
type CreateResult struct {
	Failure      CreateFailureKind
	Err          error
	UserID       string
	SessionID    string
	EvictedID    string
	Session      *session.Session
	AccessToken  string
	RefreshToken string
}

type CreateSessionStore interface {
	Create(ctx context.Context, sess *session.Session, accessToken, refreshToken string, maxActive int) (string, error)
}

// CreateDeps captures creation flow dependencies. UserExists is optional;
// when nil every user id is accepted.
type CreateDeps struct {
	UserExists   func(ctx context.Context, userID string) (bool, error)
	NewSessionID func() (string, error)
	Sign         SignFunc
	AccessTTL    time.Duration
	MaxActive    int
	Now          func() time.Time
	SessionStore CreateSessionStore
}

// RunCreate issues a token pair and persists a new active session,
// evicting the user's oldest active session when the ceiling is reached.
func RunCreate(ctx context.Context, userID string, deps CreateDeps) CreateResult {
	if deps.UserExists != nil {
		ok, err := deps.UserExists(ctx, userID)
		if err != nil {
			return CreateResult{Failure: CreateFailureUserLookup, Err: err, UserID: userID}
		}
		if !ok {
			return CreateResult{Failure: CreateFailureUserNotFound, UserID: userID}
		}
	}

	sessionID, err := deps.NewSessionID()
	if err != nil {
		return CreateResult{Failure: CreateFailureSessionID, Err: err, UserID: userID}
	}

	now := deps.Now()
	access, refresh, err := signPair(ctx, deps.Sign, userID, sessionID, now)
	if err != nil {
		return CreateResult{Failure: CreateFailureSign, Err: err, UserID: userID, SessionID: sessionID}
	}

	sess := &session.Session{
		ID:          sessionID,
		UserID:      userID,
		Status:      session.StatusActive,
		ExpiresAt:   now.Add(deps.AccessTTL),
		CreatedAt:   now,
		RefreshedAt: now,
	}
	evicted, err := deps.SessionStore.Create(ctx, sess, access, refresh, deps.MaxActive)
	if err != nil {
		failure := CreateFailurePersist
		if errors.Is(err, session.ErrTokenConflict) {
			failure = CreateFailureConflict
		}
		return CreateResult{Failure: failure, Err: err, UserID: userID, SessionID: sessionID}
	}

	return CreateResult{
		Failure:      CreateFailureNone,
		UserID:       userID,
		SessionID:    sessionID,
		EvictedID:    evicted,
		Session:      sess,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
