package goIssuer

import (
	"context"
	"time"

	"github.com/MrEthical07/goIssuer/session"
)

// UserDirectory is the optional collaborator consulted before a session is
// created. GetUserByID returns ok=false for unknown users; a non-nil error is
// treated as a backend failure.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (ok bool, err error)
}

// UserDirectoryFunc adapts a function to [UserDirectory].
type UserDirectoryFunc func(ctx context.Context, userID string) (bool, error)

// GetUserByID calls f.
func (f UserDirectoryFunc) GetUserByID(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// Credentials is an issued token pair bound to one session.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

// SessionStatus mirrors the store's session state names.
type SessionStatus string

const (
	SessionActive  SessionStatus = SessionStatus(session.StatusActive)
	SessionRevoked SessionStatus = SessionStatus(session.StatusRevoked)
	SessionExpired SessionStatus = SessionStatus(session.StatusExpired)
)

// SessionInfo is the public, token-free view of a session.
type SessionInfo struct {
	SessionID   string        `json:"session_id"`
	UserID      string        `json:"user_id"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// RefreshResult is returned by [Engine.RefreshSession].
type RefreshResult struct {
	Credentials Credentials
	Session     SessionInfo
}

// AuthResult is returned by [Engine.ValidateBearer]. Rotated is non-nil when
// the access token was rejected and the refresh fallback issued a new pair;
// the caller must hand those tokens back to the client.
type AuthResult struct {
	UserID    string
	SessionID string
	Rotated   *Credentials
}

func toSessionInfo(s *session.Session) SessionInfo {
	if s == nil {
		return SessionInfo{}
	}
	return SessionInfo{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Status:      SessionStatus(s.Status),
		CreatedAt:   s.CreatedAt,
		RefreshedAt: s.RefreshedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}
