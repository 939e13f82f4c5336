package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status is the lifecycle state of a session. Revoked and expired are
// terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

var (
	// ErrSessionNotFound is returned when no session matches the id or token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenConflict is returned when a token digest is already indexed.
	ErrTokenConflict = errors.New("session token conflict")
	// ErrStaleRefresh is returned when the presented refresh token is no
	// longer the one stored on the session.
	ErrStaleRefresh = errors.New("stale refresh token")
	// ErrOwnerMismatch is returned when the session belongs to another user
	// or the token's session id does not match the indexed record.
	ErrOwnerMismatch = errors.New("session owner mismatch")
	// ErrNotActive is returned for transitions out of a terminal state.
	ErrNotActive = errors.New("session not active")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrSessionCorrupt is returned when a stored record cannot be decoded.
	ErrSessionCorrupt = errors.New("session record corrupt")
)

// Session is one login's server-side record. AccessHash and RefreshHash are
// digests of the current token pair; the raw tokens are never stored.
type Session struct {
	ID          string
	UserID      string
	AccessHash  string
	RefreshHash string
	Status      Status
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RefreshedAt time.Time
}

// Active reports whether the session is in the active state.
func (s *Session) Active() bool {
	return s != nil && s.Status == StatusActive
}

// HashToken returns the hex SHA-256 digest under which a token is indexed.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RotateRequest describes one refresh rotation. PresentedRefresh is the
// raw refresh token the caller holds; the rotation only applies while it is
// still the session's current refresh token.
type RotateRequest struct {
	SessionID        string
	UserID           string
	PresentedRefresh string
	NextAccess       string
	NextRefresh      string
	ExpiresAt        time.Time
	RefreshedAt      time.Time
}

// Backend is the storage contract used by the engine. Token arguments are
// raw values; implementations persist and look up digests.
type Backend interface {
	// Create inserts sess. When maxActive > 0 and the user already holds
	// maxActive or more active sessions, the oldest one is revoked in the
	// same atomic unit and its id returned.
	Create(ctx context.Context, sess *Session, accessToken, refreshToken string, maxActive int) (evictedID string, err error)
	Get(ctx context.Context, id string) (*Session, error)
	GetByAccessToken(ctx context.Context, token string) (*Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*Session, error)
	// Rotate swaps the token pair with compare-and-swap semantics on the
	// presented refresh token.
	Rotate(ctx context.Context, req RotateRequest) (*Session, error)
	// SetStatus moves a session from one status to another. A session
	// already in the target status is left as is.
	SetStatus(ctx context.Context, id string, from, to Status) error
	CountActive(ctx context.Context, userID string) (int, error)
	// OldestActive returns the session the next ceiling eviction would pick.
	// Create evicts on its own inside the same atomic step; this read is for
	// introspection only.
	OldestActive(ctx context.Context, userID string) (*Session, error)
	// ListActive returns the user's active sessions, oldest first.
	ListActive(ctx context.Context, userID string) ([]*Session, error)
}
