package goIssuer

import (
	"errors"
	"fmt"
)

// Error classes. Every public error returned by [Engine] unwraps to exactly
// one of these, so callers can branch with errors.Is without knowing the
// specific failure.
var (
	// ErrUnauthorized covers every credential or session rejection.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound covers lookups of unknown sessions, keys and users.
	ErrNotFound = errors.New("not found")
	// ErrConflict covers uniqueness violations in the session store.
	ErrConflict = errors.New("conflict")
	// ErrInternal covers backend outages and signing failures.
	ErrInternal = errors.New("internal error")
)

// classError is a specific failure that also matches its class.
type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }

func newClassError(class error, msg string) error {
	return &classError{msg: msg, class: class}
}

var (
	// ErrTokenInvalid is returned when a bearer token fails verification and
	// no refresh fallback applies.
	ErrTokenInvalid = newClassError(ErrUnauthorized, "token invalid")
	// ErrRefreshInvalid is returned for any refresh precondition failure:
	// bad token, unknown or mismatched session, inactive session, or a token
	// already consumed by a concurrent refresh.
	ErrRefreshInvalid = newClassError(ErrUnauthorized, "refresh token invalid")
	// ErrSessionRevoked is returned when the session behind a token was revoked.
	ErrSessionRevoked = newClassError(ErrUnauthorized, "session revoked")
	// ErrSessionExpired is returned when the session behind a token expired.
	ErrSessionExpired = newClassError(ErrUnauthorized, "session expired")
	// ErrSessionCreationFailed is returned when a new session could not be persisted.
	ErrSessionCreationFailed = newClassError(ErrUnauthorized, "session creation failed")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = newClassError(ErrNotFound, "session not found")
	// ErrKeyNotFound is returned when revoking an unknown key id.
	ErrKeyNotFound = newClassError(ErrNotFound, "signing key not found")
	// ErrUserNotFound is returned when the user directory does not know the user.
	ErrUserNotFound = newClassError(ErrNotFound, "user not found")

	// ErrTokenConflict is returned when a freshly minted token value collides
	// with one already indexed.
	ErrTokenConflict = newClassError(ErrConflict, "token conflict")

	// ErrStoreUnavailable is returned when the key or session store cannot be reached.
	ErrStoreUnavailable = newClassError(ErrInternal, "store unavailable")
	// ErrSigningFailed is returned when no token could be signed.
	ErrSigningFailed = newClassError(ErrInternal, "token signing failed")

	// ErrEngineNotReady is returned by methods called on a nil or unbuilt engine.
	ErrEngineNotReady = newClassError(ErrInternal, "engine not initialized")
)

// wrapCause returns an error matching both public and cause.
func wrapCause(public, cause error) error {
	if cause == nil {
		return public
	}
	return fmt.Errorf("%w: %w", public, cause)
}
