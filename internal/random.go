package internal

import "github.com/google/uuid"

// NewSessionID returns a random (v4) UUID string used as both the session
// id and the jti of the session's tokens.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
