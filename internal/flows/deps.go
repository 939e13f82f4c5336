package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goIssuer/jwt"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Create   CreateDeps
	Refresh  RefreshDeps
	Validate ValidateDeps
	Revoke   RevokeDeps
}

// SignFunc mints one token; it matches (*jwt.Codec).Sign.
type SignFunc func(ctx context.Context, subject, sessionID string, kind jwt.Kind, now time.Time) (string, error)

// VerifyFunc checks one token; it matches (*jwt.Codec).Verify.
type VerifyFunc func(ctx context.Context, token string, kind jwt.Kind, now time.Time) (*jwt.Claims, error)

// signPair mints an access and a refresh token bound to the same session.
func signPair(ctx context.Context, sign SignFunc, userID, sessionID string, now time.Time) (string, string, error) {
	access, err := sign(ctx, userID, sessionID, jwt.KindAccess, now)
	if err != nil {
		return "", "", err
	}
	refresh, err := sign(ctx, userID, sessionID, jwt.KindRefresh, now)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
