package middleware

import (
	"net/http"

	goIssuer "github.com/MrEthical07/goIssuer"
)

// Header names carrying credentials besides Authorization.
const (
	// HeaderRefreshToken is read on requests as the rotation fallback.
	HeaderRefreshToken = "X-Refresh-Token"
	// HeaderAccessToken carries a rotated access token on responses.
	HeaderAccessToken = "X-Access-Token"
	// HeaderSessionID carries the session id alongside rotated tokens.
	HeaderSessionID = "X-Session-Id"
)

func writeRotated(h http.Header, creds *goIssuer.Credentials) {
	h.Set(HeaderAccessToken, creds.AccessToken)
	h.Set(HeaderRefreshToken, creds.RefreshToken)
	h.Set(HeaderSessionID, creds.SessionID)
	h.Set("Cache-Control", "no-store")
}
