package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goIssuer "github.com/MrEthical07/goIssuer"
)

// BearerValidator is the part of [goIssuer.Engine] the guard needs.
type BearerValidator interface {
	ValidateBearer(ctx context.Context, accessToken, refreshToken string) (*goIssuer.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the result stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*goIssuer.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goIssuer.AuthResult)
	return res, ok
}

// WithAuthResult returns a copy of ctx carrying res. Mostly useful in tests
// of handlers mounted behind [Guard].
func WithAuthResult(ctx context.Context, res *goIssuer.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard rejects requests without a valid bearer credential. Unauthorized
// and not-found failures answer 401; store outages answer 503.
//
//	Flow: Authorization header -> ValidateBearer(access, X-Refresh-Token) -> rotated headers -> next.
func Guard(engine BearerValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			access, ok := bearerToken(r.Header.Get("Authorization"))
			refresh := strings.TrimSpace(r.Header.Get(HeaderRefreshToken))
			if !ok && refresh == "" {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goIssuer.WithClientIP(r.Context(), ClientIP(r))
			ctx = goIssuer.WithUserAgent(ctx, r.UserAgent())

			res, err := engine.ValidateBearer(ctx, access, refresh)
			if err != nil {
				status := statusFor(err)
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			if res.Rotated != nil {
				writeRotated(w.Header(), res.Rotated)
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(ctx, res)))
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, goIssuer.ErrInternal):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP returns the first X-Forwarded-For hop, or the host of
// RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
