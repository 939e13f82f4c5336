package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	goIssuer "github.com/MrEthical07/goIssuer"
	"github.com/MrEthical07/goIssuer/keys"
	"github.com/MrEthical07/goIssuer/middleware"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 16 << 10

// Issuer is the engine surface served over HTTP. *goIssuer.Engine
// implements it.
type Issuer interface {
	middleware.BearerValidator
	CreateSession(ctx context.Context, userID string) (goIssuer.Credentials, error)
	RefreshSession(ctx context.Context, refreshToken string) (*goIssuer.RefreshResult, error)
	RevokeSession(ctx context.Context, sessionID string) error
	GetSessionInfo(ctx context.Context, sessionID string) (*goIssuer.SessionInfo, error)
	ActiveSessions(ctx context.Context, userID string) ([]goIssuer.SessionInfo, error)
	JWKS(ctx context.Context) ([]byte, error)
	RotateKeys(ctx context.Context) (string, error)
	RevokeKey(ctx context.Context, kid string) error
	ListKeys(ctx context.Context) ([]keys.KeyInfo, error)
	Health(ctx context.Context) goIssuer.HealthStatus
}

// Options configures [NewRouter].
type Options struct {
	// Authorize gates the /admin routes. A nil Authorize rejects every
	// admin request.
	Authorize func(r *http.Request) bool
	// RefreshLimiter throttles POST /v1/token/refresh per client address.
	// Nil disables throttling.
	RefreshLimiter RateLimiter
	Logger         *slog.Logger
}

// RateLimiter counts one hit for key and reports whether it is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// StaticTokenAuthorizer accepts admin requests carrying "Bearer <token>".
// An empty token disables the admin routes.
func StaticTokenAuthorizer(token string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if token == "" {
			return false
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
	}
}

type api struct {
	issuer  Issuer
	limiter RateLimiter
	logger  *slog.Logger
}

// NewRouter returns the HTTP surface of issuer.
func NewRouter(issuer Issuer, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{issuer: issuer, limiter: opts.RefreshLimiter, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/.well-known/jwks.json", a.handleJWKS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/token/refresh", a.throttle(http.HandlerFunc(a.handleRefresh))).Methods(http.MethodPost)

	bearer := v1.NewRoute().Subrouter()
	bearer.Use(mux.MiddlewareFunc(middleware.Guard(issuer)))
	bearer.HandleFunc("/session", a.handleCurrentSession).Methods(http.MethodGet)
	bearer.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(requireAdmin(opts.Authorize))
	admin.HandleFunc("/sessions", a.handleCreateSession).Methods(http.MethodPost)
	admin.HandleFunc("/sessions/{id}", a.handleRevokeSession).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{user_id}/sessions", a.handleListSessions).Methods(http.MethodGet)
	admin.HandleFunc("/keys", a.handleListKeys).Methods(http.MethodGet)
	admin.HandleFunc("/keys/rotate", a.handleRotateKeys).Methods(http.MethodPost)
	admin.HandleFunc("/keys/{kid}", a.handleRevokeKey).Methods(http.MethodDelete)

	return r
}

func requireAdmin(authorize func(*http.Request) bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authorize == nil || !authorize(r) {
				writeError(w, http.StatusForbidden, "forbidden", "admin credentials required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// throttle fails open on limiter errors: the engine still rejects bad
// tokens when its own store is down.
func (a *api) throttle(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := a.limiter.Allow(r.Context(), middleware.ClientIP(r))
		if err != nil {
			a.logger.Warn("refresh limiter unavailable", "error", err)
		} else if !ok {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many refresh attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}
