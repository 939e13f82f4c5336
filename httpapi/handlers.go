package httpapi

import (
	"net/http"
	"strings"

	goIssuer "github.com/MrEthical07/goIssuer"
	"github.com/MrEthical07/goIssuer/middleware"
	"github.com/gorilla/mux"
)

/*
====================================
PUBLIC
====================================
*/

func (a *api) handleJWKS(w http.ResponseWriter, r *http.Request) {
	doc, err := a.issuer.JWKS(r.Context())
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

type healthResponse struct {
	Redis     bool  `json:"redis"`
	LatencyMS int64 `json:"latency_ms"`
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := a.issuer.Health(r.Context())
	status := http.StatusOK
	if !h.RedisAvailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Redis: h.RedisAvailable, LatencyMS: h.RedisLatency.Milliseconds()})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "refresh_token is required")
		return
	}

	res, err := a.issuer.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Credentials)
}

func (a *api) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	auth, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	info, err := a.issuer.GetSessionInfo(r.Context(), auth.SessionID)
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	if err := a.issuer.RevokeSession(r.Context(), auth.SessionID); err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
ADMIN
====================================
*/

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func (a *api) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}

	creds, err := a.issuer.CreateSession(r.Context(), req.UserID)
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, creds)
}

func (a *api) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if err := a.issuer.RevokeSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionsResponse struct {
	Sessions []goIssuer.SessionInfo `json:"sessions"`
}

func (a *api) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := a.issuer.ActiveSessions(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	if list == nil {
		list = []goIssuer.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: list})
}

func (a *api) handleListKeys(w http.ResponseWriter, r *http.Request) {
	list, err := a.issuer.ListKeys(r.Context())
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": list})
}

func (a *api) handleRotateKeys(w http.ResponseWriter, r *http.Request) {
	kid, err := a.issuer.RotateKeys(r.Context())
	if err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	a.logger.Info("key rotated via admin api", "kid", kid)
	writeJSON(w, http.StatusOK, map[string]string{"kid": kid})
}

func (a *api) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := a.issuer.RevokeKey(r.Context(), mux.Vars(r)["kid"]); err != nil {
		writeEngineError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
