package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	goIssuer "github.com/MrEthical07/goIssuer"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeEngineError maps an engine error class onto a status code. The
// message is the public sentinel text only; wrapped causes stay server side.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, goIssuer.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", publicMessage(err))
	case errors.Is(err, goIssuer.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", publicMessage(err))
	case errors.Is(err, goIssuer.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", publicMessage(err))
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service unavailable")
	}
}

var publicErrors = []error{
	goIssuer.ErrTokenInvalid,
	goIssuer.ErrRefreshInvalid,
	goIssuer.ErrSessionRevoked,
	goIssuer.ErrSessionExpired,
	goIssuer.ErrSessionCreationFailed,
	goIssuer.ErrSessionNotFound,
	goIssuer.ErrKeyNotFound,
	goIssuer.ErrUserNotFound,
	goIssuer.ErrTokenConflict,
}

func publicMessage(err error) string {
	for _, pub := range publicErrors {
		if errors.Is(err, pub) {
			return pub.Error()
		}
	}
	return http.StatusText(http.StatusUnauthorized)
}
