// Package handler provides the HTTP surface of the coaching service:
// webhook ingest, the live view, and case provisioning.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apperrors "github.com/jkindrix/scamshield/internal/errors"
	"github.com/jkindrix/scamshield/internal/middleware"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}

// WriteError writes err as a structured JSON error response. Application
// errors map to their HTTP status; anything else becomes a 500 with a
// generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var appErr *apperrors.Error
	if e, ok := err.(*apperrors.Error); ok {
		appErr = e
	} else {
		appErr = apperrors.InternalError("internal server error", err)
	}

	if logger != nil && !appErr.IsUserError() {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	}

	if appErr.Code == apperrors.CodeRateLimited && appErr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfterSeconds))
	}
	WriteJSON(w, appErr.HTTPStatus(), appErr.ToResponse(), logger)
}

// okResponse is the minimal success body shared by ingest endpoints.
type okResponse struct {
	OK bool `json:"ok"`
}

// clientIP resolves the caller's address for rate-limit keying.
func clientIP(r *http.Request) string {
	return middleware.ClientIP(r)
}
