package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"stash-api/internal/middleware"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErrorResponse renders appErr, logging server-side failures loudly
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, log *logger.Logger) {
	requestID := middleware.RequestIDFromContext(r.Context())
	entry := log.WithError(appErr).WithFields(map[string]interface{}{
		"request_id": requestID,
		"path":       r.URL.Path,
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	if err := errors.WriteJSON(w, appErr, requestID); err != nil {
		log.WithError(err).Error("Failed to encode error response")
	}
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) *errors.AppError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return errors.NewValidationError("Invalid request body", nil)
	}
	return nil
}
