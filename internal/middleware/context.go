package middleware

import (
	"context"
	"net/http"
	"time"

	"stash-api/internal/domain"
	"stash-api/internal/gate"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// UserContextKey is the key for user information in context
	UserContextKey ContextKey = "user"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
	// VisitorContextKey is the key for the anonymous visitor in context
	VisitorContextKey ContextKey = "visitor"
)

// UserFromContext returns the signed-in user, if any
func UserFromContext(ctx context.Context) (*domain.UserProfile, bool) {
	user, ok := ctx.Value(UserContextKey).(*domain.UserProfile)
	return user, ok && user != nil
}

// RequestIDFromContext returns the request ID or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// VisitorFromContext returns the visitor resolved by the Visitor middleware.
// Without it the zero Visitor has no persistent storage and is never gated.
func VisitorFromContext(ctx context.Context) gate.Visitor {
	v, _ := ctx.Value(VisitorContextKey).(gate.Visitor)
	return v
}

// WithUser returns a copy of ctx carrying user
func WithUser(ctx context.Context, user *domain.UserProfile) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// WithVisitor returns a copy of ctx carrying v
func WithVisitor(ctx context.Context, v gate.Visitor) context.Context {
	return context.WithValue(ctx, VisitorContextKey, v)
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	requestID := RequestIDFromContext(r.Context())
	logger.WithError(appErr).WithField("request_id", requestID).Debug("Request rejected")

	if err := errors.WriteJSON(w, appErr, requestID); err != nil {
		logger.WithError(err).Error("Failed to write error response")
	}
}

// noCache marks a response as uncacheable anywhere
func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "private, no-cache, no-store, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", time.Unix(0, 0).UTC().Format(http.TimeFormat))
}
