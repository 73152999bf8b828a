package handler

import (
	"net/http"

	"stash-api/internal/domain"
	"stash-api/internal/gate"
	"stash-api/internal/middleware"
	"stash-api/internal/service"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
)

// AuthHandler handles session related requests
type AuthHandler struct {
	auth          service.AuthService
	broker        *service.AuthBroker
	gates         *gate.Service
	analytics     service.AnalyticsService
	secureCookies bool
	logger        *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth service.AuthService, broker *service.AuthBroker, gates *gate.Service, analytics service.AnalyticsService, secureCookies bool, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		broker:        broker,
		gates:         gates,
		analytics:     analytics,
		secureCookies: secureCookies,
		logger:        logger.Named("auth_handler"),
	}
}

// UserProfileResponse represents the user profile response
type UserProfileResponse struct {
	User    *domain.UserProfile `json:"user"`
	Success bool                `json:"success"`
	Message string              `json:"message"`
}

// CreateSession handles POST /api/auth/session. The token is verified,
// stored in the session cookie and the sign-in is announced to the
// visitor's open gate streams.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitor := middleware.VisitorFromContext(ctx)

	token := middleware.ExtractToken(r)
	if token == "" {
		h.analytics.Track(ctx, domain.EventAuthError, map[string]interface{}{"reason": "missing_token"})
		writeErrorResponse(w, r, errors.NewAuthenticationError("Access token is required"), h.logger)
		return
	}

	user, err := h.auth.ValidateToken(ctx, token)
	if err != nil {
		h.analytics.Track(ctx, domain.EventAuthError, map[string]interface{}{"reason": "invalid_token"})
		writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired token"), h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	notified := h.broker.Publish(visitor.ID, true)

	userID := user.Sub
	h.analytics.TrackEvents(ctx, []domain.Event{{
		Name:   domain.EventAuthSuccess,
		Props:  map[string]interface{}{"provider": user.Provider},
		UserID: &userID,
	}})

	h.logger.WithFields(map[string]interface{}{
		"user_id": user.Sub,
		"streams": notified,
	}).Info("Session created")

	respondJSON(w, http.StatusOK, UserProfileResponse{
		User:    user,
		Success: true,
		Message: "Signed in",
	})
}

// DeleteSession handles DELETE /api/auth/session. Open streams learn of
// the sign-out and the visitor's quota record is dropped.
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitor := middleware.VisitorFromContext(ctx)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	h.broker.Publish(visitor.ID, false)
	h.gates.ForVisitor(visitor).Forget(ctx)

	h.logger.Debug("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile handles GET /api/user/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, r, errors.NewAuthenticationError("User not authenticated"), h.logger)
		return
	}

	h.logger.WithField("user_id", user.Sub).Debug("User profile retrieved")

	respondJSON(w, http.StatusOK, UserProfileResponse{
		User:    user,
		Success: true,
		Message: "User profile retrieved successfully",
	})
}
