package handler

import (
	"net/http"
	"time"

	"stash-api/internal/domain"
	"stash-api/internal/middleware"
	"stash-api/internal/service"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
)

// maxEventsPerRequest matches the server-side flush threshold
const maxEventsPerRequest = service.MaxQueueSize

// AnalyticsHandler accepts first-party events from the web client
type AnalyticsHandler struct {
	analytics service.AnalyticsService
	logger    *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics service.AnalyticsService, logger *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		logger:    logger.Named("analytics_handler"),
	}
}

// AnalyticsEvent is one client-reported event
type AnalyticsEvent struct {
	Name      domain.EventName       `json:"name"`
	Props     map[string]interface{} `json:"props"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
}

// AnalyticsRequest is the body of POST /api/analytics
type AnalyticsRequest struct {
	Events []AnalyticsEvent `json:"events"`
}

// Track handles POST /api/analytics
func (h *AnalyticsHandler) Track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyticsRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}
	if len(req.Events) == 0 {
		writeErrorResponse(w, r, errors.NewValidationError("events must not be empty", nil), h.logger)
		return
	}
	if len(req.Events) > maxEventsPerRequest {
		writeErrorResponse(w, r, errors.NewValidationError("too many events", map[string]interface{}{
			"max": maxEventsPerRequest,
		}), h.logger)
		return
	}

	var userID *string
	if user, ok := middleware.UserFromContext(ctx); ok {
		id := user.Sub
		userID = &id
	}

	now := time.Now()
	events := make([]domain.Event, 0, len(req.Events))
	for i, e := range req.Events {
		if !e.Name.Valid() {
			writeErrorResponse(w, r, errors.NewValidationError("unknown event name", map[string]interface{}{
				"index": i,
				"name":  e.Name,
			}), h.logger)
			return
		}

		// Client clocks are trusted only within a day of ours
		createdAt := now
		if e.Timestamp != nil && e.Timestamp.After(now.Add(-24*time.Hour)) && e.Timestamp.Before(now.Add(time.Minute)) {
			createdAt = *e.Timestamp
		}
		events = append(events, domain.Event{
			Name:      e.Name,
			Props:     e.Props,
			UserID:    userID,
			CreatedAt: createdAt,
		})
	}

	h.analytics.TrackEvents(ctx, events)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"queued":  len(events),
	})
}
