package handler

import (
	"context"
	"net/http"
	"time"

	"stash-api/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string            `json:"status"`
	Timestamp        time.Time         `json:"timestamp"`
	Version          string            `json:"version"`
	Service          string            `json:"service"`
	Checks           map[string]string `json:"checks"`
	OpenStreams      int               `json:"open_streams"`
	PendingAnalytics int               `json:"pending_analytics"`
	PostgresInUse    int32             `json:"postgres_in_use,omitempty"`
}

// Check handles GET /health. Optional backends that are down degrade the
// status without failing the health check.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "stash-api",
		Checks: map[string]string{
			"redis":    "disabled",
			"postgres": "disabled",
		},
		OpenStreams:      h.container.Hub.Count(),
		PendingAnalytics: h.container.GetAnalyticsService().Pending(),
	}

	if h.container.HasRedis() {
		response.Checks["redis"] = "ok"
		if err := h.container.GetRedisClient().Health(ctx); err != nil {
			logger.WithError(err).Warn("Redis health check failed")
			response.Checks["redis"] = "unavailable"
			response.Status = "degraded"
		}
	}

	if h.container.HasDatabase() {
		response.Checks["postgres"] = "ok"
		if err := h.container.DB.Health(ctx); err != nil {
			logger.WithError(err).Warn("Postgres health check failed")
			response.Checks["postgres"] = "unavailable"
			response.Status = "degraded"
		}
		response.PostgresInUse = h.container.DB.InUse()
	}

	respondJSON(w, http.StatusOK, response)
}
