package service

import (
	"context"

	"stash-api/internal/domain"
)

// AssetSource is the catalog backend. Reads never fail: on error they
// return an empty list or nil.
type AssetSource interface {
	ListAssets(ctx context.Context, filters domain.AssetFilters) []domain.Asset
	GetAssetBySlug(ctx context.Context, slug string) *domain.Asset
	GetAssetByID(ctx context.Context, id string) *domain.Asset
	IncrementViewCount(ctx context.Context, id string) bool
	AssetsForStaticGeneration(ctx context.Context, limit int) []domain.Asset
	SubmitAsset(ctx context.Context, sub domain.AssetSubmission) (string, error)
}

// AssetService is an AssetSource with cache control
type AssetService interface {
	AssetSource

	// InvalidateAssets drops every cached listing and slug lookup
	InvalidateAssets(ctx context.Context)
}

// AnalyticsService defines the interface for first-party event tracking
type AnalyticsService interface {
	// Start begins periodic flushing of queued events
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service, flushing what is queued
	Stop(ctx context.Context) error

	// Track queues an anonymous event
	Track(ctx context.Context, name domain.EventName, props map[string]interface{})

	// TrackEvents queues a batch of events as received from a client
	TrackEvents(ctx context.Context, events []domain.Event)

	// Flush writes queued events now
	Flush(ctx context.Context) error

	// Pending is the number of events waiting to be written
	Pending() int
}

// AuthService defines the interface for session validation
type AuthService interface {
	// ValidateToken verifies a Supabase access token and returns its user
	ValidateToken(ctx context.Context, token string) (*domain.UserProfile, error)
}

// Services aggregates all service interfaces
type Services struct {
	Auth      AuthService
	Assets    AssetService
	Analytics AnalyticsService
}
