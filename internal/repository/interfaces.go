package repository

import (
	"context"

	"stash-api/internal/domain"
)

// EventRepository defines the interface for analytics event storage
type EventRepository interface {
	// InsertBatch stores events in one round trip
	InsertBatch(ctx context.Context, events []domain.Event) error
}
