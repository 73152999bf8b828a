package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stash-api/internal/domain"
	"stash-api/pkg/database"
)

var eventColumns = []string{"name", "props", "user_id", "created_at"}

// eventRepository writes analytics events to PostgreSQL
type eventRepository struct {
	db *database.PostgresDB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.PostgresDB) EventRepository {
	return &eventRepository{
		db: db,
	}
}

// InsertBatch copies events into the events table
func (r *eventRepository) InsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows, err := eventRows(events)
	if err != nil {
		return err
	}

	copied, err := r.db.Pool.CopyFrom(ctx, pgx.Identifier{"events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	if int(copied) != len(events) {
		return fmt.Errorf("inserted %d of %d events", copied, len(events))
	}

	return nil
}

func eventRows(events []domain.Event) ([][]interface{}, error) {
	rows := make([][]interface{}, 0, len(events))
	for _, event := range events {
		props := event.Props
		if props == nil {
			props = map[string]interface{}{}
		}
		encoded, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("failed to encode props for %s: %w", event.Name, err)
		}
		rows = append(rows, []interface{}{string(event.Name), encoded, event.UserID, event.CreatedAt})
	}
	return rows, nil
}
