package gate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/logger"
)

// Store persists one visitor's QuotaState. Nothing it does returns an
// error: unreadable state becomes the default state and failed writes are
// logged and dropped.
type Store struct {
	storage  Storage
	env      Environment
	location *time.Location
	log      *logger.Logger
}

// NewStore creates a store. Counts reset at midnight in location.
func NewStore(storage Storage, env Environment, location *time.Location, log *logger.Logger) *Store {
	if location == nil {
		location = time.Local
	}
	if storage == nil {
		storage = UnavailableStorage()
	}
	return &Store{
		storage:  storage,
		env:      env,
		location: location,
		log:      log,
	}
}

// Load returns the current state, or a fresh one when nothing usable is
// stored or the stored window started before today. A reset is not written
// back; the next Save captures it.
func (s *Store) Load(ctx context.Context) domain.QuotaState {
	if !s.env.HasPersistentStorage() {
		return s.defaultState()
	}

	raw, err := s.storage.GetItem(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.WithError(err).Warn("Failed to read gate storage")
		}
		return s.defaultState()
	}

	var state domain.QuotaState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.log.WithError(err).Warn("Discarding unparsable gate storage")
		return s.defaultState()
	}
	if state.ListSeen < 0 || state.DetailSeen < 0 {
		s.log.WithFields(map[string]interface{}{
			"list_seen":   state.ListSeen,
			"detail_seen": state.DetailSeen,
		}).Warn("Discarding gate storage with negative counts")
		return s.defaultState()
	}

	if state.LastReset.Before(StartOfDay(s.env.Now(), s.location)) {
		return s.defaultState()
	}

	return state
}

// Save writes state. Failures are logged, never returned.
func (s *Store) Save(ctx context.Context, state domain.QuotaState) {
	if !s.env.HasPersistentStorage() {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		s.log.WithError(err).Error("Failed to encode gate storage")
		return
	}

	if err := s.storage.SetItem(ctx, StorageKey, string(data)); err != nil {
		s.log.WithError(err).Warn("Failed to save gate storage")
	}
}

// Clear removes the stored state entirely
func (s *Store) Clear(ctx context.Context) {
	if !s.env.HasPersistentStorage() {
		return
	}
	if err := s.storage.RemoveItem(ctx, StorageKey); err != nil {
		s.log.WithError(err).Warn("Failed to clear gate storage")
	}
}

func (s *Store) defaultState() domain.QuotaState {
	return domain.QuotaState{LastReset: s.env.Now()}
}

// StartOfDay returns midnight of t's calendar day in location
func StartOfDay(t time.Time, location *time.Location) time.Time {
	local := t.In(location)
	year, month, day := local.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, location)
}
