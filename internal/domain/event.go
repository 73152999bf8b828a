package domain

import "time"

// EventName is one of the first-party analytics events
type EventName string

const (
	EventStashView      EventName = "stash_view"
	EventGateImpression EventName = "gate_impression"
	EventGateBlock      EventName = "gate_block"
	EventAuthStart      EventName = "auth_start"
	EventAuthSuccess    EventName = "auth_success"
	EventAuthError      EventName = "auth_error"
)

// Valid reports whether n is an accepted event name
func (n EventName) Valid() bool {
	switch n {
	case EventStashView, EventGateImpression, EventGateBlock,
		EventAuthStart, EventAuthSuccess, EventAuthError:
		return true
	}
	return false
}

// Event is a single analytics record as stored in the events table
type Event struct {
	ID        int64                  `json:"id,omitempty" db:"id"`
	Name      EventName              `json:"name" db:"name"`
	Props     map[string]interface{} `json:"props" db:"props"`
	UserID    *string                `json:"user_id,omitempty" db:"user_id"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
