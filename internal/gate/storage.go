package gate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// StorageKey is the single item a visitor's quota state lives under
const StorageKey = "db_stash_gate_v1"

var (
	// ErrNotFound is returned by Storage.GetItem for a missing item
	ErrNotFound = errors.New("gate: item not found")
	// ErrStorageUnavailable means the backing store refused the operation
	ErrStorageUnavailable = errors.New("gate: storage unavailable")
)

// Storage is a visitor-scoped key/value area
type Storage interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// StorageProvider hands out the storage area belonging to one visitor
type StorageProvider interface {
	ForVisitor(visitorID string) Storage
}

// MemoryStorage is an in-process Storage
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// DefaultMemoryRetention is how long an in-process visitor area survives
// without a write. Counts older than a day have reset anyway.
const DefaultMemoryRetention = 24 * time.Hour

// MemoryProvider keeps visitor storage areas in process memory. It is used
// when no Redis is configured, so state lasts only as long as the process.
// An area is created on its first write and dropped by Sweep once idle.
type MemoryProvider struct {
	mu        sync.Mutex
	visitors  map[string]*memoryArea
	retention time.Duration
	clock     Clock
}

type memoryArea struct {
	items       map[string]string
	lastWritten time.Time
}

func NewMemoryProvider() *MemoryProvider {
	return NewMemoryProviderWithRetention(DefaultMemoryRetention, SystemClock())
}

// NewMemoryProviderWithRetention keeps idle areas for retention, never less
// than a day
func NewMemoryProviderWithRetention(retention time.Duration, clock Clock) *MemoryProvider {
	if retention < DefaultMemoryRetention {
		retention = DefaultMemoryRetention
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &MemoryProvider{
		visitors:  make(map[string]*memoryArea),
		retention: retention,
		clock:     clock,
	}
}

// ForVisitor returns a handle onto the visitor's area. Nothing is
// allocated until the handle is written to.
func (p *MemoryProvider) ForVisitor(visitorID string) Storage {
	return memoryVisitor{provider: p, visitorID: visitorID}
}

// Sweep drops areas not written within the retention window and returns
// how many were removed
func (p *MemoryProvider) Sweep() int {
	cutoff := p.clock.Now().Add(-p.retention)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, area := range p.visitors {
		if area.lastWritten.Before(cutoff) {
			delete(p.visitors, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of visitors holding state
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.visitors)
}

type memoryVisitor struct {
	provider  *MemoryProvider
	visitorID string
}

func (v memoryVisitor) GetItem(_ context.Context, key string) (string, error) {
	p := v.provider
	p.mu.Lock()
	defer p.mu.Unlock()

	area, ok := p.visitors[v.visitorID]
	if !ok {
		return "", ErrNotFound
	}
	value, ok := area.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (v memoryVisitor) SetItem(_ context.Context, key, value string) error {
	p := v.provider
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	area, ok := p.visitors[v.visitorID]
	if !ok {
		area = &memoryArea{items: make(map[string]string, 1)}
		p.visitors[v.visitorID] = area
	}
	area.items[key] = value
	area.lastWritten = now
	return nil
}

func (v memoryVisitor) RemoveItem(_ context.Context, key string) error {
	p := v.provider
	p.mu.Lock()
	defer p.mu.Unlock()

	area, ok := p.visitors[v.visitorID]
	if !ok {
		return nil
	}
	delete(area.items, key)
	if len(area.items) == 0 {
		delete(p.visitors, v.visitorID)
	}
	return nil
}

// unavailableStorage fails every call, like browser storage in private mode
type unavailableStorage struct{}

// UnavailableStorage returns a Storage whose every operation fails
func UnavailableStorage() Storage {
	return unavailableStorage{}
}

func (unavailableStorage) GetItem(context.Context, string) (string, error) {
	return "", ErrStorageUnavailable
}

func (unavailableStorage) SetItem(context.Context, string, string) error {
	return ErrStorageUnavailable
}

func (unavailableStorage) RemoveItem(context.Context, string) error {
	return ErrStorageUnavailable
}
