package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"stash-api/internal/domain"
	"stash-api/internal/gate"
	"stash-api/internal/gate/gatetest"
	"stash-api/internal/middleware"
	"stash-api/pkg/logger"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type MockAssetService struct {
	mock.Mock
}

func (m *MockAssetService) ListAssets(ctx context.Context, filters domain.AssetFilters) []domain.Asset {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Asset)
}

func (m *MockAssetService) GetAssetBySlug(ctx context.Context, slug string) *domain.Asset {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Asset)
}

func (m *MockAssetService) GetAssetByID(ctx context.Context, id string) *domain.Asset {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Asset)
}

func (m *MockAssetService) IncrementViewCount(ctx context.Context, id string) bool {
	args := m.Called(ctx, id)
	return args.Bool(0)
}

func (m *MockAssetService) AssetsForStaticGeneration(ctx context.Context, limit int) []domain.Asset {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Asset)
}

func (m *MockAssetService) SubmitAsset(ctx context.Context, sub domain.AssetSubmission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

func (m *MockAssetService) InvalidateAssets(ctx context.Context) {
	m.Called(ctx)
}

// recordingAnalytics keeps every tracked event in memory
type recordingAnalytics struct {
	mu     sync.Mutex
	events []domain.Event
}

func (a *recordingAnalytics) Start(context.Context) error { return nil }
func (a *recordingAnalytics) Stop(context.Context) error  { return nil }
func (a *recordingAnalytics) Flush(context.Context) error { return nil }

func (a *recordingAnalytics) Track(_ context.Context, name domain.EventName, props map[string]interface{}) {
	a.TrackEvents(context.Background(), []domain.Event{{Name: name, Props: props}})
}

func (a *recordingAnalytics) TrackEvents(_ context.Context, events []domain.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, events...)
}

func (a *recordingAnalytics) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func (a *recordingAnalytics) Events() []domain.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Event(nil), a.events...)
}

func (a *recordingAnalytics) Names() []domain.EventName {
	var names []domain.EventName
	for _, e := range a.Events() {
		names = append(names, e.Name)
	}
	return names
}

func newGateService(mode gate.Mode) (*gate.Service, *gatetest.ManualClock) {
	clock := gatetest.NewManualClock(testNow)
	cfg := gate.DefaultConfig()
	cfg.Mode = mode
	cfg.Location = time.UTC
	return gate.NewService(cfg, gate.NewMemoryProvider(), clock, logger.NewNop()), clock
}

func visitor(id string) gate.Visitor {
	return gate.Visitor{ID: id, UserAgent: browserUA}
}

// asVisitor attaches v, and user when non-nil, the way the middleware chain would
func asVisitor(r *http.Request, v gate.Visitor, user *domain.UserProfile) *http.Request {
	ctx := middleware.WithVisitor(r.Context(), v)
	if user != nil {
		ctx = middleware.WithUser(ctx, user)
	}
	return r.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Type    string                 `json:"type"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}
