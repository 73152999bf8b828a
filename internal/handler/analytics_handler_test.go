package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsHandler_Track(t *testing.T) {
	post := func(h *AnalyticsHandler, body string, user *domain.UserProfile) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/analytics", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Track(rec, asVisitor(req, visitor("v1"), user))
		return rec
	}

	t.Run("queues events with the signed in user", func(t *testing.T) {
		analytics := &recordingAnalytics{}
		h := NewAnalyticsHandler(analytics, logger.NewNop())

		recent := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano)
		stale := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339Nano)
		body := fmt.Sprintf(`{"events":[
			{"name":"auth_start","props":{"source":"modal"},"timestamp":%q},
			{"name":"stash_view","props":{"asset_id":"rec1"},"timestamp":%q}
		]}`, recent, stale)

		rec := post(h, body, &domain.UserProfile{Sub: "user-1"})

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"success":true,"queued":2}`, rec.Body.String())

		events := analytics.Events()
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventAuthStart, events[0].Name)
		assert.Equal(t, "modal", events[0].Props["source"])
		require.NotNil(t, events[0].UserID)
		assert.Equal(t, "user-1", *events[0].UserID)

		assert.WithinDuration(t, time.Now().Add(-time.Hour), events[0].CreatedAt, time.Second)
		assert.WithinDuration(t, time.Now(), events[1].CreatedAt, time.Second, "stale client timestamps are replaced")
	})

	t.Run("anonymous events carry no user", func(t *testing.T) {
		analytics := &recordingAnalytics{}
		h := NewAnalyticsHandler(analytics, logger.NewNop())

		rec := post(h, `{"events":[{"name":"gate_impression"}]}`, nil)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Nil(t, analytics.Events()[0].UserID)
	})

	t.Run("rejected batches queue nothing", func(t *testing.T) {
		tooMany := `{"events":[` + strings.TrimSuffix(strings.Repeat(`{"name":"stash_view"},`, maxEventsPerRequest+1), ",") + `]}`

		tests := []struct {
			name string
			body string
		}{
			{name: "empty", body: `{"events":[]}`},
			{name: "unknown name", body: `{"events":[{"name":"stash_view"},{"name":"page_view"}]}`},
			{name: "too many", body: tooMany},
			{name: "malformed", body: `{"events":`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				analytics := &recordingAnalytics{}
				h := NewAnalyticsHandler(analytics, logger.NewNop())

				rec := post(h, tt.body, nil)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Zero(t, analytics.Pending())
			})
		}
	})
}
