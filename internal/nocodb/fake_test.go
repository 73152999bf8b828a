package nocodb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stash-api/pkg/logger"
)

const (
	tablePath = "/api/v2/tables/t1/records"
	testToken = "noco-test-token"
)

// fakeNocoDB is an in-memory NocoDB table. It does not evaluate where
// expressions; tests assert on the captured query instead.
type fakeNocoDB struct {
	mu       sync.Mutex
	records  []map[string]interface{}
	queries  []url.Values
	headers  []http.Header
	patches  []map[string]interface{}
	created  []map[string]interface{}
	status   int
	gets     *sync.WaitGroup
	nextID   int
	listHits int
}

func newFakeNocoDB(t *testing.T, records ...map[string]interface{}) (*fakeNocoDB, *httptest.Server) {
	t.Helper()
	fake := &fakeNocoDB{records: records, nextID: 1000}
	srv := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(srv.Close)
	return fake, srv
}

func (f *fakeNocoDB) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.headers = append(f.headers, r.Header.Clone())
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"msg":"boom"}`, status)
		return
	}

	switch {
	case r.URL.Path == tablePath && r.Method == http.MethodGet:
		f.list(w, r)
	case r.URL.Path == tablePath && r.Method == http.MethodPatch:
		f.patch(w, r)
	case r.URL.Path == tablePath && r.Method == http.MethodPost:
		f.create(w, r)
	case strings.HasPrefix(r.URL.Path, tablePath+"/") && r.Method == http.MethodGet:
		f.get(w, strings.TrimPrefix(r.URL.Path, tablePath+"/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeNocoDB) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	query := r.URL.Query()
	f.queries = append(f.queries, query)
	f.listHits++

	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 25
	}

	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	page := []map[string]interface{}{}
	if offset < len(f.records) {
		page = f.records[offset:end]
	}

	writeJSON(w, map[string]interface{}{
		"list": page,
		"pageInfo": map[string]interface{}{
			"totalRows":  len(f.records),
			"pageSize":   limit,
			"isLastPage": end >= len(f.records),
		},
	})
}

func (f *fakeNocoDB) get(w http.ResponseWriter, id string) {
	f.mu.Lock()
	var found map[string]interface{}
	for _, rec := range f.records {
		if toString(rec["Id"]) == id {
			found = copyRecord(rec)
		}
	}
	gets := f.gets
	f.mu.Unlock()

	// Hold every reader until all concurrent readers have read
	if gets != nil {
		gets.Done()
		gets.Wait()
	}

	if found == nil {
		http.NotFound(w, nil)
		return
	}
	writeJSON(w, found)
}

func (f *fakeNocoDB) patch(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, body)
	for _, rec := range f.records {
		if toString(rec["Id"]) == toString(body["Id"]) {
			for k, v := range body {
				rec[k] = v
			}
		}
	}
	writeJSON(w, map[string]interface{}{"Id": body["Id"]})
}

func (f *fakeNocoDB) create(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, body)
	writeJSON(w, map[string]interface{}{"Id": f.nextID})
}

func (f *fakeNocoDB) viewCountOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if toString(rec["Id"]) == id {
			return intField(rec["view_count"])
		}
	}
	return -1
}

func (f *fakeNocoDB) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

func copyRecord(rec map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestService(t *testing.T, srv *httptest.Server, development bool) *Service {
	t.Helper()
	svc, err := NewService(Config{
		APIURL:      srv.URL + tablePath + "?offset=0&limit=25&where=&viewId=vw1",
		APIToken:    testToken,
		FileBaseURL: "https://files.example.com",
		Development: development,
		Timeout:     5 * time.Second,
	}, logger.NewNop())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func assetRecord(id int, title string, approved bool) map[string]interface{} {
	approvedValue := 0
	if approved {
		approvedValue = 1
	}
	return map[string]interface{}{
		"Id":           id,
		"title":        title,
		"company":      "Acme Corp",
		"category":     "web design",
		"tags":         "saas, pricing",
		"design_style": "minimal,bold",
		"file_url":     "https://cdn.example.com/" + strconv.Itoa(id) + ".png",
		"approved":     approvedValue,
		"made_by_db":   false,
		"view_count":   0,
		"created_at":   "2026-01-05 10:00:00+00:00",
	}
}
