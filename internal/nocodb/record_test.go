package nocodb

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash-api/internal/domain"
)

var fallbackTime = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func decodeRecord(t *testing.T, raw string) record {
	t.Helper()
	var rec record
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	require.NoError(t, decoder.Decode(&rec))
	return rec
}

func TestNormalize_FullRecord(t *testing.T) {
	rec := decodeRecord(t, `{
		"Id": 123456,
		"title": "Q4 Sales Deck",
		"company": "Northwind Traders",
		"category": "sales enablement",
		"tags": "enterprise, b2b ,",
		"industry_tags": "logistics",
		"design_style": ["minimal", "corporate"],
		"file_url": [{"signedPath": "download/abc.pdf", "path": "ignored.pdf"}],
		"source_url": "https://northwind.example.com",
		"Notes": "Good use of whitespace",
		"made_by_db": 1,
		"approved": true,
		"views": 17,
		"added_by": "ops",
		"created_at": "2026-01-05 10:00:00+00:00"
	}`)

	asset := normalize(rec, "https://files.example.com/", fallbackTime)

	assert.Equal(t, "123456", asset.ID)
	assert.Equal(t, domain.CategorySalesEnablement, asset.Category)
	assert.Equal(t, []string{"enterprise", "b2b"}, asset.Tags)
	assert.Equal(t, []string{"minimal", "corporate"}, asset.DesignStyle)
	assert.Equal(t, "https://files.example.com/download/abc.pdf", asset.FileURL)
	assert.Equal(t, "Good use of whitespace", asset.Notes)
	assert.True(t, asset.MadeByDB)
	assert.True(t, asset.Approved)
	assert.Equal(t, 17, asset.ViewCount)
	assert.Equal(t, time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC), asset.CreatedAt.UTC())
	assert.Equal(t, "q4-sales-deck-enterprise-sales-enablement-northwind-traders-123456", asset.Slug)
}

func TestNormalize_SparseRecord(t *testing.T) {
	rec := decodeRecord(t, `{"id": "rec_1", "approved": "0", "made_by_db": null}`)

	asset := normalize(rec, "", fallbackTime)

	assert.Equal(t, "rec_1", asset.ID)
	assert.NotNil(t, asset.Tags)
	assert.Empty(t, asset.Tags)
	assert.NotNil(t, asset.DesignStyle)
	assert.False(t, asset.Approved)
	assert.False(t, asset.MadeByDB)
	assert.Equal(t, 0, asset.ViewCount)
	assert.Equal(t, fallbackTime, asset.CreatedAt)
	assert.Equal(t, "design-rec_1", asset.Slug)
}

func TestNormalize_StoredSlugWins(t *testing.T) {
	rec := decodeRecord(t, `{"Id": 1, "title": "Pricing", "slug": "hand-picked"}`)
	assert.Equal(t, "hand-picked", normalize(rec, "", fallbackTime).Slug)

	rec = decodeRecord(t, `{"Id": 1, "title": "Pricing", "slug": "  "}`)
	assert.Equal(t, "pricing-1", normalize(rec, "", fallbackTime).Slug)
}

func TestNormalize_ViewCountPrefersViewCountField(t *testing.T) {
	rec := decodeRecord(t, `{"Id": 1, "view_count": 3, "views": 99}`)
	assert.Equal(t, 3, normalize(rec, "", fallbackTime).ViewCount)
}

func TestExtractFileURL(t *testing.T) {
	const base = "https://files.example.com"

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"absolute string", `"https://cdn.example.com/a.png"`, "https://cdn.example.com/a.png"},
		{"relative string", `"download/a.png"`, base + "/download/a.png"},
		{"relative string with slash", `"/download/a.png"`, base + "/download/a.png"},
		{"array with signedPath", `[{"signedPath": "dl/s.png"}]`, base + "/dl/s.png"},
		{"array with absolute signedPath", `[{"signedPath": "https://s3.example.com/s.png"}]`, "https://s3.example.com/s.png"},
		{"array with path", `[{"path": "dl/p.png"}]`, base + "/dl/p.png"},
		{"array with url", `[{"url": "https://u.example.com/u.png"}]`, "https://u.example.com/u.png"},
		{"empty array", `[]`, ""},
		{"object with path", `{"path": "dl/o.png"}`, base + "/dl/o.png"},
		{"object with url", `{"url": "https://u.example.com/o.png"}`, "https://u.example.com/o.png"},
		{"unknown object", `{"title": "x"}`, ""},
		{"null", `null`, ""},
		{"number", `42`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &v))
			assert.Equal(t, tt.expected, extractFileURL(v, base))
		})
	}
}

func TestBoolField(t *testing.T) {
	truthy := []interface{}{true, json.Number("1"), float64(1), 1, "1", "true", "yes"}
	falsy := []interface{}{nil, false, json.Number("0"), float64(0), 0, "", "0", "false", []interface{}{}}

	for _, v := range truthy {
		assert.True(t, boolField(v), "%#v", v)
	}
	for _, v := range falsy {
		assert.False(t, boolField(v), "%#v", v)
	}
}

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name         string
		filters      domain.AssetFilters
		approvedOnly bool
		expected     string
	}{
		{
			name:         "no filters in production",
			approvedOnly: true,
			expected:     "(approved,eq,1)",
		},
		{
			name:     "no filters in development",
			expected: "",
		},
		{
			name:         "category all is ignored",
			filters:      domain.AssetFilters{Category: "all"},
			approvedOnly: true,
			expected:     "(approved,eq,1)",
		},
		{
			name:         "industry and single style",
			filters:      domain.AssetFilters{Industry: "fintech", DesignStyles: []string{"bold", " "}},
			approvedOnly: true,
			expected:     "(approved,eq,1)~and(industry_tags,eq,fintech)~and((design_style,like,%bold%))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildWhere(tt.filters, tt.approvedOnly))
		})
	}
}

func TestIDWhere(t *testing.T) {
	assert.Equal(t, "(Id,eq,5)~and(approved,eq,1)", idWhere("5", true))
	assert.Equal(t, "(Id,eq,5)", idWhere("5", false))
}
