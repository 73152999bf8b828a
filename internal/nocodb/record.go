package nocodb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/utils"
)

// Timestamp layouts NocoDB has used for created_at
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// normalize maps a raw row of any historical shape onto an Asset
func normalize(rec record, fileBaseURL string, now time.Time) domain.Asset {
	id := firstString(rec, "Id", "id")
	title := stringField(rec, "title")
	company := stringField(rec, "company")

	asset := domain.Asset{
		ID:           id,
		Title:        title,
		Company:      company,
		Category:     domain.AssetCategory(stringField(rec, "category")),
		Tags:         splitList(rec["tags"]),
		IndustryTags: stringField(rec, "industry_tags"),
		DesignStyle:  splitList(rec["design_style"]),
		FileURL:      extractFileURL(rec["file_url"], fileBaseURL),
		SourceURL:    stringField(rec, "source_url"),
		Notes:        firstString(rec, "notes", "Notes"),
		MadeByDB:     boolField(rec["made_by_db"]),
		Approved:     boolField(rec["approved"]),
		ViewCount:    viewCount(rec),
		AddedBy:      stringField(rec, "added_by"),
		CreatedAt:    parseTimestamp(rec["created_at"], now),
	}

	if stored := strings.TrimSpace(stringField(rec, "slug")); stored != "" {
		asset.Slug = stored
	} else {
		asset.Slug = utils.DeriveSlug(title, company, id, string(asset.Category), asset.PrimaryTag())
	}

	return asset
}

func viewCount(rec record) int {
	for _, key := range []string{"view_count", "views"} {
		if n := intField(rec[key]); n > 0 {
			return n
		}
	}
	return 0
}

func stringField(rec record, key string) string {
	return toString(rec[key])
}

func firstString(rec record, keys ...string) string {
	for _, key := range keys {
		if s := toString(rec[key]); s != "" {
			return s
		}
	}
	return ""
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func intField(v interface{}) int {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
		if f, err := val.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return 0
}

// boolField accepts true/false, 0/1 and their string forms
func boolField(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "", "0", "false":
			return false
		}
		return true
	}
	return false
}

// splitList handles comma separated strings and JSON arrays
func splitList(v interface{}) []string {
	out := []string{}
	switch val := v.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []interface{}:
		for _, item := range val {
			if s := strings.TrimSpace(toString(item)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parseTimestamp(v interface{}, fallback time.Time) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

// extractFileURL resolves an attachment field. It has been a plain URL, a
// path relative to the NocoDB host, an attachment array and a single
// attachment object over the table's life.
func extractFileURL(v interface{}, fileBaseURL string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return absoluteURL(val, fileBaseURL)
	case []interface{}:
		if len(val) == 0 {
			return ""
		}
		if attachment, ok := val[0].(map[string]interface{}); ok {
			return attachmentURL(attachment, fileBaseURL)
		}
	case map[string]interface{}:
		return attachmentURL(val, fileBaseURL)
	}
	return ""
}

func attachmentURL(attachment map[string]interface{}, fileBaseURL string) string {
	if signed := toString(attachment["signedPath"]); signed != "" {
		return absoluteURL(signed, fileBaseURL)
	}
	if path := toString(attachment["path"]); path != "" {
		return absoluteURL(path, fileBaseURL)
	}
	return toString(attachment["url"])
}

func absoluteURL(path, fileBaseURL string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if fileBaseURL == "" {
		return path
	}
	return strings.TrimRight(fileBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
