package domain

import "time"

// AssetCategory is the top-level grouping of a design asset
type AssetCategory string

const (
	CategoryBrandIdentity    AssetCategory = "brand identity"
	CategorySocialMedia      AssetCategory = "social media"
	CategoryWebDesign        AssetCategory = "web design"
	CategoryEvents           AssetCategory = "events & conferences"
	CategorySalesEnablement  AssetCategory = "sales enablement"
	CategoryContentMarketing AssetCategory = "content marketing"
	CategoryEmailMarketing   AssetCategory = "email marketing"
)

// Asset is the canonical catalog record, normalised from whatever shape the
// backing store returned.
type Asset struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Company      string        `json:"company"`
	Category     AssetCategory `json:"category"`
	Tags         []string      `json:"tags"`
	IndustryTags string        `json:"industry_tags,omitempty"`
	DesignStyle  []string      `json:"design_style"`
	FileURL      string        `json:"file_url"`
	SourceURL    string        `json:"source_url,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	MadeByDB     bool          `json:"made_by_db"`
	Approved     bool          `json:"approved"`
	Slug         string        `json:"slug"`
	ViewCount    int           `json:"view_count"`
	AddedBy      string        `json:"added_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// PrimaryTag returns the first tag, or "" when the asset is untagged
func (a *Asset) PrimaryTag() string {
	if len(a.Tags) == 0 {
		return ""
	}
	return a.Tags[0]
}

// AssetFilters narrows a catalog listing. Zero values mean "no filter".
type AssetFilters struct {
	Category     string   `json:"category,omitempty"`
	Search       string   `json:"search,omitempty"`
	MadeByDB     bool     `json:"made_by_db,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	DesignStyles []string `json:"design_styles,omitempty"`
}

// AssetSubmission is a visitor-submitted asset referenced by URL
type AssetSubmission struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Category     string   `json:"category"`
	Tags         string   `json:"tags"`
	IndustryTags string   `json:"industry_tags,omitempty"`
	DesignStyle  []string `json:"design_style"`
	FileURL      string   `json:"file_url"`
	SourceURL    string   `json:"source_url,omitempty"`
	AddedBy      string   `json:"added_by"`
	Notes        string   `json:"notes,omitempty"`
}

// Gallery is a catalog listing split for an anonymous visitor
type Gallery struct {
	Visible  []Asset       `json:"visible"`
	Hidden   []Asset       `json:"hidden"`
	Total    int           `json:"total"`
	Decision *GateDecision `json:"gate"`
}
