package nocodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/logger"
)

const (
	staticGenerationTimeout = 10 * time.Second
	defaultStaticLimit      = 50
)

// ErrNotConfigured is returned by writes when no NocoDB endpoint is set
var ErrNotConfigured = errors.New("nocodb: API URL or token not configured")

// Service is the asset data access layer. Read failures are logged and
// turned into empty results so a backend outage never fails a page.
type Service struct {
	client      *Client
	fileBaseURL string
	development bool
	now         func() time.Time
	logger      *logger.Logger
}

// NewService creates the asset service
func NewService(cfg Config, log *logger.Logger) (*Service, error) {
	log = log.Named("nocodb")

	client, err := NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	if !client.Configured() {
		log.Warn("NocoDB configuration missing, asset listings will be empty")
	}

	return &Service{
		client:      client,
		fileBaseURL: cfg.FileBaseURL,
		development: cfg.Development,
		now:         time.Now,
		logger:      log,
	}, nil
}

// approvedOnly is true outside development, where unapproved records stay
// hidden from every read
func (s *Service) approvedOnly() bool {
	return !s.development
}

// ListAssets returns every asset matching filters
func (s *Service) ListAssets(ctx context.Context, filters domain.AssetFilters) []domain.Asset {
	if !s.client.Configured() {
		return []domain.Asset{}
	}

	records, err := s.client.listAll(ctx, buildWhere(filters, s.approvedOnly()))
	if err != nil {
		s.logger.WithError(err).WithField("filters", filters).Error("Error fetching assets")
		return []domain.Asset{}
	}

	return s.normalizeAll(records)
}

// GetAssetBySlug scans the approved catalog for slug. Slugs may be derived
// rather than stored, so the match happens after normalisation.
func (s *Service) GetAssetBySlug(ctx context.Context, slug string) *domain.Asset {
	if !s.client.Configured() || slug == "" {
		return nil
	}

	where := ""
	if s.approvedOnly() {
		where = approvedCondition
	}

	records, err := s.client.listAll(ctx, where)
	if err != nil {
		s.logger.WithError(err).WithField("slug", slug).Error("Error fetching asset by slug")
		return nil
	}

	for _, asset := range s.normalizeAll(records) {
		if asset.Slug == slug {
			found := asset
			return &found
		}
	}
	return nil
}

// GetAssetByID fetches a single asset
func (s *Service) GetAssetByID(ctx context.Context, id string) *domain.Asset {
	if !s.client.Configured() || id == "" {
		return nil
	}

	resp, err := s.client.list(ctx, url.Values{"where": {idWhere(id, s.approvedOnly())}})
	if err != nil {
		s.logger.WithError(err).WithField("asset_id", id).Error("Error fetching asset by ID")
		return nil
	}

	assets := s.normalizeAll(resp.List)
	if len(assets) == 0 {
		return nil
	}
	return &assets[0]
}

// IncrementViewCount reads the current count and writes back count+1.
// Two concurrent calls can both read the same value, in which case one
// increment is lost.
func (s *Service) IncrementViewCount(ctx context.Context, id string) bool {
	if !s.client.Configured() || id == "" {
		return false
	}
	log := s.logger.WithField("asset_id", id)

	current, err := s.client.getRecord(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to fetch asset for view count update")
		return false
	}

	next := viewCount(current) + 1
	if err := s.client.updateRecord(ctx, map[string]interface{}{
		"Id":         recordID(id),
		"view_count": next,
	}); err != nil {
		log.WithError(err).Error("Failed to update view count")
		return false
	}

	log.WithField("view_count", next).Debug("Updated view count")
	return true
}

// AssetsForStaticGeneration returns the newest approved assets for page
// pre-generation. It gives up after ten seconds and returns nothing.
func (s *Service) AssetsForStaticGeneration(ctx context.Context, limit int) []domain.Asset {
	if !s.client.Configured() {
		s.logger.Warn("NocoDB configuration missing, skipping static generation")
		return []domain.Asset{}
	}
	if limit <= 0 {
		limit = defaultStaticLimit
	}

	ctx, cancel := context.WithTimeout(ctx, staticGenerationTimeout)
	defer cancel()

	resp, err := s.client.list(ctx, url.Values{
		"where": {approvedCondition},
		"limit": {strconv.Itoa(limit)},
		"sort":  {"-created_at"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("NocoDB not reachable for static generation")
		return []domain.Asset{}
	}

	return s.normalizeAll(resp.List)
}

// SubmitAsset stores a visitor submission for moderation
func (s *Service) SubmitAsset(ctx context.Context, sub domain.AssetSubmission) (string, error) {
	if !s.client.Configured() {
		return "", ErrNotConfigured
	}

	rec, err := s.client.createRecord(ctx, map[string]interface{}{
		"title":         sub.Title,
		"company":       sub.Company,
		"category":      sub.Category,
		"tags":          sub.Tags,
		"industry_tags": nullable(sub.IndustryTags),
		"design_style":  nullable(strings.Join(sub.DesignStyle, ",")),
		"file_url":      sub.FileURL,
		"source_url":    nullable(sub.SourceURL),
		"made_by_db":    0,
		"approved":      0,
		"added_by":      sub.AddedBy,
		"notes":         nullable(sub.Notes),
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit asset: %w", err)
	}

	id := firstString(rec, "Id", "id")
	s.logger.WithField("asset_id", id).Info("Asset submitted for review")
	return id, nil
}

func (s *Service) normalizeAll(records []record) []domain.Asset {
	now := s.now()
	assets := make([]domain.Asset, 0, len(records))
	for _, rec := range records {
		asset := normalize(rec, s.fileBaseURL, now)
		if s.approvedOnly() && !asset.Approved {
			continue
		}
		assets = append(assets, asset)
	}
	return assets
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// recordID sends numeric primary keys as numbers
func recordID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
