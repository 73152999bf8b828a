package handler

import (
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stash-api/internal/domain"
	"stash-api/internal/gate"
	"stash-api/internal/middleware"
	"stash-api/internal/nocodb"
	"stash-api/internal/service"
	"stash-api/pkg/errors"
	"stash-api/pkg/logger"
	"stash-api/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// Listings may be served from a shared cache for five minutes
const listCacheControl = "public, s-maxage=300, stale-while-revalidate=600"

const (
	defaultStaticLimit = 100
	maxStaticLimit     = 1000
)

// AssetHandler serves the catalog
type AssetHandler struct {
	assets    service.AssetService
	gates     *gate.Service
	analytics service.AnalyticsService
	logger    *logger.Logger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(assets service.AssetService, gates *gate.Service, analytics service.AnalyticsService, logger *logger.Logger) *AssetHandler {
	return &AssetHandler{
		assets:    assets,
		gates:     gates,
		analytics: analytics,
		logger:    logger.Named("assets"),
	}
}

// StaticPath is one pre-renderable design page
type StaticPath struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ViewRequest is the body of POST /api/views
type ViewRequest struct {
	AssetID string `json:"assetId"`
}

// DesignResponse is an asset page with its detail gate decision
type DesignResponse struct {
	Asset    *domain.Asset        `json:"asset"`
	Decision *domain.GateDecision `json:"gate"`
}

// SubmitResponse acknowledges a submission awaiting moderation
type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// List handles GET /api/assets
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	assets := h.assets.ListAssets(r.Context(), parseFilters(r.URL.Query()))

	w.Header().Set("Cache-Control", listCacheControl)
	respondJSON(w, http.StatusOK, assets)
}

// Get handles GET /api/assets/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeErrorResponse(w, r, errors.NewValidationError("id is required", nil), h.logger)
		return
	}

	asset := h.assets.GetAssetByID(r.Context(), id)
	if asset == nil {
		writeErrorResponse(w, r, errors.NewNotFoundError("Asset not found"), h.logger)
		return
	}

	w.Header().Set("Cache-Control", listCacheControl)
	respondJSON(w, http.StatusOK, asset)
}

// Gallery handles GET /api/gallery. Anonymous visitors in list mode get
// the listing split at their free slice.
func (h *AssetHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assets := h.assets.ListAssets(ctx, parseFilters(r.URL.Query()))

	gallery := domain.Gallery{
		Visible: assets,
		Hidden:  []domain.Asset{},
		Total:   len(assets),
	}
	open := domain.Open()
	gallery.Decision = &open

	if !middleware.IsAuthenticated(r) {
		g := h.gates.ForVisitor(middleware.VisitorFromContext(ctx))
		decision := g.ShouldGate(ctx, gate.ListCheck(len(assets)))
		gallery.Decision = &decision

		if !g.Exempt() && h.gates.Config().Mode == gate.ModeList {
			gallery.Visible, gallery.Hidden = gate.Partition(assets, h.gates.VisibleItemsCount(len(assets)))
		}
	}

	respondJSON(w, http.StatusOK, gallery)
}

// Design handles GET /api/designs/{slug}. The slug is matched exactly, so
// stored slugs in any form resolve.
func (h *AssetHandler) Design(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		slug = utils.ExtractSlugFromPath(r.URL.Path)
	}
	if slug == "" {
		writeErrorResponse(w, r, errors.NewNotFoundError("Design not found"), h.logger)
		return
	}

	asset := h.assets.GetAssetBySlug(ctx, slug)
	if asset == nil {
		writeErrorResponse(w, r, errors.NewNotFoundError("Design not found"), h.logger)
		return
	}

	decision := domain.Open()
	if !middleware.IsAuthenticated(r) {
		decision = h.gates.ForVisitor(middleware.VisitorFromContext(ctx)).ShouldGate(ctx, gate.DetailCheck())
	}

	respondJSON(w, http.StatusOK, DesignResponse{Asset: asset, Decision: &decision})
}

// StaticPaths handles GET /api/designs, the slugs a static build
// pre-renders, newest first
func (h *AssetHandler) StaticPaths(w http.ResponseWriter, r *http.Request) {
	limit := defaultStaticLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorResponse(w, r, errors.NewValidationError("limit must be a positive integer", nil), h.logger)
			return
		}
		limit = n
	}
	if limit > maxStaticLimit {
		limit = maxStaticLimit
	}

	assets := h.assets.AssetsForStaticGeneration(r.Context(), limit)
	paths := make([]StaticPath, 0, len(assets))
	for _, asset := range assets {
		if asset.Slug == "" {
			continue
		}
		paths = append(paths, StaticPath{Slug: asset.Slug, Title: asset.Title, CreatedAt: asset.CreatedAt})
	}

	w.Header().Set("Cache-Control", listCacheControl)
	respondJSON(w, http.StatusOK, paths)
}

// RecordView handles POST /api/views
func (h *AssetHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ViewRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}
	req.AssetID = strings.TrimSpace(req.AssetID)
	if req.AssetID == "" {
		writeErrorResponse(w, r, errors.NewValidationError("assetId is required", nil), h.logger)
		return
	}

	ok := h.assets.IncrementViewCount(ctx, req.AssetID)
	h.analytics.Track(ctx, domain.EventStashView, map[string]interface{}{"asset_id": req.AssetID})

	respondJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

// Submit handles POST /api/submit
func (h *AssetHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub domain.AssetSubmission
	if appErr := decodeJSON(w, r, &sub); appErr != nil {
		writeErrorResponse(w, r, appErr, h.logger)
		return
	}

	if user, ok := middleware.UserFromContext(ctx); ok && strings.TrimSpace(sub.AddedBy) == "" {
		sub.AddedBy = user.Email
	}

	if details := validateSubmission(&sub); len(details) > 0 {
		writeErrorResponse(w, r, errors.NewValidationError("Invalid submission", details), h.logger)
		return
	}

	id, err := h.assets.SubmitAsset(ctx, sub)
	if err != nil {
		if stderrors.Is(err, nocodb.ErrNotConfigured) {
			writeErrorResponse(w, r, errors.NewExternalError("Submissions are not available", err), h.logger)
			return
		}
		writeErrorResponse(w, r, errors.NewExternalError("Failed to submit asset", err), h.logger)
		return
	}

	h.logger.WithField("asset_id", id).Info("Asset submitted for review")
	respondJSON(w, http.StatusCreated, SubmitResponse{
		Success: true,
		ID:      id,
		Message: "Thanks! Your submission will appear once it is approved.",
	})
}

func parseFilters(q url.Values) domain.AssetFilters {
	filters := domain.AssetFilters{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("search")),
		Industry: strings.TrimSpace(q.Get("industry")),
	}
	switch strings.ToLower(q.Get("made_by_db")) {
	case "1", "true", "yes":
		filters.MadeByDB = true
	}
	for _, raw := range q["design_styles"] {
		for _, style := range strings.Split(raw, ",") {
			if style = strings.TrimSpace(style); style != "" {
				filters.DesignStyles = append(filters.DesignStyles, style)
			}
		}
	}
	return filters
}

// validateSubmission trims sub in place and returns per-field problems
func validateSubmission(sub *domain.AssetSubmission) map[string]interface{} {
	sub.Title = strings.TrimSpace(sub.Title)
	sub.Company = strings.TrimSpace(sub.Company)
	sub.Category = strings.TrimSpace(sub.Category)
	sub.FileURL = strings.TrimSpace(sub.FileURL)
	sub.SourceURL = strings.TrimSpace(sub.SourceURL)
	sub.AddedBy = strings.TrimSpace(sub.AddedBy)

	details := map[string]interface{}{}
	if sub.Title == "" {
		details["title"] = "required"
	}
	if sub.Company == "" {
		details["company"] = "required"
	}
	if sub.Category == "" {
		details["category"] = "required"
	}
	if !isHTTPURL(sub.FileURL) {
		details["file_url"] = "must be an http(s) URL"
	}
	if sub.SourceURL != "" && !isHTTPURL(sub.SourceURL) {
		details["source_url"] = "must be an http(s) URL"
	}
	if sub.AddedBy == "" {
		details["added_by"] = "required"
	}
	return details
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
