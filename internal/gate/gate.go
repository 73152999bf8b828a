package gate

import (
	"context"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/logger"
)

// Visitor describes who is asking, as seen by the HTTP layer
type Visitor struct {
	ID        string
	UserAgent string
	// Override is set by the operator preview cookie
	Override bool
	// Automated is set when the client announced a webdriver
	Automated bool
	// ServerRender marks requests made while rendering a page server side
	ServerRender bool
}

// HasPersistentStorage reports whether anything can be remembered about v
func (v Visitor) HasPersistentStorage() bool {
	return v.ID != "" && !v.ServerRender
}

// Service builds per-visitor gates from shared configuration
type Service struct {
	cfg     Config
	storage StorageProvider
	clock   Clock
	log     *logger.Logger
}

// NewService creates a gate service
func NewService(cfg Config, storage StorageProvider, clock Clock, log *logger.Logger) *Service {
	if storage == nil {
		storage = NewMemoryProvider()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		cfg:     cfg,
		storage: storage,
		clock:   clock,
		log:     log.Named("gate"),
	}
}

// Config returns the active gating configuration
func (s *Service) Config() Config {
	return s.cfg
}

// ForVisitor returns the gate for one visitor
func (s *Service) ForVisitor(v Visitor) *Gate {
	env := NewEnvironment(v.HasPersistentStorage(), s.clock)

	var storage Storage
	if env.HasPersistentStorage() {
		storage = s.storage.ForVisitor(v.ID)
	}

	return &Gate{
		visitor: v,
		env:     env,
		cfg:     s.cfg,
		clock:   s.clock,
		store:   NewStore(storage, env, s.cfg.Location, s.log),
		log:     s.log,
	}
}

// sweeper is implemented by providers holding visitor state in process
type sweeper interface {
	Sweep() int
}

// SweepStorage drops idle in-process visitor state. Providers with their
// own expiry, like Redis, are left alone.
func (s *Service) SweepStorage() int {
	if sw, ok := s.storage.(sweeper); ok {
		return sw.Sweep()
	}
	return 0
}

// VisibleItemsCount is how many of total listed items an anonymous
// visitor sees before the rest are blurred
func (s *Service) VisibleItemsCount(total int) int {
	if s.cfg.Mode != ModeList {
		return total
	}
	allowed := ListAllowance(total, s.cfg.QuotaList)
	if allowed > total {
		return total
	}
	return allowed
}

// ShouldBlurItem reports whether the item at index is past the free slice
func (s *Service) ShouldBlurItem(index, total int) bool {
	if s.cfg.Mode != ModeList {
		return false
	}
	return index >= s.VisibleItemsCount(total)
}

// Gate answers quota questions for a single visitor
type Gate struct {
	visitor Visitor
	env     Environment
	cfg     Config
	clock   Clock
	store   *Store
	log     *logger.Logger
}

// Exempt reports whether this visitor is never gated: nothing can be
// remembered about it, an operator preview is active, or it is automated.
func (g *Gate) Exempt() bool {
	if !g.env.HasPersistentStorage() {
		return true
	}
	if g.visitor.Override {
		return true
	}
	return g.visitor.Automated || IsBotUserAgent(g.visitor.UserAgent)
}

// ShouldGate decides whether check must be blocked for this visitor
func (g *Gate) ShouldGate(ctx context.Context, check Check) domain.GateDecision {
	if g.Exempt() {
		return domain.Open()
	}

	return Decide(g.store.Load(ctx), check, g.cfg, g.env.Now())
}

// RecordView counts one more list item or detail page
func (g *Gate) RecordView(ctx context.Context, t domain.VisitorType) {
	if !g.env.HasPersistentStorage() {
		return
	}

	state := g.store.Load(ctx)
	switch t {
	case domain.VisitorTypeList:
		state.ListSeen++
	case domain.VisitorTypeDetail:
		state.DetailSeen++
	default:
		return
	}
	g.store.Save(ctx, state)
}

// Suppress switches gating off for d, or for the configured default when
// d is not positive
func (g *Gate) Suppress(ctx context.Context, d time.Duration) time.Time {
	if d <= 0 {
		d = g.cfg.SuppressFor
	}
	until := g.env.Now().Add(d)

	if !g.env.HasPersistentStorage() {
		return until
	}

	state := g.store.Load(ctx)
	state.SuppressUntil = &until
	g.store.Save(ctx, state)

	g.log.WithFields(map[string]interface{}{
		"duration_ms":    d.Milliseconds(),
		"suppress_until": until,
	}).Debug("Gate suppressed")
	return until
}

// ClearSuppression ends any suppression window early
func (g *Gate) ClearSuppression(ctx context.Context) {
	if !g.env.HasPersistentStorage() {
		return
	}
	state := g.store.Load(ctx)
	if state.SuppressUntil == nil {
		return
	}
	state.SuppressUntil = nil
	g.store.Save(ctx, state)
}

// Reset starts a fresh window with zero counts
func (g *Gate) Reset(ctx context.Context) {
	g.store.Save(ctx, domain.QuotaState{LastReset: g.env.Now()})
}

// Forget removes the visitor's stored state
func (g *Gate) Forget(ctx context.Context) {
	g.store.Clear(ctx)
}

// Counts reports the visitor's current window
func (g *Gate) Counts(ctx context.Context) domain.GateCounts {
	state := g.store.Load(ctx)
	return domain.GateCounts{
		ListSeen:        state.ListSeen,
		DetailSeen:      state.DetailSeen,
		SuppressedUntil: state.SuppressUntil,
	}
}

// Config returns the thresholds the gate evaluates against
func (g *Gate) Config() Config {
	return g.cfg
}

// Partition splits a listing into what an anonymous visitor sees and what
// stays blurred. Curated assets are always visible and use up the free
// slice first.
func Partition(assets []domain.Asset, visibleCount int) (visible, hidden []domain.Asset) {
	curated := make([]domain.Asset, 0, len(assets))
	regular := make([]domain.Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.MadeByDB {
			curated = append(curated, asset)
		} else {
			regular = append(regular, asset)
		}
	}

	cut := visibleCount - len(curated)
	if cut < 0 {
		cut = 0
	}
	if cut > len(regular) {
		cut = len(regular)
	}

	visible = append(curated, regular[:cut]...)
	hidden = append([]domain.Asset{}, regular[cut:]...)
	return visible, hidden
}
