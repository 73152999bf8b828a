package gate

import (
	"math"
	"strings"
	"time"

	"stash-api/internal/domain"
)

// Mode selects which kind of consumption is gated. Only one is enforced.
type Mode string

const (
	ModeList   Mode = "list"
	ModeDetail Mode = "detail"
)

// Config holds the gating thresholds
type Config struct {
	Mode Mode
	// QuotaList is the fraction of a listing an anonymous visitor may see
	QuotaList float64
	// QuotaDetail is how many detail pages an anonymous visitor may open
	QuotaDetail int
	ModalDelay  time.Duration
	SuppressFor time.Duration
	Location    *time.Location
}

// DefaultConfig mirrors the production defaults
func DefaultConfig() Config {
	return Config{
		Mode:        ModeList,
		QuotaList:   0.4,
		QuotaDetail: 3,
		ModalDelay:  500 * time.Millisecond,
		SuppressFor: 30 * time.Minute,
		Location:    time.Local,
	}
}

// Check is one gate question: may this visitor see a list of TotalCount
// items, or another detail page?
type Check struct {
	Type       domain.VisitorType `json:"type"`
	TotalCount *int               `json:"totalCount,omitempty"`
}

// ListCheck is a list-mode check over total items
func ListCheck(total int) Check {
	return Check{Type: domain.VisitorTypeList, TotalCount: &total}
}

// DetailCheck is a detail-mode check
func DetailCheck() Check {
	return Check{Type: domain.VisitorTypeDetail}
}

// Decide maps quota state to a decision. It assumes the caller already
// ruled out environments, previews and bots.
func Decide(state domain.QuotaState, check Check, cfg Config, now time.Time) domain.GateDecision {
	if state.Suppressed(now) {
		return domain.Open()
	}

	switch {
	case cfg.Mode == ModeList && check.Type == domain.VisitorTypeList:
		// An empty listing has nothing to protect
		if check.TotalCount == nil || *check.TotalCount <= 0 {
			return domain.Open()
		}
		allowed := ListAllowance(*check.TotalCount, cfg.QuotaList)
		return quotaDecision(state.ListSeen, allowed)

	case cfg.Mode == ModeDetail && check.Type == domain.VisitorTypeDetail:
		return quotaDecision(state.DetailSeen, cfg.QuotaDetail)
	}

	return domain.Open()
}

// ListAllowance is ceil(total * fraction)
func ListAllowance(total int, fraction float64) int {
	return int(math.Ceil(float64(total) * fraction))
}

func quotaDecision(current, allowed int) domain.GateDecision {
	decision := domain.GateDecision{
		Gated:        current >= allowed,
		Reason:       domain.GateReasonNone,
		AllowedCount: &allowed,
		CurrentCount: &current,
	}
	if decision.Gated {
		decision.Reason = domain.GateReasonQuota
	}
	return decision
}

var botPatterns = []string{
	"bot", "crawler", "spider", "scraper",
	"facebookexternalhit", "twitterbot", "linkedinbot",
	"slackbot", "whatsapp", "telegram",
}

// IsBotUserAgent reports whether userAgent looks like automated traffic
func IsBotUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
