package domain

import "time"

// VisitorType says which counter a gate check or view applies to
type VisitorType string

const (
	VisitorTypeList   VisitorType = "list"
	VisitorTypeDetail VisitorType = "detail"
)

// Valid reports whether t is a known visitor type
func (t VisitorType) Valid() bool {
	return t == VisitorTypeList || t == VisitorTypeDetail
}

// GateReason explains a gate decision
type GateReason string

const (
	GateReasonNone   GateReason = "none"
	GateReasonQuota  GateReason = "quota"
	GateReasonForced GateReason = "forced"
)

// QuotaState is what an anonymous visitor has consumed in the current window.
// Field names on the wire match the stored client format.
type QuotaState struct {
	ListSeen      int        `json:"listSeen"`
	DetailSeen    int        `json:"detailSeen"`
	LastReset     time.Time  `json:"lastReset"`
	SuppressUntil *time.Time `json:"suppressUntil,omitempty"`
}

// Suppressed reports whether gating is switched off at now
func (s QuotaState) Suppressed(now time.Time) bool {
	return s.SuppressUntil != nil && now.Before(*s.SuppressUntil)
}

// GateDecision is computed fresh on every check and never cached
type GateDecision struct {
	Gated        bool       `json:"gated"`
	Reason       GateReason `json:"reason"`
	AllowedCount *int       `json:"allowedCount,omitempty"`
	CurrentCount *int       `json:"currentCount,omitempty"`
}

// Open is the decision for anything that must never be blocked
func Open() GateDecision {
	return GateDecision{Gated: false, Reason: GateReasonNone}
}

// GateCounts is the debugging view of a visitor's quota
type GateCounts struct {
	ListSeen        int        `json:"listSeen"`
	DetailSeen      int        `json:"detailSeen"`
	SuppressedUntil *time.Time `json:"suppressedUntil,omitempty"`
}
