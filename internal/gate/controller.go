package gate

import (
	"context"
	"sync"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/logger"
)

// State is where a mounted surface sits in the gating flow
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateChecking      State = "CHECKING"
	StateOpen          State = "OPEN"
	StateModalPending  State = "BLOCKED_MODAL_PENDING"
	StateModalShown    State = "BLOCKED_MODAL_SHOWN"
	StateAuthenticated State = "AUTHENTICATED"
)

// AuthSource is the authentication subsystem as the controller sees it
type AuthSource interface {
	// Session reports whether the visitor currently has a valid session
	Session(ctx context.Context) (bool, error)
	// Subscribe calls fn on every sign-in and sign-out until the returned
	// function is called
	Subscribe(fn func(authenticated bool)) (unsubscribe func())
}

// Tracker receives gate analytics
type Tracker interface {
	Track(ctx context.Context, name domain.EventName, props map[string]interface{})
}

// Snapshot is the controller's externally visible state
type Snapshot struct {
	State           State                `json:"state"`
	ShouldShowModal bool                 `json:"shouldShowModal"`
	Decision        *domain.GateDecision `json:"gateResult"`
	IsAuthenticated bool                 `json:"isAuthenticated"`
}

// Listener is called with every state change. It runs while the
// controller is locked and must not call back into it.
type Listener func(Snapshot)

// ControllerOptions configure one mounted surface
type ControllerOptions struct {
	Check    Check
	Disabled bool
	Listener Listener
	Tracker  Tracker
}

// Controller drives the gate for one mounted surface: it checks quota once,
// delays the sign-in prompt, and gives way to authentication whenever it
// arrives.
type Controller struct {
	gate  *Gate
	auth  AuthSource
	clock Clock
	opts  ControllerOptions
	log   *logger.Logger

	mu             sync.Mutex
	ctx            context.Context
	state          State
	decision       *domain.GateDecision
	authenticated  bool
	hasInitialized bool
	mounted        bool
	closed         bool
	modalTimer     Timer
	unsubscribe    func()
}

// NewController creates an unmounted controller
func NewController(g *Gate, auth AuthSource, opts ControllerOptions) *Controller {
	return &Controller{
		gate:  g,
		auth:  auth,
		clock: g.clock,
		opts:  opts,
		log:   g.log.WithField("visitor_type", opts.Check.Type),
		ctx:   context.Background(),
		state: StateUninitialized,
	}
}

// Mount subscribes to auth changes, queries the current session and runs
// the gate check. Calling it again is a no-op.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.closed {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.ctx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	// Subscribe before querying so a sign-in racing the query is not lost
	unsubscribe := c.auth.Subscribe(c.handleAuthChange)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	authenticated, err := c.auth.Session(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Session query failed, treating visitor as signed out")
		authenticated = false
	}

	if authenticated {
		c.handleAuthChange(true)
		return
	}

	c.initialize(ctx)
}

func (c *Controller) initialize(ctx context.Context) {
	c.mu.Lock()
	if c.opts.Disabled || c.hasInitialized || c.authenticated || c.closed {
		c.mu.Unlock()
		return
	}
	c.hasInitialized = true
	c.state = StateChecking
	c.notifyLocked()
	c.mu.Unlock()

	decision := c.gate.ShouldGate(ctx, c.opts.Check)

	var counts domain.GateCounts
	if decision.Gated {
		counts = c.gate.Counts(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Authentication won the race while the check was running
	if c.authenticated || c.closed {
		return
	}

	c.decision = &decision
	if !decision.Gated {
		c.state = StateOpen
		c.notifyLocked()
		return
	}

	c.state = StateModalPending
	c.notifyLocked()

	c.track(domain.EventGateImpression, map[string]interface{}{
		"type": string(c.opts.Check.Type),
	})
	allowed := 0
	if decision.AllowedCount != nil {
		allowed = *decision.AllowedCount
	}
	c.track(domain.EventGateBlock, map[string]interface{}{
		"quota": allowed,
		"counts": map[string]int{
			"listSeen":   counts.ListSeen,
			"detailSeen": counts.DetailSeen,
		},
	})

	c.modalTimer = c.clock.AfterFunc(c.gate.cfg.ModalDelay, c.presentModal)
}

func (c *Controller) presentModal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modalTimer = nil
	if c.state != StateModalPending {
		return
	}
	c.state = StateModalShown
	c.notifyLocked()
}

func (c *Controller) handleAuthChange(authenticated bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if !authenticated {
		// The surface stays absorbed; only the live flag follows sign-out
		changed := c.authenticated
		c.authenticated = false
		if changed {
			c.notifyLocked()
		}
		c.mu.Unlock()
		return
	}

	if c.authenticated && c.state == StateAuthenticated {
		c.mu.Unlock()
		return
	}

	c.authenticated = true
	c.state = StateAuthenticated
	c.stopTimerLocked()
	ctx := c.ctx
	c.notifyLocked()
	c.mu.Unlock()

	c.gate.ClearSuppression(ctx)
}

// RecordView counts a view unless the visitor is signed in or the surface
// is disabled
func (c *Controller) RecordView(ctx context.Context) {
	c.mu.Lock()
	skip := c.opts.Disabled || c.authenticated || c.closed
	c.mu.Unlock()
	if skip {
		return
	}
	c.gate.RecordView(ctx, c.opts.Check.Type)
}

// ShowModal forces the sign-in prompt open regardless of quota
func (c *Controller) ShowModal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated || c.closed || c.state == StateAuthenticated {
		return
	}

	c.stopTimerLocked()
	if c.decision == nil || !c.decision.Gated {
		forced := domain.GateDecision{Gated: true, Reason: domain.GateReasonForced}
		if c.decision != nil {
			forced.AllowedCount = c.decision.AllowedCount
			forced.CurrentCount = c.decision.CurrentCount
		}
		c.decision = &forced
	}
	c.state = StateModalShown
	c.track(domain.EventGateImpression, map[string]interface{}{
		"type": string(c.opts.Check.Type),
	})
	c.notifyLocked()
}

// HideModal dismisses the prompt. A positive suppress keeps this visitor
// ungated for that long, across surfaces and page loads.
func (c *Controller) HideModal(ctx context.Context, suppress time.Duration) {
	c.mu.Lock()
	if c.state == StateModalShown || c.state == StateModalPending {
		c.stopTimerLocked()
		c.state = StateOpen
		c.notifyLocked()
	}
	c.mu.Unlock()

	if suppress > 0 {
		c.gate.Suppress(ctx, suppress)
	}
}

// IsAuthenticated is the live session flag
func (c *Controller) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Decision returns the last computed decision, nil before the check ran
func (c *Controller) Decision() *domain.GateDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decision == nil {
		return nil
	}
	d := *c.decision
	return &d
}

// ShouldShowModal reports whether the prompt is on screen
func (c *Controller) ShouldShowModal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateModalShown && !c.authenticated
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current externally visible state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close cancels the modal timer and the auth subscription. The controller
// is inert afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) stopTimerLocked() {
	if c.modalTimer != nil {
		c.modalTimer.Stop()
		c.modalTimer = nil
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:           c.state,
		ShouldShowModal: c.state == StateModalShown && !c.authenticated,
		IsAuthenticated: c.authenticated,
	}
	if c.decision != nil {
		d := *c.decision
		snap.Decision = &d
	}
	return snap
}

func (c *Controller) notifyLocked() {
	if c.opts.Listener == nil || c.closed {
		return
	}
	c.opts.Listener(c.snapshotLocked())
}

func (c *Controller) track(name domain.EventName, props map[string]interface{}) {
	if c.opts.Tracker == nil {
		return
	}
	c.opts.Tracker.Track(c.ctx, name, props)
}
