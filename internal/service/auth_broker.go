package service

import (
	"context"
	"sync"

	"stash-api/internal/gate"
	"stash-api/pkg/logger"
)

// AuthBroker fans sign-in and sign-out out to every open surface of a
// visitor within this process.
type AuthBroker struct {
	mu     sync.Mutex
	subs   map[string]map[int]func(bool)
	state  map[string]bool
	next   int
	logger *logger.Logger
}

// NewAuthBroker creates an empty broker
func NewAuthBroker(logger *logger.Logger) *AuthBroker {
	return &AuthBroker{
		subs:   make(map[string]map[int]func(bool)),
		state:  make(map[string]bool),
		logger: logger.Named("auth_broker"),
	}
}

// Subscribe registers fn for a visitor's auth changes
func (b *AuthBroker) Subscribe(visitorID string, fn func(authenticated bool)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[visitorID] == nil {
		b.subs[visitorID] = make(map[int]func(bool))
	}
	b.subs[visitorID][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(visitorID, id) })
	}
}

// Publish records the visitor's new auth state and delivers it to current
// subscribers, in the caller's goroutine. It returns how many were notified.
func (b *AuthBroker) Publish(visitorID string, authenticated bool) int {
	b.mu.Lock()
	if authenticated {
		b.state[visitorID] = true
	} else {
		delete(b.state, visitorID)
	}
	subs := b.subs[visitorID]
	fns := make([]func(bool), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(authenticated)
	}

	b.logger.WithFields(map[string]interface{}{
		"authenticated": authenticated,
		"subscribers":   len(fns),
	}).Debug("Auth change published")
	return len(fns)
}

// Subscribers is the number of live subscriptions for a visitor
func (b *AuthBroker) Subscribers(visitorID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[visitorID])
}

// Source returns the gate's view of one visitor's session. authenticated is
// what the request carried; a later publish for the visitor overrides it.
func (b *AuthBroker) Source(visitorID string, authenticated bool) gate.AuthSource {
	b.mu.Lock()
	if b.state[visitorID] {
		authenticated = true
	}
	b.mu.Unlock()

	return &visitorAuth{broker: b, visitorID: visitorID, authenticated: authenticated}
}

func (b *AuthBroker) remove(visitorID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[visitorID]
	if subs == nil {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.subs, visitorID)
	}
}

type visitorAuth struct {
	broker    *AuthBroker
	visitorID string

	mu            sync.Mutex
	authenticated bool
}

func (a *visitorAuth) Session(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated, nil
}

func (a *visitorAuth) Subscribe(fn func(authenticated bool)) func() {
	return a.broker.Subscribe(a.visitorID, func(authenticated bool) {
		a.mu.Lock()
		a.authenticated = authenticated
		a.mu.Unlock()
		fn(authenticated)
	})
}
