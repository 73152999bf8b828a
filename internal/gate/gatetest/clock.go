// Package gatetest provides deterministic time and auth sources for gate tests
package gatetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"stash-api/internal/gate"
)

// ManualClock only moves when told to. Timers fire synchronously inside
// Advance, in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) gate.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d and fires every timer that came due
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, pending []*manualTimer
	for _, t := range c.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}

// Pending is the number of timers not yet fired or stopped
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Time
	fn       func()
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	for i, pending := range t.clock.timers {
		if pending == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

// AuthSource is a scriptable gate.AuthSource
type AuthSource struct {
	mu          sync.Mutex
	session     bool
	err         error
	subscribers map[int]func(bool)
	nextID      int
}

func NewAuthSource(signedIn bool) *AuthSource {
	return &AuthSource{session: signedIn, subscribers: make(map[int]func(bool))}
}

// FailWith makes the next session queries return err
func (a *AuthSource) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *AuthSource) Session(context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	return a.session, nil
}

func (a *AuthSource) Subscribe(fn func(bool)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	a.subscribers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subscribers, id)
	}
}

// Subscribers is the number of live subscriptions
func (a *AuthSource) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subscribers)
}

// Emit changes the session and notifies every subscriber
func (a *AuthSource) Emit(signedIn bool) {
	a.mu.Lock()
	a.session = signedIn
	fns := make([]func(bool), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(signedIn)
	}
}
