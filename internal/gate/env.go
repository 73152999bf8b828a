package gate

import "time"

// Environment is what a gate needs to know about where it runs. A visitor
// without persistent storage (server rendering, cookies refused) is never
// gated because nothing about them can be remembered.
type Environment interface {
	HasPersistentStorage() bool
	Now() time.Time
}

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Clock supplies time and delayed callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type environment struct {
	persistent bool
	clock      Clock
}

// NewEnvironment returns an Environment reading time from clock
func NewEnvironment(persistent bool, clock Clock) Environment {
	if clock == nil {
		clock = SystemClock()
	}
	return &environment{persistent: persistent, clock: clock}
}

func (e *environment) HasPersistentStorage() bool {
	return e.persistent
}

func (e *environment) Now() time.Time {
	return e.clock.Now()
}
