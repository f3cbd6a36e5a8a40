package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the ticket flows.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns a clock backed by the system time.
func Real() Clock {
	return realClock{}
}

// Now returns the current UTC time at database precision.
func (realClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
