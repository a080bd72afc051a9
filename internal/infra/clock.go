package infra

import (
	"sync"
	"time"
)

// Clock abstracts wall time so tests can run the engine against a
// controlled source.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock for tests. Time only moves when Advance is called.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MatchClock converts wall time into match time: seconds since market open,
// scaled by the configured speed multiplier. Before Start it reports zero,
// which the engine treats as "market not yet open".
type MatchClock struct {
	clock Clock
	speed float64

	mu      sync.RWMutex
	started bool
	openAt  time.Time
}

func NewMatchClock(clock Clock, speed float64) *MatchClock {
	return &MatchClock{clock: clock, speed: speed}
}

// Start records the market open instant. Safe to call once.
func (m *MatchClock) Start() {
	m.mu.Lock()
	m.started = true
	m.openAt = m.clock.Now()
	m.mu.Unlock()
}

// Started reports whether the market has opened.
func (m *MatchClock) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Now returns the current match time in seconds, or zero before open.
func (m *MatchClock) Now() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return 0
	}
	return m.clock.Now().Sub(m.openAt).Seconds() * m.speed
}
