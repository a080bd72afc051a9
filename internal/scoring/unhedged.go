package scoring

const (
	// MaxUnhedgedLots is the tolerated magnitude of the combined
	// ETF-plus-future position before the hedge clock starts.
	MaxUnhedgedLots = 10
	// UnhedgedTimeLimit is how long (match seconds) lots may stay
	// unhedged beyond the tolerance before the trader is in breach.
	UnhedgedTimeLimit = 60.0
)

// UnhedgedLots watches a trader's combined relative position. When it moves
// beyond the tolerance a deadline starts; returning inside the tolerance
// clears it. Expiry is evaluated on timer ticks, keeping the check
// deterministic under replay.
type UnhedgedLots struct {
	Relative int64
	deadline float64
	armed    bool
}

// ApplyDelta shifts the relative position (positive for buys of either
// instrument, negative for sells).
func (u *UnhedgedLots) ApplyDelta(now float64, delta int64) {
	u.Relative += delta
	over := u.Relative > MaxUnhedgedLots || u.Relative < -MaxUnhedgedLots
	switch {
	case over && !u.armed:
		u.armed = true
		u.deadline = now + UnhedgedTimeLimit
	case !over:
		u.armed = false
	}
}

// Expired reports whether unhedged lots have been held past the time limit.
func (u *UnhedgedLots) Expired(now float64) bool {
	return u.armed && now >= u.deadline
}
