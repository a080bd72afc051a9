package risk

// FrequencyLimiter enforces a sliding-window limit on the number of events
// in a trailing interval. It must be fed a monotonically non-decreasing
// sequence of times. One instance exists per trader session.
type FrequencyLimiter struct {
	events   []float64
	head     int
	interval float64
	limit    int
}

// NewFrequencyLimiter creates a limiter allowing at most limit events per
// trailing interval seconds.
func NewFrequencyLimiter(interval float64, limit int) *FrequencyLimiter {
	return &FrequencyLimiter{interval: interval, limit: limit}
}

// CheckEvent records an event at the given time and reports whether it
// breaches the limit. The window is strictly trailing: events older than
// now-interval no longer count.
func (f *FrequencyLimiter) CheckEvent(now float64) bool {
	f.events = append(f.events, now)

	windowStart := now - f.interval
	for f.events[f.head] <= windowStart {
		f.head++
	}

	// Compact once the dead prefix dominates to keep the slice bounded.
	if f.head > len(f.events)/2 {
		f.events = append(f.events[:0], f.events[f.head:]...)
		f.head = 0
	}

	return f.Value() > f.limit
}

// Value returns the number of events currently inside the window.
func (f *FrequencyLimiter) Value() int {
	return len(f.events) - f.head
}

// Limit returns the configured event limit.
func (f *FrequencyLimiter) Limit() int {
	return f.limit
}
