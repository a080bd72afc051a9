package infra

import (
	"testing"
	"time"
)

func TestMatchClockZeroBeforeOpen(t *testing.T) {
	mc := NewMatchClock(NewManualClock(time.Unix(1000, 0)), 4.0)

	if mc.Started() {
		t.Fatal("clock reports started before Start")
	}
	if got := mc.Now(); got != 0 {
		t.Errorf("match time before open = %v, want 0", got)
	}
}

func TestMatchClockScalesBySpeed(t *testing.T) {
	wall := NewManualClock(time.Unix(1000, 0))
	mc := NewMatchClock(wall, 4.0)
	mc.Start()

	if got := mc.Now(); got != 0 {
		t.Errorf("match time at open = %v, want 0", got)
	}

	wall.Advance(2 * time.Second)
	if got := mc.Now(); got != 8.0 {
		t.Errorf("match time after 2s wall at 4x = %v, want 8", got)
	}

	wall.Advance(500 * time.Millisecond)
	if got := mc.Now(); got != 10.0 {
		t.Errorf("match time = %v, want 10", got)
	}
}

func TestManualClockAdvance(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))
	c.Advance(time.Minute)

	if got := c.Now(); !got.Equal(time.Unix(60, 0)) {
		t.Errorf("now = %v, want 60s after epoch", got)
	}
}
