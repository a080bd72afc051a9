package risk

import "testing"

func TestFrequencyLimiterUnderLimit(t *testing.T) {
	f := NewFrequencyLimiter(1.0, 3)

	for i := 0; i < 3; i++ {
		if f.CheckEvent(0.1 * float64(i)) {
			t.Fatalf("event %d should be within the limit", i+1)
		}
	}
	if f.Value() != 3 {
		t.Errorf("window holds %d events, want 3", f.Value())
	}
}

func TestFrequencyLimiterBreach(t *testing.T) {
	f := NewFrequencyLimiter(1.0, 3)

	f.CheckEvent(0.0)
	f.CheckEvent(0.1)
	f.CheckEvent(0.2)
	if !f.CheckEvent(0.3) {
		t.Error("fourth event inside the window must breach")
	}
}

func TestFrequencyLimiterWindowSlides(t *testing.T) {
	f := NewFrequencyLimiter(1.0, 3)

	f.CheckEvent(0.0)
	f.CheckEvent(0.1)
	f.CheckEvent(0.2)

	// 1.2 seconds later the first three have aged out.
	if f.CheckEvent(1.3) {
		t.Error("events outside the window must not count")
	}
	if f.Value() != 1 {
		t.Errorf("window holds %d events, want 1", f.Value())
	}
}

func TestFrequencyLimiterCompacts(t *testing.T) {
	f := NewFrequencyLimiter(0.5, 1000)

	// Many expired events force the internal buffer to compact; behavior
	// must be unaffected.
	for i := 0; i < 500; i++ {
		f.CheckEvent(float64(i) * 0.01)
	}
	if f.CheckEvent(100.0) {
		t.Error("a lone event after a quiet period must not breach")
	}
	if f.Value() != 1 {
		t.Errorf("window holds %d events, want 1", f.Value())
	}
}
