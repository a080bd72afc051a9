package risk

import (
	"testing"

	"exchange_go/internal/domain"
)

func testLimits() Limits {
	return Limits{
		MessageFrequencyLimit:    50,
		MessageFrequencyInterval: 1.0,
		ActiveOrderCountLimit:    10,
		ActiveVolumeLimit:        200,
		PositionLimit:            100,
	}
}

func TestCheckInsertAccepts(t *testing.T) {
	tr := NewTracker(testLimits())
	if rej := tr.CheckInsert(1, domain.SideBuy, 50, 0); rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
}

func TestCheckInsertOrderCountLimit(t *testing.T) {
	tr := NewTracker(testLimits())
	for i := 0; i < 10; i++ {
		tr.Reserve(1)
	}
	rej := tr.CheckInsert(11, domain.SideBuy, 1, 0)
	if rej == nil || rej.Reason != domain.RejectTooManyOpenOrders {
		t.Fatalf("rejection = %v, want active order count breach", rej)
	}
}

func TestCheckInsertVolumeLimit(t *testing.T) {
	tr := NewTracker(testLimits())
	tr.Reserve(150)
	rej := tr.CheckInsert(2, domain.SideBuy, 51, 0)
	if rej == nil || rej.Reason != domain.RejectVolumeLimit {
		t.Fatalf("rejection = %v, want active volume breach", rej)
	}
	if rej := tr.CheckInsert(2, domain.SideBuy, 50, 0); rej != nil {
		t.Fatalf("volume exactly at the limit must pass, got %v", rej)
	}
}

func TestCheckInsertPositionLimit(t *testing.T) {
	tr := NewTracker(testLimits())

	// Position 95, buying 10 more would reach 105.
	rej := tr.CheckInsert(3, domain.SideBuy, 10, 95)
	if rej == nil || rej.Reason != domain.RejectPositionLimit {
		t.Fatalf("rejection = %v, want position limit breach", rej)
	}
	if rej := tr.CheckInsert(3, domain.SideBuy, 5, 95); rej != nil {
		t.Fatalf("buy to exactly the limit must pass, got %v", rej)
	}
	if rej := tr.CheckInsert(4, domain.SideSell, 10, -95); rej == nil {
		t.Fatal("short position breach must be rejected")
	}
}

func TestReserveAndRelease(t *testing.T) {
	tr := NewTracker(testLimits())

	tr.Reserve(30)
	tr.Reserve(20)
	if tr.ActiveOrders() != 2 || tr.ActiveVolume() != 50 {
		t.Fatalf("counters = %d orders / %d volume, want 2/50", tr.ActiveOrders(), tr.ActiveVolume())
	}

	tr.ReleaseVolume(30)
	tr.ReleaseOrder()
	if tr.ActiveOrders() != 1 || tr.ActiveVolume() != 20 {
		t.Fatalf("counters = %d orders / %d volume, want 1/20", tr.ActiveOrders(), tr.ActiveVolume())
	}
}
