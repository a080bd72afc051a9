package risk

import "exchange_go/internal/domain"

// Limits holds the per-trader risk limit values for a match. Immutable
// after construction; supplied by the configuration loader.
type Limits struct {
	MessageFrequencyLimit    int
	MessageFrequencyInterval float64 // seconds
	ActiveOrderCountLimit    int
	ActiveVolumeLimit        int64
	PositionLimit            int64
}

// Tracker maintains one trader's active-order and active-volume counters
// and applies the pre-trade checks. Counters are reserved optimistically
// when an order is accepted and rolled back on cancel, amend or fill.
//
// Mutated only by the matching loop.
type Tracker struct {
	limits       Limits
	activeOrders int
	activeVolume int64
}

// NewTracker creates a tracker with zeroed counters.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{limits: limits}
}

// CheckInsert validates a new order against the active-order, active-volume
// and position limits, in that order, and returns the first violation.
// position is the trader's current signed position in the instrument.
func (t *Tracker) CheckInsert(id uint32, side domain.Side, volume, position int64) *domain.RejectError {
	if t.activeOrders >= t.limits.ActiveOrderCountLimit {
		return domain.NewReject(domain.RejectTooManyOpenOrders, id)
	}
	if t.activeVolume+volume > t.limits.ActiveVolumeLimit {
		return domain.NewReject(domain.RejectVolumeLimit, id)
	}
	resulting := position + volume
	if side == domain.SideSell {
		resulting = position - volume
	}
	if resulting > t.limits.PositionLimit || resulting < -t.limits.PositionLimit {
		return domain.NewReject(domain.RejectPositionLimit, id)
	}
	return nil
}

// CheckPosition validates a prospective signed position against the
// position limit. Used for hedge fills in the future.
func (t *Tracker) CheckPosition(id uint32, resulting int64) *domain.RejectError {
	if resulting > t.limits.PositionLimit || resulting < -t.limits.PositionLimit {
		return domain.NewReject(domain.RejectPositionLimit, id)
	}
	return nil
}

// Reserve counts a newly accepted order against the trader's limits.
func (t *Tracker) Reserve(volume int64) {
	t.activeOrders++
	t.activeVolume += volume
}

// ReleaseVolume rolls back reserved volume after a fill or amend.
func (t *Tracker) ReleaseVolume(volume int64) {
	t.activeVolume -= volume
}

// ReleaseOrder rolls back the order-count reservation once an order leaves
// the book (fully filled or cancelled).
func (t *Tracker) ReleaseOrder() {
	t.activeOrders--
}

// ActiveOrders returns the number of the trader's resting orders.
func (t *Tracker) ActiveOrders() int {
	return t.activeOrders
}

// ActiveVolume returns the total remaining volume of the trader's resting
// orders.
func (t *Tracker) ActiveVolume() int64 {
	return t.activeVolume
}
