package event

import "sync"

// Pools for the high-frequency event types. Insert and cancel requests
// dominate traffic during a match; pooling them keeps GC pressure off the
// hot path.
//
// Usage:
//
//	ev := AcquireInsertEvent()
//	ev.ClientOrderID = id
//	// ... send through the inbox; the consumer releases it ...
var insertPool = sync.Pool{
	New: func() interface{} {
		return &InsertEvent{}
	},
}

// AcquireInsertEvent gets an InsertEvent from the pool. The returned event
// has zero values and must be initialized.
func AcquireInsertEvent() *InsertEvent {
	return insertPool.Get().(*InsertEvent)
}

// ReleaseInsertEvent returns an InsertEvent to the pool after processing.
func ReleaseInsertEvent(ev *InsertEvent) {
	if ev == nil {
		return
	}
	ev.Conn = nil
	ev.Ts = 0
	ev.ClientOrderID = 0
	ev.Side = 0
	ev.Price = 0
	ev.Volume = 0
	ev.Lifespan = 0

	insertPool.Put(ev)
}

var cancelPool = sync.Pool{
	New: func() interface{} {
		return &CancelEvent{}
	},
}

// AcquireCancelEvent gets a CancelEvent from the pool.
func AcquireCancelEvent() *CancelEvent {
	return cancelPool.Get().(*CancelEvent)
}

// ReleaseCancelEvent returns a CancelEvent to the pool.
func ReleaseCancelEvent(ev *CancelEvent) {
	if ev == nil {
		return
	}
	ev.Conn = nil
	ev.Ts = 0
	ev.ClientOrderID = 0

	cancelPool.Put(ev)
}

// Warmup pre-allocates a batch of pooled events at startup.
func Warmup() {
	const batchSize = 1000

	inserts := make([]*InsertEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		inserts = append(inserts, AcquireInsertEvent())
	}
	for _, ev := range inserts {
		ReleaseInsertEvent(ev)
	}

	cancels := make([]*CancelEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		cancels = append(cancels, AcquireCancelEvent())
	}
	for _, ev := range cancels {
		ReleaseCancelEvent(ev)
	}
}
