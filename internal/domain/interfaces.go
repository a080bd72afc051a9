package domain

// OrderListener receives lifecycle callbacks for an order owned by the book.
// All callbacks run on the matching loop goroutine.
type OrderListener interface {
	// OnOrderPlaced is called when a good-for-day order rests in the book.
	OnOrderPlaced(now float64, order *Order)
	// OnOrderFilled is called for each partial or complete fill.
	OnOrderFilled(now float64, order *Order, price, volume, fee int64)
	// OnOrderAmended is called when an order's volume is reduced.
	OnOrderAmended(now float64, order *Order, volumeRemoved int64)
	// OnOrderCancelled is called when an order is removed from the book.
	OnOrderCancelled(now float64, order *Order, volumeRemoved int64)
}

// ExecutionConnection is the engine's view of one trader's execution
// channel. Implementations must be safe to call from the matching loop and
// must never block it.
type ExecutionConnection interface {
	SendError(clientOrderID uint32, message string)
	SendOrderStatus(clientOrderID uint32, fillVolume, remainingVolume, fees int64)
	SendOrderFilled(clientOrderID uint32, price, volume int64)
	SendHedgeFilled(clientOrderID uint32, averagePrice, volume int64)
	Close()
}
