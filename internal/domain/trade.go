package domain

// Trade is the immutable record of a single match between a resting (maker)
// order and an incoming (taker) order. Produced only by the order book and
// never mutated afterwards.
type Trade struct {
	Time       float64 // seconds since market open
	Instrument Instrument
	Price      int64
	Volume     int64
	Aggressor  Side   // side of the incoming order
	Maker      string // trader name, empty for market-data orders
	Taker      string
	MakerOrder uint32
	TakerOrder uint32
}
