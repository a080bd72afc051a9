package domain

// Side identifies which side of the book an order belongs to.
type Side uint8

const (
	SideSell Side = 0
	SideBuy  Side = 1
)

func (s Side) Valid() bool {
	return s == SideSell || s == SideBuy
}

// String returns the single-letter code used in the match event log.
func (s Side) String() string {
	if s == SideBuy {
		return "B"
	}
	return "A"
}

// Lifespan determines what happens to the unfilled remainder of an order
// once it has traded against all crossing liquidity.
type Lifespan uint8

const (
	// FillAndKill orders trade immediately if possible, the remainder is cancelled.
	FillAndKill Lifespan = 0
	// GoodForDay orders rest in the book until they trade or are cancelled.
	GoodForDay Lifespan = 1
)

func (l Lifespan) Valid() bool {
	return l == FillAndKill || l == GoodForDay
}

// String returns the single-letter code used in the match event log.
func (l Lifespan) String() string {
	if l == GoodForDay {
		return "G"
	}
	return "F"
}

// Order is a request to buy or sell at a given price.
//
// Once accepted, the order is owned exclusively by the order book; everything
// else (risk counters, the replay driver's index) holds a reference and is
// kept in sync through the OrderListener callbacks. Prices are integer cents
// and must be a multiple of the instrument tick size. Volumes are lots.
type Order struct {
	ClientOrderID uint32
	Trader        string // empty for replayed market-data orders
	Instrument    Instrument
	Side          Side
	Lifespan      Lifespan
	Price         int64
	Volume        int64 // original volume, never mutated after creation
	Remaining     int64
	TotalFees     int64

	Listener OrderListener
}

// NewOrder creates an order with its full volume remaining.
func NewOrder(id uint32, trader string, instrument Instrument, lifespan Lifespan, side Side, price, volume int64, l OrderListener) *Order {
	return &Order{
		ClientOrderID: id,
		Trader:        trader,
		Instrument:    instrument,
		Lifespan:      lifespan,
		Side:          side,
		Price:         price,
		Volume:        volume,
		Remaining:     volume,
		Listener:      l,
	}
}

// FilledVolume returns the volume traded so far.
func (o *Order) FilledVolume() int64 {
	return o.Volume - o.Remaining
}

// IsOpen checks if the order still has volume in the book.
func (o *Order) IsOpen() bool {
	return o.Remaining > 0
}
