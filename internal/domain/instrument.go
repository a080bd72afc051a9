package domain

import "github.com/shopspring/decimal"

// Instrument identifies one of the two products traded in a match: the
// reference future and the ETF that tracks it. Autotraders may only rest
// orders in the ETF book; the future is traded through hedge requests.
type Instrument uint8

const (
	InstrumentFuture Instrument = 0
	InstrumentEtf    Instrument = 1
)

func (i Instrument) String() string {
	if i == InstrumentEtf {
		return "ETF"
	}
	return "FUTURE"
}

// InstrumentSpec holds the static parameters of the traded instrument pair.
// Prices throughout the engine are integer cents; TickSizeCents is the
// minimum price increment and EtfClamp bounds how far the ETF may be valued
// from the contemporaneous future price.
type InstrumentSpec struct {
	TickSizeCents int64
	EtfClamp      decimal.Decimal
}

// ValidPrice reports whether a price is a multiple of the tick size.
func (s InstrumentSpec) ValidPrice(price int64) bool {
	return s.TickSizeCents > 0 && price%s.TickSizeCents == 0
}

// ClampEtfPrice bounds an ETF price to within +/-EtfClamp of the future
// price. The clamp distance is rounded down to a tick multiple so the
// clamped price stays on the grid.
func (s InstrumentSpec) ClampEtfPrice(futurePrice, etfPrice int64) int64 {
	delta := s.EtfClamp.Mul(decimal.NewFromInt(futurePrice)).Round(0).IntPart()
	delta -= delta % s.TickSizeCents
	if min := futurePrice - delta; etfPrice < min {
		return min
	}
	if max := futurePrice + delta; etfPrice > max {
		return max
	}
	return etfPrice
}
