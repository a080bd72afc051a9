package scoring

import "exchange_go/internal/domain"

// Account tracks one trader's cash and positions. All monetary values are
// integer cents. Mutated only by confirmed trades, never by pending orders,
// and only on the matching loop goroutine.
type Account struct {
	spec domain.InstrumentSpec

	Balance        int64
	BuyVolume      int64
	SellVolume     int64
	EtfPosition    int64
	FuturePosition int64
	TotalFees      int64
	ProfitOrLoss   int64
	MaxProfit      int64
	MaxDrawdown    int64
}

// NewAccount creates a zeroed account for the given instrument parameters.
func NewAccount(spec domain.InstrumentSpec) *Account {
	return &Account{spec: spec}
}

// Transact applies one confirmed fill: cash moves by price*volume (buys pay,
// sells receive), the fee is always deducted, and the position of the traded
// instrument shifts by the signed volume.
func (a *Account) Transact(instrument domain.Instrument, side domain.Side, price, volume, fee int64) {
	if side == domain.SideSell {
		a.Balance += price * volume
	} else {
		a.Balance -= price * volume
	}

	a.Balance -= fee
	a.TotalFees += fee

	if instrument == domain.InstrumentFuture {
		if side == domain.SideSell {
			a.FuturePosition -= volume
		} else {
			a.FuturePosition += volume
		}
	} else {
		if side == domain.SideSell {
			a.SellVolume += volume
			a.EtfPosition -= volume
		} else {
			a.BuyVolume += volume
			a.EtfPosition += volume
		}
	}
}

// MarkToMarket revalues the account at the given reference prices. The ETF
// mark price is clamped to within the configured fraction of the future
// price to bound tracking error.
func (a *Account) MarkToMarket(futurePrice, etfPrice int64) {
	clamped := a.spec.ClampEtfPrice(futurePrice, etfPrice)
	a.ProfitOrLoss = a.Balance + a.FuturePosition*futurePrice + a.EtfPosition*clamped
	if a.ProfitOrLoss > a.MaxProfit {
		a.MaxProfit = a.ProfitOrLoss
	}
	if dd := a.MaxProfit - a.ProfitOrLoss; dd > a.MaxDrawdown {
		a.MaxDrawdown = dd
	}
}
