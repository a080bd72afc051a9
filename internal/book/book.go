package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"exchange_go/internal/domain"
)

// TopLevelCount is the number of price levels carried in book snapshots.
const TopLevelCount = 5

// level is one price level: a FIFO queue of resting orders plus the total
// remaining volume at that price. Orders are popped lazily, so entries with
// zero remaining volume may linger at the front until the next match.
type level struct {
	orders []*domain.Order
	head   int
}

func (l *level) push(o *domain.Order) {
	l.orders = append(l.orders, o)
}

// front skips over already-exhausted orders and returns the oldest live one.
func (l *level) front() *domain.Order {
	for l.orders[l.head].Remaining == 0 {
		l.head++
	}
	return l.orders[l.head]
}

// OrderBook is a collection of orders arranged by price-time priority.
//
// It is not safe for concurrent use: the matching loop is its sole owner and
// every mutation happens on that goroutine.
type OrderBook struct {
	instrument domain.Instrument
	makerFee   decimal.Decimal
	takerFee   decimal.Decimal

	// bidPrices is sorted ascending (best bid last); askPrices stores
	// negated prices sorted ascending (best ask last). This keeps both
	// best-price lookups at the end of the slice.
	askPrices    []int64
	bidPrices    []int64
	levels       map[int64]*level
	totalVolumes map[int64]int64

	askTicks map[int64]int64
	bidTicks map[int64]int64

	lastTradedPrice int64 // 0 until the first trade

	// onTrade is invoked once per individual fill pair. Registered by the
	// engine to feed the event log, accounts and the information feed.
	onTrade []func(domain.Trade)
}

// New creates an empty order book for one instrument.
func New(instrument domain.Instrument, makerFee, takerFee decimal.Decimal) *OrderBook {
	return &OrderBook{
		instrument:   instrument,
		makerFee:     makerFee,
		takerFee:     takerFee,
		levels:       make(map[int64]*level),
		totalVolumes: make(map[int64]int64),
		askTicks:     make(map[int64]int64),
		bidTicks:     make(map[int64]int64),
	}
}

// OnTrade registers a callback invoked for every fill pair.
func (b *OrderBook) OnTrade(fn func(domain.Trade)) {
	b.onTrade = append(b.onTrade, fn)
}

// Instrument returns the instrument this book trades.
func (b *OrderBook) Instrument() domain.Instrument {
	return b.instrument
}

// Insert matches a new order against the book and rests any remainder
// according to its lifespan. Market-style (fill-and-kill) remainders are
// cancelled through the order's listener.
func (b *OrderBook) Insert(now float64, order *domain.Order) {
	if order.Side == domain.SideSell && len(b.bidPrices) > 0 && order.Price <= b.bidPrices[len(b.bidPrices)-1] {
		b.tradeAsk(now, order)
	} else if order.Side == domain.SideBuy && len(b.askPrices) > 0 && order.Price >= -b.askPrices[len(b.askPrices)-1] {
		b.tradeBid(now, order)
	}

	if order.IsOpen() {
		if order.Lifespan == domain.FillAndKill {
			remaining := order.Remaining
			order.Remaining = 0
			if order.Listener != nil {
				order.Listener.OnOrderCancelled(now, order, remaining)
			}
		} else {
			b.place(now, order)
		}
	}
}

// Cancel removes an order from the book. Orders already fully filled or
// cancelled are ignored; sibling queue order at the level is undisturbed.
func (b *OrderBook) Cancel(now float64, order *domain.Order) {
	if order.IsOpen() {
		b.removeVolumeFromLevel(order.Price, order.Remaining, order.Side)
		removed := order.Remaining
		order.Remaining = 0
		if order.Listener != nil {
			order.Listener.OnOrderCancelled(now, order, removed)
		}
	}
}

// Amend reduces an order's volume. The new volume may not be below the
// volume already filled; queue priority is preserved.
func (b *OrderBook) Amend(now float64, order *domain.Order, newVolume int64) {
	if order.Remaining == 0 {
		return
	}
	filled := order.FilledVolume()
	if newVolume < filled {
		newVolume = filled
	}
	diff := order.Volume - newVolume
	if diff <= 0 {
		return
	}
	b.removeVolumeFromLevel(order.Price, diff, order.Side)
	order.Volume -= diff
	order.Remaining -= diff
	if order.Listener != nil {
		order.Listener.OnOrderAmended(now, order, diff)
	}
}

// LastTradedPrice returns the most recent trade price, or 0 if no trade has
// occurred yet.
func (b *OrderBook) LastTradedPrice() int64 {
	return b.lastTradedPrice
}

// MidpointPrice returns the midpoint of the best bid and ask, or 0 when
// either side is empty.
func (b *OrderBook) MidpointPrice() int64 {
	if len(b.bidPrices) > 0 && len(b.askPrices) > 0 {
		return (b.bidPrices[len(b.bidPrices)-1] + -b.askPrices[len(b.askPrices)-1]) / 2
	}
	return 0
}

// BestBid returns the highest resting bid price, or 0 if there is none.
func (b *OrderBook) BestBid() int64 {
	if len(b.bidPrices) == 0 {
		return 0
	}
	return b.bidPrices[len(b.bidPrices)-1]
}

// BestAsk returns the lowest resting ask price, or 0 if there is none.
func (b *OrderBook) BestAsk() int64 {
	if len(b.askPrices) == 0 {
		return 0
	}
	return -b.askPrices[len(b.askPrices)-1]
}

// place rests an order that does not cross any existing order.
func (b *OrderBook) place(now float64, order *domain.Order) {
	price := order.Price

	if _, ok := b.levels[price]; !ok {
		b.levels[price] = &level{}
		b.totalVolumes[price] = 0
		if order.Side == domain.SideSell {
			insortInt64(&b.askPrices, -price)
		} else {
			insortInt64(&b.bidPrices, price)
		}
	}

	b.levels[price].push(order)
	b.totalVolumes[price] += order.Remaining

	if order.Listener != nil {
		order.Listener.OnOrderPlaced(now, order)
	}
}

func (b *OrderBook) removeVolumeFromLevel(price, volume int64, side domain.Side) {
	if b.totalVolumes[price] == volume {
		delete(b.levels, price)
		delete(b.totalVolumes, price)
		if side == domain.SideSell {
			removeInt64(&b.askPrices, -price)
		} else {
			removeInt64(&b.bidPrices, price)
		}
	} else {
		b.totalVolumes[price] -= volume
	}
}

// tradeAsk matches an incoming ask against resting bids, best price first.
func (b *OrderBook) tradeAsk(now float64, order *domain.Order) {
	bestBid := b.bidPrices[len(b.bidPrices)-1]

	for order.Remaining > 0 && bestBid >= order.Price && b.totalVolumes[bestBid] > 0 {
		b.tradeLevel(now, order, bestBid)
		if b.totalVolumes[bestBid] == 0 {
			delete(b.levels, bestBid)
			delete(b.totalVolumes, bestBid)
			b.bidPrices = b.bidPrices[:len(b.bidPrices)-1]
			if len(b.bidPrices) == 0 {
				break
			}
			bestBid = b.bidPrices[len(b.bidPrices)-1]
		}
	}
}

// tradeBid matches an incoming bid against resting asks, best price first.
func (b *OrderBook) tradeBid(now float64, order *domain.Order) {
	bestAsk := -b.askPrices[len(b.askPrices)-1]

	for order.Remaining > 0 && bestAsk <= order.Price && b.totalVolumes[bestAsk] > 0 {
		b.tradeLevel(now, order, bestAsk)
		if b.totalVolumes[bestAsk] == 0 {
			delete(b.levels, bestAsk)
			delete(b.totalVolumes, bestAsk)
			b.askPrices = b.askPrices[:len(b.askPrices)-1]
			if len(b.askPrices) == 0 {
				break
			}
			bestAsk = -b.askPrices[len(b.askPrices)-1]
		}
	}
}

// tradeLevel matches the incoming order against the queue at one price
// level, oldest resting order first. The resting side pays the maker fee,
// the incoming side the taker fee.
func (b *OrderBook) tradeLevel(now float64, order *domain.Order, bestPrice int64) {
	remaining := order.Remaining
	lvl := b.levels[bestPrice]
	totalVolume := b.totalVolumes[bestPrice]

	for remaining > 0 && totalVolume > 0 {
		passive := lvl.front()
		volume := passive.Remaining
		if remaining < volume {
			volume = remaining
		}
		fee := b.fee(bestPrice, volume, b.makerFee)
		totalVolume -= volume
		remaining -= volume
		passive.Remaining -= volume
		passive.TotalFees += fee
		if passive.Listener != nil {
			passive.Listener.OnOrderFilled(now, passive, bestPrice, volume, fee)
		}

		trade := domain.Trade{
			Time:       now,
			Instrument: b.instrument,
			Price:      bestPrice,
			Volume:     volume,
			Aggressor:  order.Side,
			Maker:      passive.Trader,
			Taker:      order.Trader,
			MakerOrder: passive.ClientOrderID,
			TakerOrder: order.ClientOrderID,
		}
		for _, fn := range b.onTrade {
			fn(trade)
		}
	}

	b.totalVolumes[bestPrice] = totalVolume
	tradedHere := order.Remaining - remaining

	if order.Side == domain.SideBuy {
		b.askTicks[bestPrice] += tradedHere
	} else {
		b.bidTicks[bestPrice] += tradedHere
	}

	fee := b.fee(bestPrice, tradedHere, b.takerFee)
	order.Remaining = remaining
	order.TotalFees += fee
	if order.Listener != nil {
		order.Listener.OnOrderFilled(now, order, bestPrice, tradedHere, fee)
	}

	b.lastTradedPrice = bestPrice
}

// fee computes round(price * volume * rate) in integer cents.
func (b *OrderBook) fee(price, volume int64, rate decimal.Decimal) int64 {
	return rate.Mul(decimal.NewFromInt(price * volume)).Round(0).IntPart()
}

// TopLevels writes the best TopLevelCount levels of each side into the
// supplied slices, zero-filling unused entries. All four slices must have
// length TopLevelCount.
func (b *OrderBook) TopLevels(askPrices, askVolumes, bidPrices, bidVolumes []int64) {
	i := 0
	for j := len(b.askPrices) - 1; i < TopLevelCount && j >= 0; j-- {
		askPrices[i] = -b.askPrices[j]
		askVolumes[i] = b.totalVolumes[askPrices[i]]
		i++
	}
	for ; i < TopLevelCount; i++ {
		askPrices[i], askVolumes[i] = 0, 0
	}

	i = 0
	for j := len(b.bidPrices) - 1; i < TopLevelCount && j >= 0; j-- {
		bidPrices[i] = b.bidPrices[j]
		bidVolumes[i] = b.totalVolumes[bidPrices[i]]
		i++
	}
	for ; i < TopLevelCount; i++ {
		bidPrices[i], bidVolumes[i] = 0, 0
	}
}

// TradeTicks drains the volume traded per price since the last call into
// the supplied slices. Returns false when no trades occurred. Aggressor
// buys accumulate on the ask side, aggressor sells on the bid side.
func (b *OrderBook) TradeTicks(askPrices, askVolumes, bidPrices, bidVolumes []int64) bool {
	if len(b.askTicks) == 0 && len(b.bidTicks) == 0 {
		return false
	}

	prices := make([]int64, 0, len(b.askTicks))
	for p := range b.askTicks {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	fillTicks(askPrices, askVolumes, prices, b.askTicks)

	prices = prices[:0]
	for p := range b.bidTicks {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	fillTicks(bidPrices, bidVolumes, prices, b.bidTicks)

	clear(b.askTicks)
	clear(b.bidTicks)
	return true
}

func fillTicks(priceOut, volumeOut, prices []int64, ticks map[int64]int64) {
	i := 0
	for ; i < TopLevelCount && i < len(prices); i++ {
		priceOut[i] = prices[i]
		volumeOut[i] = ticks[prices[i]]
	}
	for ; i < TopLevelCount; i++ {
		priceOut[i], volumeOut[i] = 0, 0
	}
}

// TryTrade returns the volume that would trade and the average price per
// lot for the requested order without changing the book. Used for hedge
// fills against the future book.
func (b *OrderBook) TryTrade(side domain.Side, limitPrice, volume int64) (tradedVolume, averagePrice int64) {
	var totalVolume, totalValue int64

	if side == domain.SideSell {
		for i := len(b.bidPrices) - 1; totalVolume < volume && i >= 0 && b.bidPrices[i] >= limitPrice; i-- {
			price := b.bidPrices[i]
			totalVolume, totalValue = sweepLevel(totalVolume, totalValue, price, b.totalVolumes[price], volume)
		}
	} else {
		for i := len(b.askPrices) - 1; totalVolume < volume && i >= 0 && -b.askPrices[i] <= limitPrice; i-- {
			price := -b.askPrices[i]
			totalVolume, totalValue = sweepLevel(totalVolume, totalValue, price, b.totalVolumes[price], volume)
		}
	}

	if totalVolume == 0 {
		return 0, 0
	}
	return totalVolume, totalValue / totalVolume
}

func sweepLevel(totalVolume, totalValue, price, available, want int64) (int64, int64) {
	take := want - totalVolume
	if take > available {
		take = available
	}
	return totalVolume + take, totalValue + take*price
}

// insortInt64 inserts v into s keeping it sorted ascending.
func insortInt64(s *[]int64, v int64) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

// removeInt64 removes one occurrence of v from sorted s.
func removeInt64(s *[]int64, v int64) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	if i < len(*s) && (*s)[i] == v {
		*s = append((*s)[:i], (*s)[i+1:]...)
	}
}
