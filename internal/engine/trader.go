package engine

import (
	"log/slog"
	"sort"

	"exchange_go/internal/book"
	"exchange_go/internal/domain"
	"exchange_go/internal/infra"
	"exchange_go/internal/risk"
	"exchange_go/internal/scoring"
	"exchange_go/internal/storage"
)

// Trader status values as written to the scoreboard.
const (
	StatusOK     = "OK"
	StatusBreach = "BREACH"
)

const unhedgedBreachMessage = "held unhedged lots for longer than the time limit"

// Trader is one authenticated team inside the matching engine. It owns the
// team's resting orders, account, and risk counters, and receives the order
// lifecycle callbacks for every order it inserts. All methods run on the
// matching loop goroutine.
type Trader struct {
	name   string
	logger *slog.Logger

	conn       domain.ExecutionConnection
	etfBook    *book.OrderBook
	futureBook *book.OrderBook
	account    *scoring.Account
	recorder   *storage.MatchRecorder
	scoreBoard *scoring.ScoreBoard
	tracker    *risk.Tracker
	spec       domain.InstrumentSpec
	unhedged   scoring.UnhedgedLots

	orders map[uint32]*domain.Order
	// buyPrices ascending; sellPrices holds negated prices ascending, so the
	// best price of either side is always the last element.
	buyPrices  []int64
	sellPrices []int64

	lastClientOrderID int64
	status            string
}

func NewTrader(name string, conn domain.ExecutionConnection, etfBook, futureBook *book.OrderBook,
	spec domain.InstrumentSpec, limits risk.Limits, recorder *storage.MatchRecorder,
	scoreBoard *scoring.ScoreBoard, logger *slog.Logger) *Trader {
	return &Trader{
		name:              name,
		logger:            logger.With("component", "trader", "team", name),
		conn:              conn,
		etfBook:           etfBook,
		futureBook:        futureBook,
		account:           scoring.NewAccount(spec),
		recorder:          recorder,
		scoreBoard:        scoreBoard,
		tracker:           risk.NewTracker(limits),
		spec:              spec,
		orders:            make(map[uint32]*domain.Order),
		lastClientOrderID: -1,
		status:            StatusOK,
	}
}

// Name returns the team name.
func (t *Trader) Name() string { return t.name }

// Account returns the trader's account for scoring.
func (t *Trader) Account() *scoring.Account { return t.account }

// Connected reports whether the trader still has an execution channel.
func (t *Trader) Connected() bool { return t.conn != nil }

// Disconnect closes the trader's execution channel.
func (t *Trader) Disconnect(now float64) {
	if t.conn != nil {
		t.logger.Info("closing execution channel", "time", now)
		t.conn.Close()
	}
}

// OnConnectionLost records the disconnect and cancels every resting order.
func (t *Trader) OnConnectionLost(now float64) {
	t.conn = nil
	t.scoreBoard.Disconnect(now, t.name, t.account, t.etfBook.LastTradedPrice(), t.futureBook.LastTradedPrice())
	for _, o := range t.openOrders() {
		t.etfBook.Cancel(now, o)
	}
}

func (t *Trader) openOrders() []*domain.Order {
	out := make([]*domain.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	return out
}

// OnInsert handles an insert order request.
func (t *Trader) OnInsert(now float64, clientOrderID uint32, side domain.Side, price, volume int64,
	lifespan domain.Lifespan) {
	if int64(clientOrderID) <= t.lastClientOrderID {
		t.reject(now, domain.NewReject(domain.RejectStaleOrderID, clientOrderID))
		return
	}
	t.lastClientOrderID = int64(clientOrderID)

	if !side.Valid() {
		t.reject(now, domain.NewReject(domain.RejectInvalidSide, clientOrderID))
		return
	}
	if !lifespan.Valid() {
		t.reject(now, domain.NewReject(domain.RejectInvalidLifespan, clientOrderID))
		return
	}
	if !t.spec.ValidPrice(price) {
		t.reject(now, domain.NewReject(domain.RejectInvalidPrice, clientOrderID))
		return
	}
	if volume < 1 {
		t.reject(now, domain.NewReject(domain.RejectInvalidVolume, clientOrderID))
		return
	}
	if rej := t.tracker.CheckInsert(clientOrderID, side, volume, t.account.EtfPosition); rej != nil {
		t.reject(now, rej)
		return
	}
	if now == 0.0 {
		t.reject(now, domain.NewReject(domain.RejectMarketClosed, clientOrderID))
		return
	}
	if t.inCrossWithOwnOrder(side, price) {
		t.reject(now, domain.NewReject(domain.RejectSelfCross, clientOrderID))
		return
	}

	order := domain.NewOrder(clientOrderID, t.name, domain.InstrumentEtf, lifespan, side, price, volume, t)
	t.orders[clientOrderID] = order
	if side == domain.SideBuy {
		insort(&t.buyPrices, price)
	} else {
		insort(&t.sellPrices, -price)
	}
	t.recorder.Insert(now, t.name, clientOrderID, order.Instrument, side, volume, price, lifespan)
	t.tracker.Reserve(volume)
	t.etfBook.Insert(now, order)
}

// OnAmend handles an amend order request. Only volume reductions are
// allowed.
func (t *Trader) OnAmend(now float64, clientOrderID uint32, volume int64) {
	if int64(clientOrderID) > t.lastClientOrderID {
		t.reject(now, domain.NewReject(domain.RejectStaleOrderID, clientOrderID))
		return
	}
	order, ok := t.orders[clientOrderID]
	if !ok {
		t.reject(now, domain.NewReject(domain.RejectUnknownOrder, clientOrderID))
		return
	}
	if volume > order.Volume {
		t.reject(now, domain.NewReject(domain.RejectAmendIncrease, clientOrderID))
		return
	}
	t.etfBook.Amend(now, order, volume)
}

// OnCancel handles a cancel order request.
func (t *Trader) OnCancel(now float64, clientOrderID uint32) {
	if int64(clientOrderID) > t.lastClientOrderID {
		t.reject(now, domain.NewReject(domain.RejectStaleOrderID, clientOrderID))
		return
	}
	order, ok := t.orders[clientOrderID]
	if !ok {
		t.reject(now, domain.NewReject(domain.RejectUnknownOrder, clientOrderID))
		return
	}
	t.etfBook.Cancel(now, order)
}

// OnHedge handles a hedge request: an immediate trade in the future book.
func (t *Trader) OnHedge(now float64, clientOrderID uint32, side domain.Side, price, volume int64) {
	if int64(clientOrderID) <= t.lastClientOrderID {
		t.reject(now, domain.NewReject(domain.RejectStaleOrderID, clientOrderID))
		return
	}
	t.lastClientOrderID = int64(clientOrderID)

	if !side.Valid() {
		t.reject(now, domain.NewReject(domain.RejectInvalidSide, clientOrderID))
		return
	}
	if !t.spec.ValidPrice(price) {
		t.reject(now, domain.NewReject(domain.RejectInvalidPrice, clientOrderID))
		return
	}
	if volume < 1 {
		t.reject(now, domain.NewReject(domain.RejectInvalidVolume, clientOrderID))
		return
	}
	if now == 0.0 {
		t.reject(now, domain.NewReject(domain.RejectMarketClosed, clientOrderID))
		return
	}

	resulting := t.account.FuturePosition + volume
	if side == domain.SideSell {
		resulting = t.account.FuturePosition - volume
	}
	if rej := t.tracker.CheckPosition(clientOrderID, resulting); rej != nil {
		t.reject(now, rej)
		return
	}

	tradedVolume, averagePrice := t.futureBook.TryTrade(side, price, volume)
	if tradedVolume > 0 {
		delta := tradedVolume
		if side == domain.SideSell {
			delta = -tradedVolume
		}
		t.unhedged.ApplyDelta(now, delta)
		t.recorder.Hedge(now, t.name, clientOrderID, side, averagePrice, tradedVolume)
		t.account.Transact(domain.InstrumentFuture, side, averagePrice, tradedVolume, 0)
		t.account.MarkToMarket(t.futureRef(), t.etfRef())
		infra.GlobalMetrics.RecordTrade()
	}

	if t.conn != nil {
		t.conn.SendHedgeFilled(clientOrderID, averagePrice, tradedVolume)
	}
}

// OnTimerTick revalues the account and appends the periodic scoreboard row.
// Unhedged-lot expiry is evaluated here so replays see it at the same match
// time as the live run.
func (t *Trader) OnTimerTick(now float64, futurePrice, etfPrice int64) {
	t.account.MarkToMarket(futurePrice, etfPrice)
	t.scoreBoard.Tick(now, t.name, t.account, etfPrice, futurePrice, t.status)
	if t.status == StatusOK && t.unhedged.Expired(now) {
		t.logger.Info("unhedged lots held past the time limit",
			"etf_position", t.account.EtfPosition,
			"future_position", t.account.FuturePosition,
			"relative", t.unhedged.Relative)
		t.hardBreach(now, 0, unhedgedBreachMessage)
	}
}

// Order lifecycle callbacks from the ETF book.

func (t *Trader) OnOrderPlaced(now float64, order *domain.Order) {
	// Only send an order status if the order has not partially filled
	if order.Remaining == order.Volume && t.conn != nil {
		t.conn.SendOrderStatus(order.ClientOrderID, 0, order.Remaining, order.TotalFees)
	}
}

func (t *Trader) OnOrderFilled(now float64, order *domain.Order, price, volume, fee int64) {
	t.tracker.ReleaseVolume(volume)
	if order.Remaining == 0 {
		delete(t.orders, order.ClientOrderID)
		t.tracker.ReleaseOrder()
		// A fill always removes the best of the trader's own prices.
		if order.Side == domain.SideBuy {
			t.buyPrices = t.buyPrices[:len(t.buyPrices)-1]
		} else {
			t.sellPrices = t.sellPrices[:len(t.sellPrices)-1]
		}
	}

	diff := volume
	if order.Side == domain.SideSell {
		diff = -volume
	}
	t.unhedged.ApplyDelta(now, diff)
	t.recorder.Fill(now, t.name, order.ClientOrderID, order.Instrument, order.Side, price, diff, fee)
	t.account.Transact(domain.InstrumentEtf, order.Side, price, volume, fee)
	t.account.MarkToMarket(t.futureRef(), price)
	infra.GlobalMetrics.RecordTrade()

	if t.conn != nil {
		t.conn.SendOrderFilled(order.ClientOrderID, price, volume)
		t.conn.SendOrderStatus(order.ClientOrderID, order.FilledVolume(), order.Remaining, order.TotalFees)
	}
}

func (t *Trader) OnOrderAmended(now float64, order *domain.Order, volumeRemoved int64) {
	if t.conn != nil {
		t.conn.SendOrderStatus(order.ClientOrderID, order.FilledVolume(), order.Remaining, order.TotalFees)
	}
	t.recorder.Amend(now, t.name, order.ClientOrderID, -volumeRemoved)
	t.tracker.ReleaseVolume(volumeRemoved)

	if order.Remaining == 0 {
		delete(t.orders, order.ClientOrderID)
		t.tracker.ReleaseOrder()
		t.removePrice(order)
	}
}

func (t *Trader) OnOrderCancelled(now float64, order *domain.Order, volumeRemoved int64) {
	if t.conn != nil {
		t.conn.SendOrderStatus(order.ClientOrderID, order.Volume-volumeRemoved, order.Remaining, order.TotalFees)
	}
	t.recorder.Cancel(now, t.name, order.ClientOrderID, -volumeRemoved)
	t.tracker.ReleaseVolume(volumeRemoved)

	delete(t.orders, order.ClientOrderID)
	t.tracker.ReleaseOrder()
	t.removePrice(order)
}

func (t *Trader) removePrice(order *domain.Order) {
	if order.Side == domain.SideBuy {
		removePrice(&t.buyPrices, order.Price)
	} else {
		removePrice(&t.sellPrices, -order.Price)
	}
}

func (t *Trader) inCrossWithOwnOrder(side domain.Side, price int64) bool {
	if side == domain.SideBuy {
		return len(t.sellPrices) > 0 && price >= -t.sellPrices[len(t.sellPrices)-1]
	}
	return len(t.buyPrices) > 0 && price <= t.buyPrices[len(t.buyPrices)-1]
}

func (t *Trader) futureRef() int64 {
	if p := t.futureBook.LastTradedPrice(); p != 0 {
		return p
	}
	return t.futureBook.MidpointPrice()
}

func (t *Trader) etfRef() int64 {
	if p := t.etfBook.LastTradedPrice(); p != 0 {
		return p
	}
	return t.etfBook.MidpointPrice()
}

// reject reports a refused request back to the trader. The session stays
// open.
func (t *Trader) reject(now float64, rej *domain.RejectError) {
	infra.GlobalMetrics.RecordRejection()
	if t.conn != nil {
		t.conn.SendError(rej.OrderID, rej.Error())
	}
	t.logger.Info("request rejected", "time", now, "client_order_id", rej.OrderID, "reason", rej.Error())
}

// hardBreach marks the trader as breached, notifies it and closes its
// execution channel.
func (t *Trader) hardBreach(now float64, clientOrderID uint32, message string) {
	t.status = StatusBreach
	if t.conn != nil {
		t.conn.SendError(clientOrderID, message)
		t.logger.Info("closing execution channel", "time", now)
		t.conn.Close()
	}
	t.scoreBoard.Breach(now, t.name, t.account, t.etfBook.LastTradedPrice(), t.futureBook.LastTradedPrice())
}

func insort(s *[]int64, v int64) {
	i := sort.Search(len(*s), func(j int) bool { return (*s)[j] > v })
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

func removePrice(s *[]int64, v int64) {
	i := sort.Search(len(*s), func(j int) bool { return (*s)[j] >= v })
	if i < len(*s) && (*s)[i] == v {
		*s = append((*s)[:i], (*s)[i+1:]...)
	}
}
