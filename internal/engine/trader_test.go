package engine

import (
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"exchange_go/internal/book"
	"exchange_go/internal/domain"
	"exchange_go/internal/risk"
	"exchange_go/internal/scoring"
	"exchange_go/internal/storage"
)

type sentError struct {
	id      uint32
	message string
}

type fakeConn struct {
	errors   []sentError
	statuses []uint32
	filled   []uint32
	hedges   []uint32
	closed   bool
}

func (c *fakeConn) SendError(id uint32, message string) {
	c.errors = append(c.errors, sentError{id, message})
}
func (c *fakeConn) SendOrderStatus(id uint32, fill, remaining, fees int64) {
	c.statuses = append(c.statuses, id)
}
func (c *fakeConn) SendOrderFilled(id uint32, price, volume int64) {
	c.filled = append(c.filled, id)
}
func (c *fakeConn) SendHedgeFilled(id uint32, avgPrice, volume int64) {
	c.hedges = append(c.hedges, id)
}
func (c *fakeConn) Close() { c.closed = true }

func (c *fakeConn) lastError(t *testing.T) sentError {
	t.Helper()
	if len(c.errors) == 0 {
		t.Fatal("no error message was sent")
	}
	return c.errors[len(c.errors)-1]
}

type eventCapture struct {
	rows []domain.MatchEventRow
}

func (c *eventCapture) AppendMatchEvent(row domain.MatchEventRow) {
	c.rows = append(c.rows, row)
}

type scoreCapture struct {
	rows []domain.ScoreRow
}

func (c *scoreCapture) AppendScore(row domain.ScoreRow) {
	c.rows = append(c.rows, row)
}

type traderFixture struct {
	trader     *Trader
	conn       *fakeConn
	etfBook    *book.OrderBook
	futureBook *book.OrderBook
	events     *eventCapture
	scores     *scoreCapture
}

func testLimits() risk.Limits {
	return risk.Limits{
		MessageFrequencyLimit:    50,
		MessageFrequencyInterval: 1.0,
		ActiveOrderCountLimit:    10,
		ActiveVolumeLimit:        200,
		PositionLimit:            100,
	}
}

func testSpec() domain.InstrumentSpec {
	return domain.InstrumentSpec{
		TickSizeCents: 100,
		EtfClamp:      decimal.RequireFromString("0.002"),
	}
}

func newTraderFixture(t *testing.T, name string) *traderFixture {
	t.Helper()
	events := &eventCapture{}
	scores := &scoreCapture{}
	conn := &fakeConn{}
	futureBook := book.New(domain.InstrumentFuture, decimal.Zero, decimal.Zero)
	etfBook := book.New(domain.InstrumentEtf,
		decimal.RequireFromString("-0.0001"), decimal.RequireFromString("0.0002"))
	trader := NewTrader(name, conn, etfBook, futureBook, testSpec(), testLimits(),
		storage.NewMatchRecorder(events), scoring.NewScoreBoard(scores), slog.Default())
	return &traderFixture{trader, conn, etfBook, futureBook, events, scores}
}

// restMarketOrder places an anonymous order in a book, the way replayed
// market data does.
func restMarketOrder(b *book.OrderBook, id uint32, side domain.Side, price, volume int64) {
	o := domain.NewOrder(id, "", b.Instrument(), domain.GoodForDay, side, price, volume, nil)
	b.Insert(0.5, o)
}

func TestInsertRestsAndConfirms(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 10, domain.GoodForDay)

	if len(f.conn.errors) != 0 {
		t.Fatalf("unexpected errors: %v", f.conn.errors)
	}
	if len(f.conn.statuses) != 1 || f.conn.statuses[0] != 1 {
		t.Errorf("statuses = %v, want confirmation for order 1", f.conn.statuses)
	}
	if f.etfBook.BestBid() != 9900 {
		t.Errorf("best bid = %d, want 9900", f.etfBook.BestBid())
	}
	if len(f.events.rows) != 1 || f.events.rows[0].Operation != domain.OpInsert {
		t.Errorf("event rows = %+v, want one insert", f.events.rows)
	}
}

func TestInsertPartialFillAgainstMarketOrder(t *testing.T) {
	f := newTraderFixture(t, "A")
	restMarketOrder(f.etfBook, 900, domain.SideSell, 9900, 10)

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 15, domain.GoodForDay)

	if len(f.conn.filled) != 1 {
		t.Fatalf("filled notifications = %v, want one", f.conn.filled)
	}
	if got := f.trader.Account().EtfPosition; got != 10 {
		t.Errorf("etf position = %d, want 10", got)
	}
	if got := f.etfBook.BestBid(); got != 9900 {
		t.Errorf("best bid = %d, remainder of 5 should rest", got)
	}
	// Insert row plus one trade row.
	var trades int
	for _, row := range f.events.rows {
		if row.Operation == domain.OpTrade {
			trades++
			if row.Volume != 10 {
				t.Errorf("trade row volume = %d, want +10 for a buy", row.Volume)
			}
		}
	}
	if trades != 1 {
		t.Errorf("trade rows = %d, want 1", trades)
	}
}

func TestInsertRejectsStaleOrderID(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 5, domain.SideBuy, 9900, 1, domain.GoodForDay)
	f.trader.OnInsert(1.1, 5, domain.SideBuy, 9800, 1, domain.GoodForDay)

	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectStaleOrderID, 5).Error() {
		t.Errorf("error = %q, want stale order id rejection", e.message)
	}
}

func TestInsertRejectsOffTickPrice(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9950, 1, domain.GoodForDay)

	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectInvalidPrice, 1).Error() {
		t.Errorf("error = %q, want tick size rejection", e.message)
	}
	if f.etfBook.BestBid() != 0 {
		t.Error("rejected order must not reach the book")
	}
}

func TestInsertRejectsBeforeMarketOpen(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(0.0, 1, domain.SideBuy, 9900, 1, domain.GoodForDay)

	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectMarketClosed, 1).Error() {
		t.Errorf("error = %q, want market closed rejection", e.message)
	}
}

func TestInsertRejectsPositionLimitPreTrade(t *testing.T) {
	f := newTraderFixture(t, "A")
	f.trader.Account().Transact(domain.InstrumentEtf, domain.SideBuy, 10000, 95, 0)

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 10, domain.GoodForDay)

	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectPositionLimit, 1).Error() {
		t.Errorf("error = %q, want position limit rejection", e.message)
	}
	if f.conn.closed {
		t.Error("a pre-trade rejection must not close the connection")
	}
	if f.etfBook.BestBid() != 0 {
		t.Error("rejected order must not reach the book")
	}
}

func TestInsertRejectsSelfCross(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 10000, 5, domain.GoodForDay)
	f.trader.OnInsert(1.1, 2, domain.SideSell, 10000, 5, domain.GoodForDay)

	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectSelfCross, 2).Error() {
		t.Errorf("error = %q, want self-cross rejection", e.message)
	}
}

func TestAmendReducesAndRejectsIncrease(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 10, domain.GoodForDay)
	f.trader.OnAmend(1.1, 1, 4)

	if got := f.trader.tracker.ActiveVolume(); got != 4 {
		t.Errorf("active volume = %d, want 4 after amend", got)
	}

	f.trader.OnAmend(1.2, 1, 20)
	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectAmendIncrease, 1).Error() {
		t.Errorf("error = %q, want amend increase rejection", e.message)
	}
}

func TestCancelUnknownOrderRejected(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 10, domain.GoodForDay)
	f.trader.OnCancel(1.1, 1)

	if len(f.conn.errors) != 0 {
		t.Fatalf("unexpected errors: %v", f.conn.errors)
	}
	if f.trader.tracker.ActiveOrders() != 0 {
		t.Errorf("active orders = %d, want 0", f.trader.tracker.ActiveOrders())
	}

	// The order is gone; a second cancel must be reported, not dropped.
	f.trader.OnCancel(1.2, 1)
	e := f.conn.lastError(t)
	want := domain.NewReject(domain.RejectUnknownOrder, 1).Error()
	if e.message != want {
		t.Errorf("error = %q, want %q", e.message, want)
	}
}

func TestAmendUnknownOrderRejected(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 10, domain.GoodForDay)
	f.trader.OnCancel(1.1, 1)
	f.trader.OnAmend(1.2, 1, 5)

	e := f.conn.lastError(t)
	want := domain.NewReject(domain.RejectUnknownOrder, 1).Error()
	if e.message != want {
		t.Errorf("error = %q, want %q", e.message, want)
	}
}

func TestHedgeFillsAgainstFutureBook(t *testing.T) {
	f := newTraderFixture(t, "A")
	restMarketOrder(f.futureBook, 901, domain.SideSell, 10000, 20)

	f.trader.OnHedge(1.0, 1, domain.SideBuy, 10000, 5)

	if len(f.conn.hedges) != 1 {
		t.Fatalf("hedge notifications = %v, want one", f.conn.hedges)
	}
	if got := f.trader.Account().FuturePosition; got != 5 {
		t.Errorf("future position = %d, want 5", got)
	}
	var hedgeRows int
	for _, row := range f.events.rows {
		if row.Operation == domain.OpHedge {
			hedgeRows++
		}
	}
	if hedgeRows != 1 {
		t.Errorf("hedge rows = %d, want 1", hedgeRows)
	}
}

func TestHedgeRejectsPositionLimit(t *testing.T) {
	f := newTraderFixture(t, "A")
	restMarketOrder(f.futureBook, 901, domain.SideSell, 10000, 200)
	f.trader.Account().Transact(domain.InstrumentFuture, domain.SideBuy, 10000, 95, 0)

	f.trader.OnHedge(1.0, 1, domain.SideBuy, 10000, 10)

	e := f.conn.lastError(t)
	if e.message != domain.NewReject(domain.RejectPositionLimit, 1).Error() {
		t.Errorf("error = %q, want position limit rejection", e.message)
	}
	if got := f.trader.Account().FuturePosition; got != 95 {
		t.Errorf("future position = %d, rejected hedge must not trade", got)
	}
}

func TestHedgeWithNoLiquidityFillsNothing(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnHedge(1.0, 1, domain.SideBuy, 10000, 5)

	if len(f.conn.hedges) != 1 {
		t.Fatal("the trader must still be told the hedge outcome")
	}
	if got := f.trader.Account().FuturePosition; got != 0 {
		t.Errorf("future position = %d, want 0", got)
	}
}

func TestUnhedgedLotsBreachOnTick(t *testing.T) {
	f := newTraderFixture(t, "A")
	restMarketOrder(f.etfBook, 900, domain.SideSell, 10000, 20)

	// Buying 11 ETF lots pushes the relative position past the tolerance.
	f.trader.OnInsert(1.0, 1, domain.SideBuy, 10000, 11, domain.GoodForDay)

	f.trader.OnTimerTick(30.0, 10000, 10000)
	if f.trader.status != StatusOK {
		t.Fatal("breach before the deadline")
	}

	f.trader.OnTimerTick(62.0, 10000, 10000)
	if f.trader.status != StatusBreach {
		t.Fatal("expected a breach after the time limit")
	}
	if !f.conn.closed {
		t.Error("a hard breach closes the execution channel")
	}
	last := f.scores.rows[len(f.scores.rows)-1]
	if last.Operation != domain.ScoreOpBreach {
		t.Errorf("last score row = %q, want breach", last.Operation)
	}
}

func TestUnhedgedLotsClearedByHedge(t *testing.T) {
	f := newTraderFixture(t, "A")
	restMarketOrder(f.etfBook, 900, domain.SideSell, 10000, 20)
	restMarketOrder(f.futureBook, 901, domain.SideBuy, 10000, 20)

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 10000, 11, domain.GoodForDay)
	f.trader.OnHedge(2.0, 2, domain.SideSell, 0, 11) // sell at any price

	f.trader.OnTimerTick(120.0, 10000, 10000)
	if f.trader.status != StatusOK {
		t.Error("hedged position must not breach")
	}
}

func TestDisconnectCancelsRestingOrders(t *testing.T) {
	f := newTraderFixture(t, "A")

	f.trader.OnInsert(1.0, 1, domain.SideBuy, 9900, 10, domain.GoodForDay)
	f.trader.OnInsert(1.1, 2, domain.SideSell, 10100, 5, domain.GoodForDay)
	f.trader.OnConnectionLost(5.0)

	if f.etfBook.BestBid() != 0 || f.etfBook.BestAsk() != 0 {
		t.Error("resting orders must be cancelled on disconnect")
	}
	if f.trader.tracker.ActiveOrders() != 0 {
		t.Errorf("active orders = %d, want 0", f.trader.tracker.ActiveOrders())
	}
	last := f.scores.rows[len(f.scores.rows)-1]
	if last.Operation != domain.ScoreOpDisconnect {
		t.Errorf("last score row = %q, want disconnect", last.Operation)
	}
}

func TestFeesAccumulateOnAccount(t *testing.T) {
	f := newTraderFixture(t, "A")
	restMarketOrder(f.etfBook, 900, domain.SideSell, 10000, 10)

	// Taker fill: 10 lots at 100.00, taker rate 0.0002 -> 20 cents.
	f.trader.OnInsert(1.0, 1, domain.SideBuy, 10000, 10, domain.GoodForDay)

	if got := f.trader.Account().TotalFees; got != 20 {
		t.Errorf("total fees = %d, want 20", got)
	}
	if got := f.trader.Account().Balance; got != -100020 {
		t.Errorf("balance = %d, want -100020", got)
	}
}
