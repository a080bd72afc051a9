package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"exchange_go/internal/book"
	"exchange_go/internal/domain"
	"exchange_go/internal/storage"
)

const (
	marketEventQueueSize = 1024
	inputScaling         = 100
)

// Market event operations as spelled in the data file.
const (
	opAmend  = "Amend"
	opCancel = "Cancel"
	opInsert = "Insert"
)

// MarketEvent is one row of the market data file.
type MarketEvent struct {
	Time       float64
	Instrument domain.Instrument
	Operation  string
	OrderID    uint32
	Side       domain.Side
	Volume     int64
	Price      int64
	Lifespan   domain.Lifespan
}

// MarketEventsReader streams the market data file into the order books. A
// background goroutine parses the CSV into a bounded channel; the matching
// loop calls ProcessUntil to apply every event strictly older than the
// current match time. The reader owns the market-side orders it inserts and
// tracks them so later rows can cancel or amend them.
type MarketEventsReader struct {
	filename string
	logger   *slog.Logger
	recorder *storage.MatchRecorder

	futureBook *book.OrderBook
	etfBook    *book.OrderBook

	futureOrders map[uint32]*domain.Order
	etfOrders    map[uint32]*domain.Order

	queue chan *MarketEvent
	next  *MarketEvent
	done  bool
}

func NewMarketEventsReader(filename string, logger *slog.Logger, futureBook, etfBook *book.OrderBook,
	recorder *storage.MatchRecorder) *MarketEventsReader {
	return &MarketEventsReader{
		filename:     filename,
		logger:       logger.With("component", "market_events"),
		recorder:     recorder,
		futureBook:   futureBook,
		etfBook:      etfBook,
		futureOrders: make(map[uint32]*domain.Order),
		etfOrders:    make(map[uint32]*domain.Order),
		queue:        make(chan *MarketEvent, marketEventQueueSize),
		// Prime the event pump with a no-op event
		next: &MarketEvent{Operation: opCancel},
	}
}

// Start launches the reader goroutine. It fails fast if the data file
// cannot be opened.
func (r *MarketEventsReader) Start() error {
	f, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("open market data file: %w", err)
	}
	go r.read(f)
	return nil
}

// Done reports whether every market event has been applied.
func (r *MarketEventsReader) Done() bool {
	return r.done
}

// ProcessUntil applies all market events with a time strictly before the
// given match time. Must be called from the matching loop.
func (r *MarketEventsReader) ProcessUntil(elapsed float64) {
	evt := r.next
	for evt != nil && evt.Time < elapsed {
		r.apply(evt)
		var ok bool
		evt, ok = <-r.queue
		if !ok {
			evt = nil
		}
	}
	r.next = evt
	if evt == nil && !r.done {
		r.done = true
		r.logger.Info("market data exhausted")
	}
}

func (r *MarketEventsReader) apply(evt *MarketEvent) {
	orders, bk := r.etfOrders, r.etfBook
	if evt.Instrument == domain.InstrumentFuture {
		orders, bk = r.futureOrders, r.futureBook
	}

	switch {
	case evt.Operation == opInsert:
		order := domain.NewOrder(evt.OrderID, "", evt.Instrument, evt.Lifespan, evt.Side, evt.Price, evt.Volume, r)
		r.recorder.Insert(evt.Time, "", order.ClientOrderID, order.Instrument, order.Side,
			order.Volume, order.Price, order.Lifespan)
		bk.Insert(evt.Time, order)
	default:
		order, ok := orders[evt.OrderID]
		if !ok {
			return
		}
		if evt.Operation == opCancel {
			bk.Cancel(evt.Time, order)
		} else if evt.Volume < 0 {
			bk.Amend(evt.Time, order, order.Volume+evt.Volume)
		}
	}
}

// OrderListener callbacks. The reader keeps only resting orders so that
// later cancel and amend rows can find them.

func (r *MarketEventsReader) OnOrderPlaced(now float64, order *domain.Order) {
	if order.Instrument == domain.InstrumentFuture {
		r.futureOrders[order.ClientOrderID] = order
	} else {
		r.etfOrders[order.ClientOrderID] = order
	}
}

func (r *MarketEventsReader) OnOrderFilled(now float64, order *domain.Order, price, volume, fee int64) {
	if order.Remaining == 0 {
		r.forget(order)
	}
}

func (r *MarketEventsReader) OnOrderAmended(now float64, order *domain.Order, volumeRemoved int64) {
	r.recorder.Amend(now, "", order.ClientOrderID, -volumeRemoved)
	if order.Remaining == 0 {
		r.forget(order)
	}
}

func (r *MarketEventsReader) OnOrderCancelled(now float64, order *domain.Order, volumeRemoved int64) {
	r.recorder.Cancel(now, "", order.ClientOrderID, -volumeRemoved)
	r.forget(order)
}

func (r *MarketEventsReader) forget(order *domain.Order) {
	if order.Instrument == domain.InstrumentFuture {
		delete(r.futureOrders, order.ClientOrderID)
	} else {
		delete(r.etfOrders, order.ClientOrderID)
	}
}

func (r *MarketEventsReader) read(f *os.File) {
	defer f.Close()
	defer close(r.queue)

	cr := csv.NewReader(f)
	cr.ReuseRecord = true

	// Skip header row
	if _, err := cr.Read(); err != nil {
		r.logger.Error("failed to read market data header", "error", err)
		return
	}

	count := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Error("malformed market data row", "error", err)
			return
		}
		evt, err := parseMarketEvent(record)
		if err != nil {
			r.logger.Error("malformed market data row", "error", err, "row", count+2)
			return
		}
		r.queue <- evt
		count++
	}
	r.logger.Info("reader complete", "events", count)
}

// parseMarketEvent converts a CSV record with columns
// Time,Instrument,Operation,OrderId,Side,Volume,Price,Lifespan. Prices in
// the file are dollars and are scaled to integer cents.
func parseMarketEvent(record []string) (*MarketEvent, error) {
	if len(record) < 8 {
		return nil, fmt.Errorf("expected 8 columns, got %d", len(record))
	}

	t, err := strconv.ParseFloat(record[0], 64)
	if err != nil {
		return nil, fmt.Errorf("time: %w", err)
	}
	inst, err := strconv.Atoi(record[1])
	if err != nil {
		return nil, fmt.Errorf("instrument: %w", err)
	}
	orderID, err := strconv.ParseUint(record[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("order id: %w", err)
	}

	evt := &MarketEvent{
		Time:       t,
		Instrument: domain.Instrument(inst),
		Operation:  record[2],
		OrderID:    uint32(orderID),
	}

	if record[4] != "" {
		side, err := parseSide(record[4])
		if err != nil {
			return nil, err
		}
		evt.Side = side
	}
	if record[5] != "" {
		v, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
		evt.Volume = int64(v)
	}
	if record[6] != "" {
		p, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		evt.Price = int64(p * inputScaling)
	}
	if record[7] != "" {
		ls, err := parseLifespan(record[7])
		if err != nil {
			return nil, err
		}
		evt.Lifespan = ls
	}

	return evt, nil
}

func parseSide(s string) (domain.Side, error) {
	switch strings.ToUpper(s) {
	case "A", "ASK", "S", "SELL":
		return domain.SideSell, nil
	case "B", "BID", "BUY":
		return domain.SideBuy, nil
	}
	return 0, fmt.Errorf("invalid side %q", s)
}

func parseLifespan(s string) (domain.Lifespan, error) {
	switch strings.ToUpper(s) {
	case "F", "FAK":
		return domain.FillAndKill, nil
	case "G", "GFD":
		return domain.GoodForDay, nil
	}
	return 0, fmt.Errorf("invalid lifespan %q", s)
}
