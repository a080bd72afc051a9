package storage

import (
	"exchange_go/internal/domain"
)

// MatchEventSink receives match event rows in processing order.
type MatchEventSink interface {
	AppendMatchEvent(row domain.MatchEventRow)
}

// MatchRecorder assigns sequence numbers to match events and forwards them
// to a sink. All methods must be called from the matching loop goroutine;
// the sequence number is the loop's own ordering and is never revised.
type MatchRecorder struct {
	sink MatchEventSink
	seq  uint64
}

func NewMatchRecorder(sink MatchEventSink) *MatchRecorder {
	return &MatchRecorder{sink: sink}
}

func (r *MatchRecorder) append(row domain.MatchEventRow) {
	r.seq++
	row.Seq = r.seq
	r.sink.AppendMatchEvent(row)
}

// Insert records a new order entering the matching engine. An empty name
// marks a market data order.
func (r *MatchRecorder) Insert(now float64, name string, orderID uint32, instrument domain.Instrument,
	side domain.Side, volume, price int64, lifespan domain.Lifespan) {
	r.append(domain.MatchEventRow{
		Time:       now,
		Competitor: name,
		Operation:  domain.OpInsert,
		OrderID:    orderID,
		Instrument: instrument.String(),
		Side:       side.String(),
		Volume:     volume,
		Price:      price,
		Lifespan:   lifespan.String(),
	})
}

// Amend records a volume reduction. diff is negative: the volume removed.
func (r *MatchRecorder) Amend(now float64, name string, orderID uint32, diff int64) {
	r.append(domain.MatchEventRow{
		Time:       now,
		Competitor: name,
		Operation:  domain.OpAmend,
		OrderID:    orderID,
		Volume:     diff,
	})
}

// Cancel records an order cancellation. diff is negative: the volume removed.
func (r *MatchRecorder) Cancel(now float64, name string, orderID uint32, diff int64) {
	r.append(domain.MatchEventRow{
		Time:       now,
		Competitor: name,
		Operation:  domain.OpCancel,
		OrderID:    orderID,
		Volume:     diff,
	})
}

// Fill records one side of an executed trade. diff is signed: positive for
// a buy fill, negative for a sell fill.
func (r *MatchRecorder) Fill(now float64, name string, orderID uint32, instrument domain.Instrument,
	side domain.Side, price, diff, fee int64) {
	r.append(domain.MatchEventRow{
		Time:       now,
		Competitor: name,
		Operation:  domain.OpTrade,
		OrderID:    orderID,
		Instrument: instrument.String(),
		Side:       side.String(),
		Volume:     diff,
		Price:      price,
		Fee:        fee,
	})
}

// Hedge records an executed hedge in the future.
func (r *MatchRecorder) Hedge(now float64, name string, orderID uint32, side domain.Side, price, volume int64) {
	r.append(domain.MatchEventRow{
		Time:       now,
		Competitor: name,
		Operation:  domain.OpHedge,
		OrderID:    orderID,
		Instrument: domain.InstrumentFuture.String(),
		Side:       side.String(),
		Volume:     volume,
		Price:      price,
	})
}
