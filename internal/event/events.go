package event

import "exchange_go/internal/domain"

// Type discriminates the events flowing through the engine inbox.
type Type uint8

const (
	TypeLogin Type = iota + 1
	TypeInsert
	TypeAmend
	TypeCancel
	TypeHedge
	TypeDisconnect
)

// Event is one unit of work for the matching loop. Everything that mutates
// shared state (books, positions, risk counters) arrives as an Event on the
// single engine inbox; the loop is the sole consumer.
type Event interface {
	GetType() Type
	GetTs() float64
	GetConn() domain.ExecutionConnection
}

// BaseEvent carries the fields common to all events: the originating
// connection and the match time stamped at arrival.
type BaseEvent struct {
	Conn domain.ExecutionConnection
	Ts   float64
}

func (e *BaseEvent) GetTs() float64                      { return e.Ts }
func (e *BaseEvent) GetConn() domain.ExecutionConnection { return e.Conn }

// LoginEvent authenticates a connection against the trader roster.
type LoginEvent struct {
	BaseEvent
	Name   string
	Secret string
}

func (e *LoginEvent) GetType() Type { return TypeLogin }

// InsertEvent is a new order request from an authenticated trader.
type InsertEvent struct {
	BaseEvent
	ClientOrderID uint32
	Side          domain.Side
	Price         int64
	Volume        int64
	Lifespan      domain.Lifespan
}

func (e *InsertEvent) GetType() Type { return TypeInsert }

// AmendEvent reduces the volume of a resting order.
type AmendEvent struct {
	BaseEvent
	ClientOrderID uint32
	Volume        int64
}

func (e *AmendEvent) GetType() Type { return TypeAmend }

// CancelEvent removes a resting order.
type CancelEvent struct {
	BaseEvent
	ClientOrderID uint32
}

func (e *CancelEvent) GetType() Type { return TypeCancel }

// HedgeEvent is an immediate-fill order against the reference future book.
type HedgeEvent struct {
	BaseEvent
	ClientOrderID uint32
	Side          domain.Side
	Price         int64
	Volume        int64
}

func (e *HedgeEvent) GetType() Type { return TypeHedge }

// DisconnectEvent tears down a session: the trader's resting orders are
// cancelled and its risk state released.
type DisconnectEvent struct {
	BaseEvent
}

func (e *DisconnectEvent) GetType() Type { return TypeDisconnect }
