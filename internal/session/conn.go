package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"exchange_go/internal/codec"
	"exchange_go/internal/domain"
	"exchange_go/internal/event"
	"exchange_go/internal/infra"
)

const (
	// loginTimeout is how long a fresh connection has to send its login.
	loginTimeout = time.Second

	// outboxSize bounds the per-connection send queue. The matching loop
	// never blocks on a slow consumer; overflow closes the connection.
	outboxSize = 512

	writeTimeout = 5 * time.Second
)

// Conn is one trader connection. The read goroutine decodes frames into
// engine events; the write goroutine drains the outbox. The engine-facing
// send methods only enqueue and never block.
type Conn struct {
	id     uuid.UUID
	ws     *websocket.Conn
	engine Engine
	logger *slog.Logger

	outbox chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewConn(ws *websocket.Conn, eng Engine, logger *slog.Logger) *Conn {
	id := uuid.New()
	return &Conn{
		id:     id,
		ws:     ws,
		engine: eng,
		logger: logger.With("component", "session", "conn_id", id.String()),
		outbox: make(chan []byte, outboxSize),
		closed: make(chan struct{}),
	}
}

// Run services the connection until it closes. The first frame must be a
// login within the login timeout.
func (c *Conn) Run() {
	infra.GlobalMetrics.IncrementSessions()
	defer infra.GlobalMetrics.DecrementSessions()

	go c.writeLoop()

	loginTimer := time.AfterFunc(loginTimeout, func() {
		c.logger.Info("login timeout")
		c.Close()
	})

	c.readLoop(loginTimer)

	// Always tell the engine; it ignores connections it never registered.
	c.engine.Inbox() <- &event.DisconnectEvent{
		BaseEvent: event.BaseEvent{Conn: c, Ts: c.engine.Now()},
	}
	c.Close()
}

func (c *Conn) readLoop(loginTimer *time.Timer) {
	authenticated := false
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection closed", "error", err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		// One websocket message may carry several frames.
		for len(data) > 0 {
			typ, frame, rest, ok := codec.NextFrame(data)
			if !ok {
				c.protocolError(domain.ErrMalformedMessage.Error())
				return
			}
			data = rest

			if !authenticated {
				if typ != codec.MsgLogin {
					c.protocolError("first message must be a login")
					return
				}
				login, ok := codec.DecodeLogin(frame)
				if !ok {
					c.protocolError(domain.ErrMalformedMessage.Error())
					return
				}
				loginTimer.Stop()
				authenticated = true
				c.engine.Inbox() <- &event.LoginEvent{
					BaseEvent: event.BaseEvent{Conn: c, Ts: c.engine.Now()},
					Name:      login.Name,
					Secret:    login.Secret,
				}
				continue
			}

			if !c.dispatch(typ, frame) {
				return
			}
		}
	}
}

// dispatch turns one decoded frame into an engine event. Returns false on a
// protocol error, which closes the connection.
func (c *Conn) dispatch(typ byte, frame []byte) bool {
	ts := c.engine.Now()

	switch typ {
	case codec.MsgInsertOrder:
		m, ok := codec.DecodeInsert(frame)
		if !ok {
			c.protocolError(domain.ErrMalformedMessage.Error())
			return false
		}
		ev := event.AcquireInsertEvent()
		ev.Conn, ev.Ts = c, ts
		ev.ClientOrderID = m.ClientOrderID
		ev.Side = domain.Side(m.Side)
		ev.Price = int64(m.Price)
		ev.Volume = int64(m.Volume)
		ev.Lifespan = domain.Lifespan(m.Lifespan)
		c.engine.Inbox() <- ev
	case codec.MsgAmendOrder:
		m, ok := codec.DecodeAmend(frame)
		if !ok {
			c.protocolError(domain.ErrMalformedMessage.Error())
			return false
		}
		c.engine.Inbox() <- &event.AmendEvent{
			BaseEvent:     event.BaseEvent{Conn: c, Ts: ts},
			ClientOrderID: m.ClientOrderID,
			Volume:        int64(m.Volume),
		}
	case codec.MsgCancelOrder:
		m, ok := codec.DecodeCancel(frame)
		if !ok {
			c.protocolError(domain.ErrMalformedMessage.Error())
			return false
		}
		ev := event.AcquireCancelEvent()
		ev.Conn, ev.Ts = c, ts
		ev.ClientOrderID = m.ClientOrderID
		c.engine.Inbox() <- ev
	case codec.MsgHedgeOrder:
		m, ok := codec.DecodeHedge(frame)
		if !ok {
			c.protocolError(domain.ErrMalformedMessage.Error())
			return false
		}
		c.engine.Inbox() <- &event.HedgeEvent{
			BaseEvent:     event.BaseEvent{Conn: c, Ts: ts},
			ClientOrderID: m.ClientOrderID,
			Side:          domain.Side(m.Side),
			Price:         int64(m.Price),
			Volume:        int64(m.Volume),
		}
	default:
		c.protocolError(domain.ErrMalformedMessage.Error())
		return false
	}
	return true
}

// protocolError reports the problem to the trader and closes only this
// connection.
func (c *Conn) protocolError(message string) {
	infra.GlobalMetrics.RecordError()
	c.logger.Info("protocol error", "message", message)
	c.SendError(0, message)
	c.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.outbox:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				c.logger.Info("write failed", "error", err)
				c.Close()
				return
			}
		}
	}
}

// enqueue pushes an encoded message without blocking. A full outbox means
// the trader cannot keep up; the connection is closed rather than stalling
// the matching loop.
func (c *Conn) enqueue(payload []byte) {
	select {
	case c.outbox <- payload:
	default:
		c.logger.Warn("send queue overflow, closing connection")
		c.Close()
	}
}

// ExecutionConnection implementation. Called from the matching loop.

func (c *Conn) SendError(clientOrderID uint32, message string) {
	c.enqueue(codec.EncodeError(nil, codec.ErrorMsg{ClientOrderID: clientOrderID, Message: message}))
}

func (c *Conn) SendOrderStatus(clientOrderID uint32, fillVolume, remainingVolume, fees int64) {
	c.enqueue(codec.EncodeOrderStatus(nil, codec.OrderStatus{
		ClientOrderID:   clientOrderID,
		FillVolume:      uint32(fillVolume),
		RemainingVolume: uint32(remainingVolume),
		Fees:            int32(fees),
	}))
}

func (c *Conn) SendOrderFilled(clientOrderID uint32, price, volume int64) {
	c.enqueue(codec.EncodeOrderFilled(nil, codec.OrderFilled{
		ClientOrderID: clientOrderID,
		Price:         uint32(price),
		Volume:        uint32(volume),
	}))
}

func (c *Conn) SendHedgeFilled(clientOrderID uint32, averagePrice, volume int64) {
	c.enqueue(codec.EncodeHedgeFilled(nil, codec.HedgeFilled{
		ClientOrderID: clientOrderID,
		AveragePrice:  uint32(averagePrice),
		Volume:        uint32(volume),
	}))
}

// Close tears down the connection. Safe to call from any goroutine, any
// number of times.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}
