// Package codec implements the fixed-layout binary wire format of the
// execution and information channels. Every message is a header (payload
// length including header, uint16, plus a type byte) followed by a
// fixed-size big-endian payload.
package codec

import "encoding/binary"

// Message types.
const (
	// Execution channel
	MsgAmendOrder  = 1
	MsgCancelOrder = 2
	MsgError       = 3
	MsgHedgeFilled = 4
	MsgHedgeOrder  = 5
	MsgInsertOrder = 6
	MsgLogin       = 7
	MsgOrderFilled = 8
	MsgOrderStatus = 9

	// Information channel
	MsgOrderBookUpdate = 10
	MsgTradeTicks      = 11
)

const (
	HeaderSize = 3

	// TopLevels is the number of price levels in a book or ticks message.
	TopLevels = 5

	// NameSize is the fixed length of the team name and secret fields.
	NameSize = 50

	LoginSize       = HeaderSize + 2*NameSize
	InsertSize      = HeaderSize + 14
	AmendSize       = HeaderSize + 8
	CancelSize      = HeaderSize + 4
	HedgeSize       = HeaderSize + 13
	ErrorSize       = HeaderSize + 4 + NameSize
	OrderStatusSize = HeaderSize + 16
	OrderFilledSize = HeaderSize + 12
	HedgeFilledSize = HeaderSize + 12
	BookUpdateSize  = HeaderSize + 5 + 16*TopLevels
	TradeTicksSize  = HeaderSize + 5 + 16*TopLevels
)

func putHeader(dst []byte, size int, typ byte) {
	binary.BigEndian.PutUint16(dst[0:2], uint16(size))
	dst[2] = typ
}

// NextFrame splits one complete message off the front of a byte stream.
// Returns ok=false when the buffer does not yet hold a full message.
func NextFrame(data []byte) (typ byte, frame, rest []byte, ok bool) {
	if len(data) < HeaderSize {
		return 0, nil, data, false
	}
	length := int(binary.BigEndian.Uint16(data[0:2]))
	if length < HeaderSize || len(data) < length {
		return 0, nil, data, false
	}
	return data[2], data[:length], data[length:], true
}

func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func fixedString(src []byte) string {
	end := len(src)
	for end > 0 && src[end-1] == 0 {
		end--
	}
	return string(src[:end])
}

// ======================================================================
// Client to server
// ======================================================================

// Login carries the authentication handshake.
type Login struct {
	Name   string
	Secret string
}

func EncodeLogin(dst []byte, m Login) []byte {
	dst = grow(dst, LoginSize)
	putHeader(dst, LoginSize, MsgLogin)
	putFixedString(dst[3:3+NameSize], m.Name)
	putFixedString(dst[3+NameSize:], m.Secret)
	return dst
}

func DecodeLogin(frame []byte) (Login, bool) {
	if len(frame) != LoginSize {
		return Login{}, false
	}
	return Login{
		Name:   fixedString(frame[3 : 3+NameSize]),
		Secret: fixedString(frame[3+NameSize:]),
	}, true
}

// Insert is a new order request.
type Insert struct {
	ClientOrderID uint32
	Side          uint8
	Price         uint32
	Volume        uint32
	Lifespan      uint8
}

func EncodeInsert(dst []byte, m Insert) []byte {
	dst = grow(dst, InsertSize)
	putHeader(dst, InsertSize, MsgInsertOrder)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	dst[7] = m.Side
	binary.BigEndian.PutUint32(dst[8:12], m.Price)
	binary.BigEndian.PutUint32(dst[12:16], m.Volume)
	dst[16] = m.Lifespan
	return dst
}

func DecodeInsert(frame []byte) (Insert, bool) {
	if len(frame) != InsertSize {
		return Insert{}, false
	}
	return Insert{
		ClientOrderID: binary.BigEndian.Uint32(frame[3:7]),
		Side:          frame[7],
		Price:         binary.BigEndian.Uint32(frame[8:12]),
		Volume:        binary.BigEndian.Uint32(frame[12:16]),
		Lifespan:      frame[16],
	}, true
}

// Amend reduces the volume of an order.
type Amend struct {
	ClientOrderID uint32
	Volume        uint32
}

func EncodeAmend(dst []byte, m Amend) []byte {
	dst = grow(dst, AmendSize)
	putHeader(dst, AmendSize, MsgAmendOrder)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	binary.BigEndian.PutUint32(dst[7:11], m.Volume)
	return dst
}

func DecodeAmend(frame []byte) (Amend, bool) {
	if len(frame) != AmendSize {
		return Amend{}, false
	}
	return Amend{
		ClientOrderID: binary.BigEndian.Uint32(frame[3:7]),
		Volume:        binary.BigEndian.Uint32(frame[7:11]),
	}, true
}

// Cancel removes an order.
type Cancel struct {
	ClientOrderID uint32
}

func EncodeCancel(dst []byte, m Cancel) []byte {
	dst = grow(dst, CancelSize)
	putHeader(dst, CancelSize, MsgCancelOrder)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	return dst
}

func DecodeCancel(frame []byte) (Cancel, bool) {
	if len(frame) != CancelSize {
		return Cancel{}, false
	}
	return Cancel{ClientOrderID: binary.BigEndian.Uint32(frame[3:7])}, true
}

// Hedge is an immediate-fill order against the future book.
type Hedge struct {
	ClientOrderID uint32
	Side          uint8
	Price         uint32
	Volume        uint32
}

func EncodeHedge(dst []byte, m Hedge) []byte {
	dst = grow(dst, HedgeSize)
	putHeader(dst, HedgeSize, MsgHedgeOrder)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	dst[7] = m.Side
	binary.BigEndian.PutUint32(dst[8:12], m.Price)
	binary.BigEndian.PutUint32(dst[12:16], m.Volume)
	return dst
}

func DecodeHedge(frame []byte) (Hedge, bool) {
	if len(frame) != HedgeSize {
		return Hedge{}, false
	}
	return Hedge{
		ClientOrderID: binary.BigEndian.Uint32(frame[3:7]),
		Side:          frame[7],
		Price:         binary.BigEndian.Uint32(frame[8:12]),
		Volume:        binary.BigEndian.Uint32(frame[12:16]),
	}, true
}

// ======================================================================
// Server to client
// ======================================================================

// ErrorMsg reports a rejection or protocol error for one order.
type ErrorMsg struct {
	ClientOrderID uint32
	Message       string
}

func EncodeError(dst []byte, m ErrorMsg) []byte {
	dst = grow(dst, ErrorSize)
	putHeader(dst, ErrorSize, MsgError)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	putFixedString(dst[7:], m.Message)
	return dst
}

func DecodeError(frame []byte) (ErrorMsg, bool) {
	if len(frame) != ErrorSize {
		return ErrorMsg{}, false
	}
	return ErrorMsg{
		ClientOrderID: binary.BigEndian.Uint32(frame[3:7]),
		Message:       fixedString(frame[7:]),
	}, true
}

// OrderStatus reports fill progress and accumulated fees for one order.
type OrderStatus struct {
	ClientOrderID   uint32
	FillVolume      uint32
	RemainingVolume uint32
	Fees            int32
}

func EncodeOrderStatus(dst []byte, m OrderStatus) []byte {
	dst = grow(dst, OrderStatusSize)
	putHeader(dst, OrderStatusSize, MsgOrderStatus)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	binary.BigEndian.PutUint32(dst[7:11], m.FillVolume)
	binary.BigEndian.PutUint32(dst[11:15], m.RemainingVolume)
	binary.BigEndian.PutUint32(dst[15:19], uint32(m.Fees))
	return dst
}

func DecodeOrderStatus(frame []byte) (OrderStatus, bool) {
	if len(frame) != OrderStatusSize {
		return OrderStatus{}, false
	}
	return OrderStatus{
		ClientOrderID:   binary.BigEndian.Uint32(frame[3:7]),
		FillVolume:      binary.BigEndian.Uint32(frame[7:11]),
		RemainingVolume: binary.BigEndian.Uint32(frame[11:15]),
		Fees:            int32(binary.BigEndian.Uint32(frame[15:19])),
	}, true
}

// OrderFilled reports one fill of an order.
type OrderFilled struct {
	ClientOrderID uint32
	Price         uint32
	Volume        uint32
}

func EncodeOrderFilled(dst []byte, m OrderFilled) []byte {
	dst = grow(dst, OrderFilledSize)
	putHeader(dst, OrderFilledSize, MsgOrderFilled)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	binary.BigEndian.PutUint32(dst[7:11], m.Price)
	binary.BigEndian.PutUint32(dst[11:15], m.Volume)
	return dst
}

func DecodeOrderFilled(frame []byte) (OrderFilled, bool) {
	if len(frame) != OrderFilledSize {
		return OrderFilled{}, false
	}
	return OrderFilled{
		ClientOrderID: binary.BigEndian.Uint32(frame[3:7]),
		Price:         binary.BigEndian.Uint32(frame[7:11]),
		Volume:        binary.BigEndian.Uint32(frame[11:15]),
	}, true
}

// HedgeFilled reports the outcome of a hedge order.
type HedgeFilled struct {
	ClientOrderID uint32
	AveragePrice  uint32
	Volume        uint32
}

func EncodeHedgeFilled(dst []byte, m HedgeFilled) []byte {
	dst = grow(dst, HedgeFilledSize)
	putHeader(dst, HedgeFilledSize, MsgHedgeFilled)
	binary.BigEndian.PutUint32(dst[3:7], m.ClientOrderID)
	binary.BigEndian.PutUint32(dst[7:11], m.AveragePrice)
	binary.BigEndian.PutUint32(dst[11:15], m.Volume)
	return dst
}

func DecodeHedgeFilled(frame []byte) (HedgeFilled, bool) {
	if len(frame) != HedgeFilledSize {
		return HedgeFilled{}, false
	}
	return HedgeFilled{
		ClientOrderID: binary.BigEndian.Uint32(frame[3:7]),
		AveragePrice:  binary.BigEndian.Uint32(frame[7:11]),
		Volume:        binary.BigEndian.Uint32(frame[11:15]),
	}, true
}

// ======================================================================
// Information channel
// ======================================================================

// BookSnapshot carries the best TopLevels levels of one instrument's book,
// or the traded ticks since the previous snapshot. Sequence numbers are per
// instrument and let a reader detect a missed update.
type BookSnapshot struct {
	Instrument uint8
	Sequence   uint32
	AskPrices  [TopLevels]uint32
	AskVolumes [TopLevels]uint32
	BidPrices  [TopLevels]uint32
	BidVolumes [TopLevels]uint32
}

func encodeSnapshot(dst []byte, size int, typ byte, m BookSnapshot) []byte {
	dst = grow(dst, size)
	putHeader(dst, size, typ)
	dst[3] = m.Instrument
	binary.BigEndian.PutUint32(dst[4:8], m.Sequence)
	off := 8
	for _, group := range [][TopLevels]uint32{m.AskPrices, m.AskVolumes, m.BidPrices, m.BidVolumes} {
		for _, v := range group {
			binary.BigEndian.PutUint32(dst[off:off+4], v)
			off += 4
		}
	}
	return dst
}

func decodeSnapshot(frame []byte) (BookSnapshot, bool) {
	var m BookSnapshot
	m.Instrument = frame[3]
	m.Sequence = binary.BigEndian.Uint32(frame[4:8])
	off := 8
	for _, group := range []*[TopLevels]uint32{&m.AskPrices, &m.AskVolumes, &m.BidPrices, &m.BidVolumes} {
		for i := range group {
			group[i] = binary.BigEndian.Uint32(frame[off : off+4])
			off += 4
		}
	}
	return m, true
}

// EncodeBookUpdate serializes a periodic top-of-book snapshot.
func EncodeBookUpdate(dst []byte, m BookSnapshot) []byte {
	return encodeSnapshot(dst, BookUpdateSize, MsgOrderBookUpdate, m)
}

func DecodeBookUpdate(frame []byte) (BookSnapshot, bool) {
	if len(frame) != BookUpdateSize {
		return BookSnapshot{}, false
	}
	return decodeSnapshot(frame)
}

// EncodeTradeTicks serializes the traded volume per price since the last
// ticks message.
func EncodeTradeTicks(dst []byte, m BookSnapshot) []byte {
	return encodeSnapshot(dst, TradeTicksSize, MsgTradeTicks, m)
}

func DecodeTradeTicks(frame []byte) (BookSnapshot, bool) {
	if len(frame) != TradeTicksSize {
		return BookSnapshot{}, false
	}
	return decodeSnapshot(frame)
}

func grow(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	return dst[:size]
}
