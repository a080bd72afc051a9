package domain

import "errors"

// RejectReason is the specific reason an order request was refused before it
// reached the book. Every rejection is reported to the originating trader
// and recorded in the match event log; no reason is ever silently dropped.
type RejectReason uint8

const (
	RejectRateLimit RejectReason = iota + 1
	RejectTooManyOpenOrders
	RejectVolumeLimit
	RejectPositionLimit
	RejectUnknownOrder
	RejectInvalidSide
	RejectInvalidLifespan
	RejectInvalidVolume
	RejectInvalidPrice
	RejectStaleOrderID
	RejectSelfCross
	RejectMarketClosed
	RejectAmendIncrease
)

// rejectMessages are the texts sent back over the execution channel. They
// must fit the fixed 50-byte error field of the wire format.
var rejectMessages = map[RejectReason]string{
	RejectRateLimit:         "order rejected: message frequency limit breached",
	RejectTooManyOpenOrders: "order rejected: active order count limit breached",
	RejectVolumeLimit:       "order rejected: active volume limit breached",
	RejectPositionLimit:     "order rejected: position limit breached",
	RejectUnknownOrder:      "unknown or already inactive order id",
	RejectInvalidSide:       "order rejected: invalid side",
	RejectInvalidLifespan:   "order rejected: invalid lifespan",
	RejectInvalidVolume:     "order rejected: invalid volume",
	RejectInvalidPrice:      "price is not a multiple of tick size",
	RejectStaleOrderID:      "duplicate or out-of-order client order id",
	RejectSelfCross:         "order rejected: in cross with an existing order",
	RejectMarketClosed:      "order rejected: market not yet open",
	RejectAmendIncrease:     "amend would increase order volume",
}

// RejectError is an order-level rejection. It is fully recoverable: the
// trader's session stays open and it may resubmit.
type RejectError struct {
	Reason  RejectReason
	OrderID uint32
}

func (e *RejectError) Error() string {
	if msg, ok := rejectMessages[e.Reason]; ok {
		return msg
	}
	return "order rejected"
}

// NewReject creates a rejection for the given client order id.
func NewReject(reason RejectReason, orderID uint32) *RejectError {
	return &RejectError{Reason: reason, OrderID: orderID}
}

// ConfigError represents a fatal configuration error. Nothing partially
// runs: startup aborts before any trader connection is accepted.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrLoginFailed is returned when a login carries an unknown team name,
	// a wrong secret, or the team already has an active session.
	ErrLoginFailed = errors.New("login failed")

	// ErrMalformedMessage is returned for a frame that cannot be decoded.
	// Protocol errors close the offending connection only.
	ErrMalformedMessage = errors.New("malformed message")
)
