package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientData means not enough complete candles were available to
// derive breakout levels. Level computation fails instead of reusing stale
// values; the cycle retries at the next boundary.
var ErrInsufficientData = errors.New("insufficient candle data")

// ErrBothLegsFilled means both entry legs reported filled in the same poll.
// The position is adopted from the buy leg but the condition is surfaced so
// an operator can intervene.
var ErrBothLegsFilled = errors.New("both entry legs filled")

// ErrOrderRejected means the exchange refused an order placement or edit.
// The affected slot stays empty and is retried on a later tick or boundary.
var ErrOrderRejected = errors.New("order rejected by exchange")

// DataIntegrityError marks a malformed candle (low above high).
type DataIntegrityError struct {
	High float64
	Low  float64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("malformed candle: low %f above high %f", e.Low, e.High)
}

// DenyReason explains why the safety gate refused an entry. Denials are
// expected control-flow outcomes, not errors.
type DenyReason string

const (
	DenyNone            DenyReason = ""
	DenyDuplicateOrders DenyReason = "duplicate_orders"
	DenySizeLimit       DenyReason = "size_limit_exceeded"
)

// Decision is the safety gate verdict for a prospective entry.
type Decision struct {
	Allowed      bool
	Reason       DenyReason
	PositionSize float64
	OpenOrders   int
}
