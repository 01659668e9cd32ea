package domain

import "time"

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the closing side for the given position side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position represents the single open position on the exchange.
type Position struct {
	ProductID  int     `json:"product_id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
}

// RiskState tracks the protective orders attached to an open position.
// BreakevenApplied transitions false->true at most once per position and
// never regresses while the position stays open.
type RiskState struct {
	StopLossOrderID   string `json:"stop_loss_order_id,omitempty"`
	TakeProfitOrderID string `json:"take_profit_order_id,omitempty"`
	BreakevenApplied  bool   `json:"breakeven_applied"`
}

// Protected reports whether the position has at least a stop loss attached.
func (r *RiskState) Protected() bool {
	return r != nil && r.StopLossOrderID != ""
}

// TradeRecord is a journal entry for an order event (placement, fill,
// cancellation or close marker).
type TradeRecord struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	OrderID   string    `json:"order_id,omitempty"`
	Side      Side      `json:"side,omitempty"`
	Role      OrderRole `json:"role"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PositionHistory represents a closed position.
type PositionHistory struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Size        float64   `json:"size"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	ClosedAt    time.Time `json:"closed_at"`
}
