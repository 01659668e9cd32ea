package domain

type OrderRole string

const (
	RoleEntry      OrderRole = "entry"
	RoleStopLoss   OrderRole = "stop_loss"
	RoleTakeProfit OrderRole = "take_profit"
)

type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// PendingOrder is an open order as the exchange reports it.
// StopPrice is zero for plain limit orders.
type PendingOrder struct {
	ID        string
	Side      Side
	Size      float64
	Price     float64
	StopPrice float64
	Status    OrderStatus
	FillPrice float64
}

// IsStop reports whether the order is trigger-based (stop order).
func (o PendingOrder) IsStop() bool {
	return o.StopPrice > 0
}
