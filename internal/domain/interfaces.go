package domain

import "context"

// Exchange defines the interface for interacting with the derivatives exchange.
// Every call may fail with a transient network or auth error; callers treat
// all such failures as retry-next-tick.
type Exchange interface {
	GetCandles(ctx context.Context, symbol, resolution string, limit int) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	PlaceStopOrder(ctx context.Context, productID int, symbol string, side Side, size float64, triggerPrice float64) (string, error)
	PlaceLimitOrder(ctx context.Context, productID int, symbol string, side Side, size float64, price float64) (string, error)
	EditOrder(ctx context.Context, productID int, orderID string, newPrice float64) error
	CancelOrder(ctx context.Context, productID int, orderID string) error
	CancelAllOrders(ctx context.Context, productID int) error
	GetOrder(ctx context.Context, productID int, orderID string) (*PendingOrder, error)
	GetOpenOrders(ctx context.Context, productID int) ([]PendingOrder, error)

	// GetPosition returns nil when no position is open for the product.
	GetPosition(ctx context.Context, productID int) (*Position, error)
}

// TradeRepository defines storage operations for the trade journal.
type TradeRepository interface {
	SaveTrade(ctx context.Context, rec *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]TradeRecord, error)

	SavePositionHistory(ctx context.Context, hist *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]PositionHistory, error)
}
