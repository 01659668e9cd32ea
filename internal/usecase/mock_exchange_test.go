package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_breakout_bot/internal/domain"
)

// mockExchange is a configurable in-memory exchange for usecase tests.
type mockExchange struct {
	candles    []domain.Candle
	candlesErr error

	price    float64
	priceErr error

	position    *domain.Position
	positionErr error

	openOrders    []domain.PendingOrder
	openOrdersErr error

	orders map[string]*domain.PendingOrder

	nextOrderID   int
	placeStopErr  map[int]error // keyed by call number, 0-based
	placeLimitErr error

	placedStops  []placedOrder
	placedLimits []placedOrder
	edited       []editedOrder
	cancelled    []string
	cancelErr    error
	editErr      error
}

type placedOrder struct {
	side  domain.Side
	size  float64
	price float64
}

type editedOrder struct {
	orderID string
	price   float64
}

func newMockExchange() *mockExchange {
	return &mockExchange{orders: make(map[string]*domain.PendingOrder)}
}

func (m *mockExchange) GetCandles(ctx context.Context, symbol, resolution string, limit int) ([]domain.Candle, error) {
	return m.candles, m.candlesErr
}

func (m *mockExchange) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, m.priceErr
}

func (m *mockExchange) PlaceStopOrder(ctx context.Context, productID int, symbol string, side domain.Side, size, triggerPrice float64) (string, error) {
	call := len(m.placedStops)
	if err, ok := m.placeStopErr[call]; ok && err != nil {
		return "", err
	}
	m.placedStops = append(m.placedStops, placedOrder{side: side, size: size, price: triggerPrice})
	id := m.newID()
	m.orders[id] = &domain.PendingOrder{
		ID: id, Side: side, Size: size, StopPrice: triggerPrice, Status: domain.OrderOpen,
	}
	return id, nil
}

func (m *mockExchange) PlaceLimitOrder(ctx context.Context, productID int, symbol string, side domain.Side, size, price float64) (string, error) {
	if m.placeLimitErr != nil {
		return "", m.placeLimitErr
	}
	m.placedLimits = append(m.placedLimits, placedOrder{side: side, size: size, price: price})
	id := m.newID()
	m.orders[id] = &domain.PendingOrder{
		ID: id, Side: side, Size: size, Price: price, Status: domain.OrderOpen,
	}
	return id, nil
}

func (m *mockExchange) EditOrder(ctx context.Context, productID int, orderID string, newPrice float64) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.edited = append(m.edited, editedOrder{orderID: orderID, price: newPrice})
	return nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, productID int, orderID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	if o, ok := m.orders[orderID]; ok {
		o.Status = domain.OrderCancelled
	}
	return nil
}

func (m *mockExchange) CancelAllOrders(ctx context.Context, productID int) error {
	for id, o := range m.orders {
		o.Status = domain.OrderCancelled
		m.cancelled = append(m.cancelled, id)
	}
	return nil
}

func (m *mockExchange) GetOrder(ctx context.Context, productID int, orderID string) (*domain.PendingOrder, error) {
	if o, ok := m.orders[orderID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, fmt.Errorf("order %s not found", orderID)
}

func (m *mockExchange) GetOpenOrders(ctx context.Context, productID int) ([]domain.PendingOrder, error) {
	return m.openOrders, m.openOrdersErr
}

func (m *mockExchange) GetPosition(ctx context.Context, productID int) (*domain.Position, error) {
	return m.position, m.positionErr
}

func (m *mockExchange) newID() string {
	m.nextOrderID++
	return fmt.Sprintf("order-%d", m.nextOrderID)
}

func (m *mockExchange) fill(orderID string, fillPrice float64) {
	if o, ok := m.orders[orderID]; ok {
		o.Status = domain.OrderFilled
		o.FillPrice = fillPrice
	}
}

// memoryTradeRepo records journal writes for assertions.
type memoryTradeRepo struct {
	trades  []*domain.TradeRecord
	history []*domain.PositionHistory
	saveErr error
}

func (r *memoryTradeRepo) SaveTrade(ctx context.Context, rec *domain.TradeRecord) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.trades = append(r.trades, rec)
	return nil
}

func (r *memoryTradeRepo) ListTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	out := make([]domain.TradeRecord, 0, len(r.trades))
	for _, t := range r.trades {
		out = append(out, *t)
	}
	return out, nil
}

func (r *memoryTradeRepo) SavePositionHistory(ctx context.Context, h *domain.PositionHistory) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.history = append(r.history, h)
	return nil
}

func (r *memoryTradeRepo) ListPositionHistory(ctx context.Context, limit int) ([]domain.PositionHistory, error) {
	out := make([]domain.PositionHistory, 0, len(r.history))
	for _, h := range r.history {
		out = append(out, *h)
	}
	return out, nil
}
