package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

// State is the per-cycle order/position lifecycle state.
type State string

const (
	StateNoOrders      State = "no_orders"
	StateOrdersPlaced  State = "orders_placed"
	StateOneSideFilled State = "one_side_filled"
	StateBracketArmed  State = "bracket_armed"
	StateClosed        State = "closed"
)

// OrderManager owns the entry bracket and the resulting position through its
// lifecycle: place both stop legs, detect which side fills, cancel the loser,
// arm the stop-loss/take-profit bracket and clear everything once the
// position closes. All mutation happens on the single bot loop.
type OrderManager struct {
	exchange domain.Exchange
	trades   domain.TradeRepository
	logger   *zap.Logger

	symbol           string
	productID        int
	orderSize        float64
	stopLossPoints   float64
	takeProfitPoints float64

	state       State
	levels      *domain.BreakoutLevels
	buyOrderID  string
	sellOrderID string
	position    *domain.Position
	risk        *domain.RiskState
}

func NewOrderManager(
	exchange domain.Exchange,
	trades domain.TradeRepository,
	symbol string,
	productID int,
	orderSize, stopLossPoints, takeProfitPoints float64,
	logger *zap.Logger,
) *OrderManager {
	return &OrderManager{
		exchange:         exchange,
		trades:           trades,
		logger:           logger,
		symbol:           symbol,
		productID:        productID,
		orderSize:        orderSize,
		stopLossPoints:   stopLossPoints,
		takeProfitPoints: takeProfitPoints,
		state:            StateNoOrders,
	}
}

func (m *OrderManager) State() State { return m.state }

func (m *OrderManager) Position() *domain.Position { return m.position }

func (m *OrderManager) Risk() *domain.RiskState { return m.risk }

func (m *OrderManager) Levels() *domain.BreakoutLevels { return m.levels }

// EntryOrderIDs returns the ids of any still-pending entry legs.
func (m *OrderManager) EntryOrderIDs() (buy, sell string) {
	return m.buyOrderID, m.sellOrderID
}

// PlaceBracket places the buy-stop above the high and the sell-stop below the
// low. If price has already left the range the breakout happened without us;
// placement is skipped and retried at the next boundary.
func (m *OrderManager) PlaceBracket(ctx context.Context, levels *domain.BreakoutLevels) error {
	if m.state != StateNoOrders && m.state != StateClosed {
		m.logger.Warn("entry placement skipped: cycle already in progress",
			zap.String("state", string(m.state)))
		return nil
	}

	price, err := m.exchange.GetCurrentPrice(ctx, m.symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch current price: %w", err)
	}

	if price >= levels.High {
		m.logger.Warn("bullish breakout already occurred, skipping bracket",
			zap.Float64("price", price), zap.Float64("high", levels.High))
		return nil
	}
	if price <= levels.Low {
		m.logger.Warn("bearish breakout already occurred, skipping bracket",
			zap.Float64("price", price), zap.Float64("low", levels.Low))
		return nil
	}

	buyID, err := m.exchange.PlaceStopOrder(ctx, m.productID, m.symbol, domain.SideLong, m.orderSize, levels.High)
	if err != nil {
		return fmt.Errorf("failed to place buy stop: %w", err)
	}
	m.logger.Info("buy stop placed",
		zap.String("order_id", buyID),
		zap.Float64("trigger", levels.High),
		zap.Float64("size", m.orderSize))
	m.journal(ctx, buyID, domain.SideLong, domain.RoleEntry, m.orderSize, levels.High, "entry bracket placed")

	sellID, err := m.exchange.PlaceStopOrder(ctx, m.productID, m.symbol, domain.SideShort, m.orderSize, levels.Low)
	if err != nil {
		// Roll back the first leg so the cycle retries cleanly next boundary.
		if cancelErr := m.exchange.CancelOrder(ctx, m.productID, buyID); cancelErr != nil {
			m.logger.Error("failed to cancel buy stop after sell stop failure",
				zap.String("order_id", buyID), zap.Error(cancelErr))
		}
		return fmt.Errorf("failed to place sell stop: %w", err)
	}
	m.logger.Info("sell stop placed",
		zap.String("order_id", sellID),
		zap.Float64("trigger", levels.Low),
		zap.Float64("size", m.orderSize))
	m.journal(ctx, sellID, domain.SideShort, domain.RoleEntry, m.orderSize, levels.Low, "entry bracket placed")

	m.levels = levels
	m.buyOrderID = buyID
	m.sellOrderID = sellID
	m.state = StateOrdersPlaced
	return nil
}

// CheckFills polls both entry legs. Exactly one fill creates the position and
// cancels the other leg; both legs filled is surfaced as ErrBothLegsFilled
// (the buy leg is adopted so the bracket still gets armed).
func (m *OrderManager) CheckFills(ctx context.Context) error {
	if m.state != StateOrdersPlaced {
		return nil
	}

	buy, err := m.exchange.GetOrder(ctx, m.productID, m.buyOrderID)
	if err != nil {
		return fmt.Errorf("failed to check buy leg: %w", err)
	}
	sell, err := m.exchange.GetOrder(ctx, m.productID, m.sellOrderID)
	if err != nil {
		return fmt.Errorf("failed to check sell leg: %w", err)
	}

	buyFilled := buy.Status == domain.OrderFilled
	sellFilled := sell.Status == domain.OrderFilled

	switch {
	case buyFilled && sellFilled:
		m.logger.Error("both entry legs report filled, adopting buy leg",
			zap.String("buy_order_id", m.buyOrderID),
			zap.String("sell_order_id", m.sellOrderID))
		m.adoptFill(ctx, buy, domain.SideLong, "")
		if err := m.armBracket(ctx); err != nil {
			m.logger.Error("failed to arm bracket after double fill", zap.Error(err))
		}
		return domain.ErrBothLegsFilled

	case buyFilled:
		m.adoptFill(ctx, buy, domain.SideLong, m.sellOrderID)
	case sellFilled:
		m.adoptFill(ctx, sell, domain.SideShort, m.buyOrderID)

	default:
		if buy.Status == domain.OrderCancelled && sell.Status == domain.OrderCancelled {
			// Both legs were cancelled out from under us (operator action).
			m.logger.Warn("both entry legs cancelled externally, resetting cycle")
			m.clearEntries()
			m.state = StateNoOrders
		}
		return nil
	}

	return m.armBracket(ctx)
}

func (m *OrderManager) adoptFill(ctx context.Context, filled *domain.PendingOrder, side domain.Side, cancelID string) {
	entry := filled.FillPrice
	if entry == 0 {
		entry = filled.Price
	}
	size := filled.Size
	if size == 0 {
		size = m.orderSize
	}

	m.position = &domain.Position{
		ProductID:  m.productID,
		Symbol:     m.symbol,
		Side:       side,
		Size:       size,
		EntryPrice: entry,
	}
	m.logger.Info("position opened",
		zap.String("side", string(side)),
		zap.Float64("size", size),
		zap.Float64("entry_price", entry),
		zap.String("order_id", filled.ID))
	m.journal(ctx, filled.ID, side, domain.RoleEntry, size, entry, "entry filled")

	if cancelID != "" {
		if err := m.exchange.CancelOrder(ctx, m.productID, cancelID); err != nil {
			m.logger.Error("failed to cancel opposite entry leg",
				zap.String("order_id", cancelID), zap.Error(err))
		} else {
			m.logger.Info("opposite entry leg cancelled", zap.String("order_id", cancelID))
			m.journal(ctx, cancelID, side.Opposite(), domain.RoleEntry, m.orderSize, 0, "opposite leg cancelled")
		}
	}

	m.buyOrderID = ""
	m.sellOrderID = ""
	m.state = StateOneSideFilled
}

// armBracket installs the stop-loss and take-profit around the entry price.
// A rejected leg leaves its slot empty; EnsureBracket retries it later.
func (m *OrderManager) armBracket(ctx context.Context) error {
	if m.position == nil {
		return fmt.Errorf("cannot arm bracket without a position")
	}
	if m.risk == nil {
		m.risk = &domain.RiskState{}
	}

	pos := m.position
	var slPrice, tpPrice float64
	if pos.Side == domain.SideLong {
		slPrice = pos.EntryPrice - m.stopLossPoints
		tpPrice = pos.EntryPrice + m.takeProfitPoints
	} else {
		slPrice = pos.EntryPrice + m.stopLossPoints
		tpPrice = pos.EntryPrice - m.takeProfitPoints
	}
	closeSide := pos.Side.Opposite()

	var firstErr error
	if m.risk.StopLossOrderID == "" {
		slID, err := m.exchange.PlaceStopOrder(ctx, m.productID, m.symbol, closeSide, pos.Size, slPrice)
		if err != nil {
			m.logger.Error("failed to place stop loss", zap.Float64("price", slPrice), zap.Error(err))
			firstErr = fmt.Errorf("failed to place stop loss: %w", err)
		} else {
			m.risk.StopLossOrderID = slID
			m.logger.Info("stop loss placed", zap.String("order_id", slID), zap.Float64("price", slPrice))
			m.journal(ctx, slID, closeSide, domain.RoleStopLoss, pos.Size, slPrice, "bracket armed")
		}
	}

	if m.risk.TakeProfitOrderID == "" {
		tpID, err := m.exchange.PlaceLimitOrder(ctx, m.productID, m.symbol, closeSide, pos.Size, tpPrice)
		if err != nil {
			m.logger.Error("failed to place take profit", zap.Float64("price", tpPrice), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to place take profit: %w", err)
			}
		} else {
			m.risk.TakeProfitOrderID = tpID
			m.logger.Info("take profit placed", zap.String("order_id", tpID), zap.Float64("price", tpPrice))
			m.journal(ctx, tpID, closeSide, domain.RoleTakeProfit, pos.Size, tpPrice, "bracket armed")
		}
	}

	m.state = StateBracketArmed
	return firstErr
}

// EnsureBracket retries any bracket leg that was rejected when the position
// opened. No-op once both slots are filled.
func (m *OrderManager) EnsureBracket(ctx context.Context) error {
	if m.state != StateBracketArmed || m.position == nil {
		return nil
	}
	if m.risk != nil && m.risk.StopLossOrderID != "" && m.risk.TakeProfitOrderID != "" {
		return nil
	}
	return m.armBracket(ctx)
}

// AdoptRecovered installs a position reconstructed by the recovery manager
// and jumps the state machine straight into BracketArmed, skipping the entry
// placement states for this cycle.
func (m *OrderManager) AdoptRecovered(pos *domain.Position, risk *domain.RiskState) {
	m.position = pos
	m.risk = risk
	m.buyOrderID = ""
	m.sellOrderID = ""
	m.state = StateBracketArmed
}

// HandleClosed clears all per-position bookkeeping after the exchange
// reported zero size, journals the outcome and awaits the next boundary.
func (m *OrderManager) HandleClosed(ctx context.Context, exitPrice float64) {
	pos := m.position
	if pos == nil {
		return
	}

	var pnl float64
	if exitPrice > 0 {
		if pos.Side == domain.SideLong {
			pnl = (exitPrice - pos.EntryPrice) * pos.Size
		} else {
			pnl = (pos.EntryPrice - exitPrice) * pos.Size
		}
	}

	m.logger.Info("position closed",
		zap.String("side", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pnl", pnl))

	if err := m.trades.SavePositionHistory(ctx, &domain.PositionHistory{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Size:        pos.Size,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		ClosedAt:    time.Now(),
	}); err != nil {
		m.logger.Error("failed to save position history", zap.Error(err))
	}
	m.journal(ctx, "", pos.Side, domain.RoleEntry, 0, exitPrice, "position closed")

	m.position = nil
	m.risk = nil
	m.state = StateClosed
}

// CancelPendingEntries cancels any still-pending entry legs at a cycle
// boundary. An open position's bracket orders are never touched here.
func (m *OrderManager) CancelPendingEntries(ctx context.Context) {
	for _, id := range []string{m.buyOrderID, m.sellOrderID} {
		if id == "" {
			continue
		}
		if err := m.exchange.CancelOrder(ctx, m.productID, id); err != nil {
			m.logger.Error("failed to cancel stale entry order",
				zap.String("order_id", id), zap.Error(err))
			continue
		}
		m.logger.Info("stale entry order cancelled", zap.String("order_id", id))
		m.journal(ctx, id, "", domain.RoleEntry, m.orderSize, 0, "cancelled at reset")
	}
	m.clearEntries()
	if m.position == nil {
		m.state = StateNoOrders
	}
}

func (m *OrderManager) clearEntries() {
	m.buyOrderID = ""
	m.sellOrderID = ""
	m.levels = nil
}

func (m *OrderManager) journal(ctx context.Context, orderID string, side domain.Side, role domain.OrderRole, size, price float64, note string) {
	rec := &domain.TradeRecord{
		Symbol:    m.symbol,
		OrderID:   orderID,
		Side:      side,
		Role:      role,
		Size:      size,
		Price:     price,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := m.trades.SaveTrade(ctx, rec); err != nil {
		m.logger.Error("failed to save trade record", zap.Error(err))
	}
}
