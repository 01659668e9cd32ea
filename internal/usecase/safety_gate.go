package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

// SafetyGate validates that placing a new entry order will not duplicate an
// existing order or breach the maximum position size. The check is advisory:
// between the check and the placement another actor (a manual trade, another
// client) can invalidate it, and a later exchange-side rejection is handled
// as a normal placement failure.
type SafetyGate struct {
	exchange        domain.Exchange
	productID       int
	maxPositionSize float64
	checkOrders     bool
	logger          *zap.Logger
}

func NewSafetyGate(exchange domain.Exchange, productID int, maxPositionSize float64, checkOrders bool, logger *zap.Logger) *SafetyGate {
	return &SafetyGate{
		exchange:        exchange,
		productID:       productID,
		maxPositionSize: maxPositionSize,
		checkOrders:     checkOrders,
		logger:          logger,
	}
}

// CanPlaceEntry decides whether an entry of the given size may be placed now.
// A denial is an expected outcome, not an error; errors are transient
// exchange failures and the caller retries at the next boundary.
func (g *SafetyGate) CanPlaceEntry(ctx context.Context, orderSize float64) (domain.Decision, error) {
	if g.checkOrders {
		orders, err := g.exchange.GetOpenOrders(ctx, g.productID)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("failed to list open orders: %w", err)
		}
		if len(orders) > 0 {
			for _, o := range orders {
				g.logger.Info("existing open order",
					zap.String("order_id", o.ID),
					zap.String("side", string(o.Side)),
					zap.Float64("price", o.Price))
			}
			g.logger.Warn("entry denied: open orders already exist",
				zap.Int("open_orders", len(orders)))
			return domain.Decision{Reason: domain.DenyDuplicateOrders, OpenOrders: len(orders)}, nil
		}
	}

	pos, err := g.exchange.GetPosition(ctx, g.productID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("failed to fetch position: %w", err)
	}

	var current float64
	if pos != nil {
		current = math.Abs(pos.Size)
	}

	if current+orderSize > g.maxPositionSize {
		g.logger.Warn("entry denied: position size limit exceeded",
			zap.Float64("current_size", current),
			zap.Float64("order_size", orderSize),
			zap.Float64("max_position_size", g.maxPositionSize))
		return domain.Decision{Reason: domain.DenySizeLimit, PositionSize: current}, nil
	}

	return domain.Decision{Allowed: true, PositionSize: current}, nil
}
