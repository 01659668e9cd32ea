package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

// PositionMonitor watches a live position for closure and moves the stop
// loss to breakeven once price has travelled far enough in its favor.
type PositionMonitor struct {
	exchange         domain.Exchange
	productID        int
	symbol           string
	breakevenTrigger float64
	logger           *zap.Logger
}

func NewPositionMonitor(exchange domain.Exchange, productID int, symbol string, breakevenTrigger float64, logger *zap.Logger) *PositionMonitor {
	return &PositionMonitor{
		exchange:         exchange,
		productID:        productID,
		symbol:           symbol,
		breakevenTrigger: breakevenTrigger,
		logger:           logger,
	}
}

// Check returns closed=true once the exchange no longer reports the
// position. While the position lives it applies at most one breakeven
// adjustment over the position's lifetime.
func (p *PositionMonitor) Check(ctx context.Context, pos *domain.Position, risk *domain.RiskState) (closed bool, exitPrice float64, err error) {
	current, err := p.exchange.GetPosition(ctx, p.productID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to fetch position: %w", err)
	}
	if current == nil || current.Size == 0 {
		price, priceErr := p.exchange.GetCurrentPrice(ctx, p.symbol)
		if priceErr != nil {
			p.logger.Warn("position closed but exit price unavailable", zap.Error(priceErr))
			return true, 0, nil
		}
		return true, price, nil
	}

	price, err := p.exchange.GetCurrentPrice(ctx, p.symbol)
	if err != nil {
		return false, 0, fmt.Errorf("failed to fetch current price: %w", err)
	}

	var profit float64
	if pos.Side == domain.SideLong {
		profit = price - pos.EntryPrice
	} else {
		profit = pos.EntryPrice - price
	}

	if risk == nil || risk.BreakevenApplied || profit < p.breakevenTrigger {
		return false, 0, nil
	}

	if risk.StopLossOrderID == "" {
		p.logger.Warn("breakeven trigger reached but no stop loss order to move",
			zap.Float64("profit", profit))
		return false, 0, nil
	}

	if err := p.exchange.EditOrder(ctx, p.productID, risk.StopLossOrderID, pos.EntryPrice); err != nil {
		p.logger.Error("failed to move stop loss to breakeven",
			zap.String("order_id", risk.StopLossOrderID), zap.Error(err))
	} else {
		p.logger.Info("stop loss moved to breakeven",
			zap.String("order_id", risk.StopLossOrderID),
			zap.Float64("entry_price", pos.EntryPrice),
			zap.Float64("profit", profit))
	}
	// One attempt per position lifetime, even if the edit was rejected.
	risk.BreakevenApplied = true

	return false, 0, nil
}
