package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

// RecoveryManager reconstructs the bot's view of an already-open position
// after a restart. It only reads exchange state; it never places, edits or
// cancels anything.
type RecoveryManager struct {
	exchange  domain.Exchange
	productID int
	logger    *zap.Logger
}

func NewRecoveryManager(exchange domain.Exchange, productID int, logger *zap.Logger) *RecoveryManager {
	return &RecoveryManager{exchange: exchange, productID: productID, logger: logger}
}

// Recover fetches the current position and, when one exists, classifies the
// open orders into the stop-loss and take-profit slots. A nil position with
// a nil error means there is nothing to recover.
func (r *RecoveryManager) Recover(ctx context.Context) (*domain.Position, *domain.RiskState, error) {
	pos, err := r.exchange.GetPosition(ctx, r.productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch position during recovery: %w", err)
	}
	if pos == nil || pos.Size == 0 {
		return nil, nil, nil
	}

	if pos.Side == "" {
		if pos.Size > 0 {
			pos.Side = domain.SideLong
		} else {
			pos.Side = domain.SideShort
		}
	}
	pos.Size = math.Abs(pos.Size)

	orders, err := r.exchange.GetOpenOrders(ctx, r.productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch open orders during recovery: %w", err)
	}

	risk := &domain.RiskState{}
	for i := range orders {
		o := &orders[i]
		if o.Side != pos.Side.Opposite() {
			continue
		}
		switch {
		case o.IsStop() && protective(pos, o.StopPrice):
			risk.StopLossOrderID = o.ID
			r.logger.Info("recovered stop loss order",
				zap.String("order_id", o.ID), zap.Float64("trigger", o.StopPrice))
		case !o.IsStop() && profitable(pos, o.Price):
			risk.TakeProfitOrderID = o.ID
			r.logger.Info("recovered take profit order",
				zap.String("order_id", o.ID), zap.Float64("price", o.Price))
		}
	}

	r.logger.Info("recovered open position",
		zap.String("side", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Float64("entry_price", pos.EntryPrice))

	if !risk.Protected() {
		r.logger.Warn("recovered position has no stop loss order",
			zap.String("side", string(pos.Side)),
			zap.Float64("size", pos.Size))
	}

	return pos, risk, nil
}

// protective reports whether a trigger price sits on the loss side of entry.
func protective(pos *domain.Position, trigger float64) bool {
	if pos.Side == domain.SideLong {
		return trigger < pos.EntryPrice
	}
	return trigger > pos.EntryPrice
}

// profitable reports whether a limit price sits on the profit side of entry.
func profitable(pos *domain.Position, price float64) bool {
	if pos.Side == domain.SideLong {
		return price > pos.EntryPrice
	}
	return price < pos.EntryPrice
}
