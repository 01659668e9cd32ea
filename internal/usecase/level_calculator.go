package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/crypto_breakout_bot/internal/domain"
)

// candleLookback is how many bars to request per cycle. The newest bar is
// still forming, so we need at least two to have one complete period.
const candleLookback = 3

// LevelCalculator derives breakout levels from the most recently completed
// candle of the configured timeframe.
type LevelCalculator struct {
	exchange   domain.Exchange
	symbol     string
	resolution string
}

func NewLevelCalculator(exchange domain.Exchange, symbol, resolution string) *LevelCalculator {
	return &LevelCalculator{
		exchange:   exchange,
		symbol:     symbol,
		resolution: resolution,
	}
}

// PreviousPeriodLevels returns the high and low of the previous completed
// period. It fails rather than producing stale or default levels.
func (c *LevelCalculator) PreviousPeriodLevels(ctx context.Context) (*domain.BreakoutLevels, error) {
	candles, err := c.exchange.GetCandles(ctx, c.symbol, c.resolution, candleLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: got %d candles for %s %s",
			domain.ErrInsufficientData, len(candles), c.symbol, c.resolution)
	}

	// Second-to-last candle is the most recent complete period.
	prev := candles[len(candles)-2]
	if prev.Low > prev.High {
		return nil, &domain.DataIntegrityError{High: prev.High, Low: prev.Low}
	}

	return &domain.BreakoutLevels{
		High:       prev.High,
		Low:        prev.Low,
		ComputedAt: time.Now(),
	}, nil
}
