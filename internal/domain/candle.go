package domain

import "time"

// Candle is one OHLC bar as returned by the exchange, oldest first.
type Candle struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// BreakoutLevels holds the prior period's range. Recomputed every cycle and
// discarded at the next recomputation.
type BreakoutLevels struct {
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	ComputedAt time.Time `json:"computed_at"`
}
