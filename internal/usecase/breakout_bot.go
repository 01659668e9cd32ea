package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_breakout_bot/internal/config"
	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

// BreakoutBot drives the whole trading cycle on a single loop: compute the
// previous period's range, bracket it with stop entries, track the fill,
// protect the position and start over at the next period boundary.
type BreakoutBot struct {
	cfg      *config.Config
	exchange domain.Exchange
	levels   *LevelCalculator
	gate     *SafetyGate
	orders   *OrderManager
	monitor  *PositionMonitor
	recovery *RecoveryManager
	logger   *zap.Logger

	running   bool
	stopChan  chan struct{}
	cancel    context.CancelFunc
	lastReset time.Time
	mu        sync.Mutex
}

// BotStatus is the snapshot served by the web layer.
type BotStatus struct {
	Running      bool                   `json:"running"`
	State        string                 `json:"state"`
	Symbol       string                 `json:"symbol"`
	Levels       *domain.BreakoutLevels `json:"levels,omitempty"`
	Position     *domain.Position       `json:"position,omitempty"`
	Risk         *domain.RiskState      `json:"risk,omitempty"`
	LastReset    time.Time              `json:"last_reset,omitempty"`
	NextReset    time.Time              `json:"next_reset,omitempty"`
	CurrentPrice float64                `json:"current_price,omitempty"`
	BuyEntryID   string                 `json:"buy_entry_id,omitempty"`
	SellEntryID  string                 `json:"sell_entry_id,omitempty"`
}

func NewBreakoutBot(
	cfg *config.Config,
	exchange domain.Exchange,
	trades domain.TradeRepository,
	logger *zap.Logger,
) *BreakoutBot {
	return &BreakoutBot{
		cfg:      cfg,
		exchange: exchange,
		levels:   NewLevelCalculator(exchange, cfg.Trading.Symbol, cfg.Schedule.Timeframe),
		gate: NewSafetyGate(exchange, cfg.Trading.ProductID, cfg.Trading.MaxPositionSize,
			cfg.DuplicateCheckEnabled(), logger),
		orders: NewOrderManager(exchange, trades, cfg.Trading.Symbol, cfg.Trading.ProductID,
			cfg.Trading.OrderSize, cfg.RiskManagement.StopLossPoints,
			cfg.RiskManagement.TakeProfitPoints, logger),
		monitor: NewPositionMonitor(exchange, cfg.Trading.ProductID, cfg.Trading.Symbol,
			cfg.RiskManagement.BreakevenTriggerPoints, logger),
		recovery: NewRecoveryManager(exchange, cfg.Trading.ProductID, logger),
		logger:   logger,
	}
}

func (b *BreakoutBot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("breakout bot already running for %s", b.cfg.Trading.Symbol)
	}

	b.running = true
	b.stopChan = make(chan struct{})

	botCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.run(botCtx)

	b.logger.Info("Breakout bot started", zap.String("symbol", b.cfg.Trading.Symbol))
	return nil
}

func (b *BreakoutBot) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return fmt.Errorf("breakout bot is not running")
	}

	b.running = false
	if b.cancel != nil {
		b.cancel()
	}
	close(b.stopChan)

	b.logger.Info("Breakout bot stopped", zap.String("symbol", b.cfg.Trading.Symbol))
	return nil
}

func (b *BreakoutBot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Status snapshots the bot under the loop's lock. Position, risk and levels
// are copied so the encoder never shares memory with the running loop.
func (b *BreakoutBot) Status(ctx context.Context) *BotStatus {
	b.mu.Lock()
	status := &BotStatus{
		Running:   b.running,
		State:     string(b.orders.State()),
		Symbol:    b.cfg.Trading.Symbol,
		LastReset: b.lastReset,
	}
	if levels := b.orders.Levels(); levels != nil {
		cp := *levels
		status.Levels = &cp
	}
	if pos := b.orders.Position(); pos != nil {
		cp := *pos
		status.Position = &cp
	}
	if risk := b.orders.Risk(); risk != nil {
		cp := *risk
		status.Risk = &cp
	}
	status.BuyEntryID, status.SellEntryID = b.orders.EntryOrderIDs()
	if !b.lastReset.IsZero() {
		status.NextReset = b.lastReset.Add(b.cfg.ResetInterval())
	}
	b.mu.Unlock()

	if price, err := b.exchange.GetCurrentPrice(ctx, b.cfg.Trading.Symbol); err == nil {
		status.CurrentPrice = price
	}
	return status
}

func (b *BreakoutBot) run(ctx context.Context) {
	if delay := b.cfg.Schedule.StartupDelayMinutes; delay > 0 {
		b.logger.Info("Startup delay before first cycle", zap.Int("minutes", delay))
		select {
		case <-time.After(time.Duration(delay) * time.Minute):
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		}
	}

	recovered := b.recoverExisting(ctx)
	if !recovered {
		b.startCycle(ctx)
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastOrderCheck, lastPositionCheck, lastResetCheck time.Time

	b.logger.Info("Breakout bot evaluation loop started", zap.String("symbol", b.cfg.Trading.Symbol))

	for {
		select {
		case <-ticker.C:
			now := time.Now().In(b.cfg.Location())

			if now.Sub(lastResetCheck) >= time.Minute {
				lastResetCheck = now
				b.checkReset(ctx, now)
			}

			if b.orders.State() == StateOrdersPlaced &&
				now.Sub(lastOrderCheck) >= b.cfg.OrderCheckInterval() {
				lastOrderCheck = now
				b.mu.Lock()
				err := b.orders.CheckFills(ctx)
				b.mu.Unlock()
				if err != nil {
					if errors.Is(err, domain.ErrBothLegsFilled) {
						b.logger.Error("Both entry legs filled in the same window",
							zap.String("symbol", b.cfg.Trading.Symbol))
					} else {
						b.logger.Error("Fill check error", zap.Error(err))
					}
				}
			}

			if b.orders.Position() != nil &&
				now.Sub(lastPositionCheck) >= b.cfg.PositionCheckInterval() {
				lastPositionCheck = now
				b.tickPosition(ctx)
			}

		case <-b.stopChan:
			b.logger.Info("Breakout bot evaluation loop stopped", zap.String("symbol", b.cfg.Trading.Symbol))
			return
		case <-ctx.Done():
			b.logger.Info("Breakout bot evaluation loop cancelled", zap.String("symbol", b.cfg.Trading.Symbol))
			return
		}
	}
}

// recoverExisting adopts an already-open position left from a previous run.
// Returns true when a position was adopted.
func (b *BreakoutBot) recoverExisting(ctx context.Context) bool {
	pos, risk, err := b.recovery.Recover(ctx)
	if err != nil {
		b.logger.Error("Recovery check failed", zap.Error(err))
		return false
	}
	if pos == nil {
		b.logger.Info("No open position found, starting fresh cycle")
		return false
	}

	b.mu.Lock()
	b.orders.AdoptRecovered(pos, risk)
	b.lastReset = time.Now().In(b.cfg.Location())
	b.mu.Unlock()
	return true
}

// startCycle computes fresh levels and places the entry bracket. Any error
// leaves the cycle idle until the next boundary retries it.
func (b *BreakoutBot) startCycle(ctx context.Context) {
	b.mu.Lock()
	b.lastReset = time.Now().In(b.cfg.Location())
	b.mu.Unlock()

	if b.cfg.Schedule.WaitForNextCandle {
		if !b.waitForCandleOpen(ctx) {
			return
		}
	}

	levels, err := b.levels.PreviousPeriodLevels(ctx)
	if err != nil {
		b.logger.Error("Failed to compute breakout levels", zap.Error(err))
		return
	}
	b.logger.Info("Breakout levels computed",
		zap.Float64("high", levels.High),
		zap.Float64("low", levels.Low),
		zap.String("timeframe", b.cfg.Schedule.Timeframe))

	decision, err := b.gate.CanPlaceEntry(ctx, b.cfg.Trading.OrderSize)
	if err != nil {
		b.logger.Error("Safety check failed", zap.Error(err))
		return
	}
	if !decision.Allowed {
		b.logger.Warn("Entry placement denied",
			zap.String("reason", string(decision.Reason)),
			zap.Float64("position_size", decision.PositionSize),
			zap.Int("open_orders", decision.OpenOrders))
		if decision.Reason == domain.DenyDuplicateOrders {
			b.clearStaleOrders(ctx)
		}
		return
	}

	b.mu.Lock()
	err = b.orders.PlaceBracket(ctx, levels)
	b.mu.Unlock()
	if err != nil {
		b.logger.Error("Failed to place entry bracket", zap.Error(err))
	}
}

// clearStaleOrders removes untracked open orders left behind by a previous
// run. Only safe when no position exists, since a live position's bracket
// would be destroyed by a blanket cancel.
func (b *BreakoutBot) clearStaleOrders(ctx context.Context) {
	pos, err := b.exchange.GetPosition(ctx, b.cfg.Trading.ProductID)
	if err != nil {
		b.logger.Error("Failed to verify position before clearing orders", zap.Error(err))
		return
	}
	if pos != nil && pos.Size != 0 {
		b.logger.Info("Open orders belong to a live position, leaving them alone")
		return
	}

	if err := b.exchange.CancelAllOrders(ctx, b.cfg.Trading.ProductID); err != nil {
		b.logger.Error("Failed to cancel stale orders", zap.Error(err))
		return
	}
	b.logger.Info("Stale orders cancelled, entry retries at next boundary")
}

// waitForCandleOpen sleeps until the next timeframe boundary so levels are
// computed from a fully closed candle. Returns false when the bot stopped
// while waiting.
func (b *BreakoutBot) waitForCandleOpen(ctx context.Context) bool {
	frame := b.cfg.TimeframeDuration()
	now := time.Now().In(b.cfg.Location())
	next := now.Truncate(frame).Add(frame)
	wait := next.Sub(now)
	if wait <= 0 {
		return true
	}

	b.logger.Info("Waiting for next candle open",
		zap.Duration("wait", wait),
		zap.Time("candle_open", next))

	select {
	case <-time.After(wait):
		return true
	case <-b.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *BreakoutBot) checkReset(ctx context.Context, now time.Time) {
	b.mu.Lock()
	due := !b.lastReset.IsZero() && now.Sub(b.lastReset) >= b.cfg.ResetInterval()
	b.mu.Unlock()
	if !due {
		return
	}

	b.logger.Info("Period boundary reached, resetting cycle",
		zap.String("symbol", b.cfg.Trading.Symbol),
		zap.String("state", string(b.orders.State())))

	// Unfilled entry legs are stale now. An open position keeps running
	// with its bracket; only the entry orders are withdrawn.
	b.mu.Lock()
	b.orders.CancelPendingEntries(ctx)
	pos := b.orders.Position()
	if pos != nil {
		b.lastReset = now
	}
	b.mu.Unlock()

	if pos != nil {
		b.logger.Info("Position still open across boundary, keeping bracket",
			zap.String("side", string(pos.Side)))
		return
	}

	b.startCycle(ctx)
}

func (b *BreakoutBot) tickPosition(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.orders.EnsureBracket(ctx); err != nil {
		b.logger.Error("Bracket retry failed", zap.Error(err))
	}

	closed, exitPrice, err := b.monitor.Check(ctx, b.orders.Position(), b.orders.Risk())
	if err != nil {
		b.logger.Error("Position check error", zap.Error(err))
		return
	}
	if closed {
		b.orders.HandleClosed(ctx, exitPrice)
	}
}
