package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

func TestCheck_PositionStillOpen(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 65100

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	closed, _, err := mon.Check(context.Background(), pos, &domain.RiskState{StopLossOrderID: "sl-1"})
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Empty(t, mockEx.edited)
}

func TestCheck_DetectsClosure(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = nil
	mockEx.price = 67000

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	closed, exitPrice, err := mon.Check(context.Background(), pos, &domain.RiskState{})
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 67000.0, exitPrice)
}

func TestCheck_ZeroSizeCountsAsClosed(t *testing.T) {
	pos := &domain.Position{Side: domain.SideShort, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = &domain.Position{Size: 0}
	mockEx.price = 64000

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	closed, _, err := mon.Check(context.Background(), pos, &domain.RiskState{})
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestCheck_BreakevenLong(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 65600
	risk := &domain.RiskState{StopLossOrderID: "sl-1"}

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	closed, _, err := mon.Check(context.Background(), pos, risk)
	require.NoError(t, err)
	assert.False(t, closed)

	require.Len(t, mockEx.edited, 1)
	assert.Equal(t, "sl-1", mockEx.edited[0].orderID)
	assert.Equal(t, 65000.0, mockEx.edited[0].price)
	assert.True(t, risk.BreakevenApplied)
}

func TestCheck_BreakevenShort(t *testing.T) {
	pos := &domain.Position{Side: domain.SideShort, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 64400
	risk := &domain.RiskState{StopLossOrderID: "sl-1"}

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	_, _, err := mon.Check(context.Background(), pos, risk)
	require.NoError(t, err)

	require.Len(t, mockEx.edited, 1)
	assert.Equal(t, 65000.0, mockEx.edited[0].price)
	assert.True(t, risk.BreakevenApplied)
}

func TestCheck_BreakevenAppliedOnce(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 66000
	risk := &domain.RiskState{StopLossOrderID: "sl-1"}

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, _, err := mon.Check(context.Background(), pos, risk)
		require.NoError(t, err)
	}
	assert.Len(t, mockEx.edited, 1)
}

func TestCheck_BreakevenMarkedDespiteEditFailure(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 66000
	mockEx.editErr = errors.New("order not modifiable")
	risk := &domain.RiskState{StopLossOrderID: "sl-1"}

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	_, _, err := mon.Check(context.Background(), pos, risk)
	require.NoError(t, err)
	assert.True(t, risk.BreakevenApplied)
}

func TestCheck_NoBreakevenBelowTrigger(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 65400
	risk := &domain.RiskState{StopLossOrderID: "sl-1"}

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	_, _, err := mon.Check(context.Background(), pos, risk)
	require.NoError(t, err)
	assert.Empty(t, mockEx.edited)
	assert.False(t, risk.BreakevenApplied)
}

func TestCheck_NoBreakevenWithoutStopLoss(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, Size: 1, EntryPrice: 65000}
	mockEx := newMockExchange()
	mockEx.position = pos
	mockEx.price = 66000
	risk := &domain.RiskState{}

	mon := NewPositionMonitor(mockEx, 27, "BTCUSD", 500, zap.NewNop())
	_, _, err := mon.Check(context.Background(), pos, risk)
	require.NoError(t, err)
	assert.Empty(t, mockEx.edited)
	// Slot stays unset so a later recovered stop loss can still be moved.
	assert.False(t, risk.BreakevenApplied)
}
