package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/bimaindrawans/binance-algo/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type managerFixture struct {
	ex       *MockExchange
	metrics  *MockMetrics
	notifier *MockNotifier
	journal  *MockJournal
	manager  *usecase.PositionManager
}

func newManagerFixture(balance float64) *managerFixture {
	f := &managerFixture{
		ex:       NewMockExchange(),
		metrics:  &MockMetrics{},
		notifier: &MockNotifier{},
		journal:  &MockJournal{},
	}
	gw := newTestGateway(f.ex, f.metrics)
	f.manager = usecase.NewPositionManager(
		usecase.ManagerConfig{InitialBalance: balance, Leverage: 10, FeeRate: 0},
		usecase.NewPositionSizer(usecase.DefaultRiskParams()),
		gw,
		f.notifier,
		f.metrics,
		f.journal,
		zap.NewNop(),
	)
	return f
}

// breakout returns a prior/current pair that signals long with entry 101.5 and ATR 1.
func breakout() (domain.Candle, domain.Candle) {
	prior := domain.Candle{Time: t0, Open: 100, High: 101, Low: 99, Close: 100.5, ATR: 1, ATRReady: true}
	current := domain.Candle{Time: t0.Add(15 * time.Minute), Open: 101.5, High: 102.5, Low: 101, Close: 102}
	return prior, current
}

func TestPositionManager_OpensLongOnBreakout(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()

	pos, err := f.manager.EvaluateSignal(context.Background(), "BTCUSDT", prior, current)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Equal(t, domain.SideLong, pos.Side)
	assert.Equal(t, 101.5, pos.EntryPrice)
	assert.InDelta(t, 100.0, pos.StopPrice, 1e-9)
	assert.InDelta(t, 103.5, pos.TargetPrice, 1e-9)
	assert.InDelta(t, 30.34, pos.Quantity, 0.01)
	assert.Equal(t, domain.PositionOpen, pos.Status)
	assert.False(t, pos.BreakevenMoved)
	assert.NotEmpty(t, pos.ID)

	assert.True(t, f.manager.HasOpenPosition("BTCUSDT"))
	assert.Len(t, f.manager.OpenPositions(), 1)

	f.manager.Wait()
	opened := f.notifier.Events(domain.EventPositionOpened)
	require.Len(t, opened, 1)
	assert.Contains(t, opened[0].Message, "Entry Price : 101.5000")
	assert.Contains(t, opened[0].Message, "Stop Loss   : 100.0000")
	assert.Contains(t, opened[0].Message, "Take Profit : 103.5000")
	assert.Equal(t, 1, f.metrics.Active)
}

func TestPositionManager_NoSignalNoOrders(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	current.Close = 100

	pos, err := f.manager.EvaluateSignal(context.Background(), "BTCUSDT", prior, current)
	assert.NoError(t, err)
	assert.Nil(t, pos)

	market, _, _, _ := f.ex.Counts()
	assert.Zero(t, market)
}

func TestPositionManager_SkipsWhenPositionOpen(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	ctx := context.Background()

	_, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	pos, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	assert.NoError(t, err)
	assert.Nil(t, pos)

	market, _, _, _ := f.ex.Counts()
	assert.Equal(t, 1, market)
}

func TestPositionManager_PlacementFailureRecordsNothing(t *testing.T) {
	f := newManagerFixture(1000)
	f.ex.StopErr = errExchangeDown
	prior, current := breakout()

	pos, err := f.manager.EvaluateSignal(context.Background(), "BTCUSDT", prior, current)
	assert.Nil(t, pos)
	assert.ErrorIs(t, err, domain.ErrPlacementFailed)

	assert.False(t, f.manager.HasOpenPosition("BTCUSDT"))
	assert.Equal(t, 3, f.metrics.RetryCount())

	f.manager.Wait()
	failed := f.notifier.Events(domain.EventOrderFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "Failed to place orders for BTCUSDT after 3 attempts.", failed[0].Message)
}

func TestPositionManager_SizingInfeasibleDropsSignal(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	prior.ATR = 0

	pos, err := f.manager.EvaluateSignal(context.Background(), "BTCUSDT", prior, current)
	assert.Nil(t, pos)
	assert.ErrorIs(t, err, domain.ErrSizingInfeasible)

	market, _, _, _ := f.ex.Counts()
	assert.Zero(t, market)
}

func TestPositionManager_BreakevenFiresOnce(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	ctx := context.Background()

	_, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	// Below the trigger: 1.3 * 101.5 = 131.95
	require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "BTCUSDT", Price: 131.9}))
	_, _, _, cancels := f.ex.Counts()
	assert.Zero(t, cancels)

	for i := 0; i < 50; i++ {
		price := 132.0 + float64(i)
		require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "BTCUSDT", Price: price}))
	}

	_, stops, _, cancels := f.ex.Counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 2, stops)

	positions := f.manager.OpenPositions()
	require.Len(t, positions, 1)
	assert.True(t, positions[0].BreakevenMoved)
	assert.Equal(t, 101.5, positions[0].StopPrice)
	assert.Equal(t, 101.5, positions[0].Orders.Stop.StopPrice)

	f.manager.Wait()
	assert.Len(t, f.notifier.Events(domain.EventStopMoved), 1)
}

func TestPositionManager_BreakevenShort(t *testing.T) {
	f := newManagerFixture(1000)
	ctx := context.Background()
	prior := domain.Candle{Time: t0, High: 101, Low: 99, ATR: 1, ATRReady: true}
	current := domain.Candle{Time: t0.Add(15 * time.Minute), Open: 100, Close: 98}

	pos, err := f.manager.EvaluateSignal(ctx, "ETHUSDT", prior, current)
	require.NoError(t, err)
	require.Equal(t, domain.SideShort, pos.Side)

	require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "ETHUSDT", Price: 70.5}))
	_, _, _, cancels := f.ex.Counts()
	assert.Zero(t, cancels)

	require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "ETHUSDT", Price: 69.9}))
	require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "ETHUSDT", Price: 60}))
	_, _, _, cancels = f.ex.Counts()
	assert.Equal(t, 1, cancels)
}

func TestPositionManager_FailedBreakevenIsRetried(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	ctx := context.Background()

	_, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	tick := func(price float64, at time.Time) domain.PriceTick {
		return domain.PriceTick{Symbol: "BTCUSDT", Price: price, Time: at}
	}

	f.ex.StopErr = errExchangeDown
	err = f.manager.ProcessTick(ctx, tick(140, t0))
	assert.ErrorIs(t, err, domain.ErrStopReplaceFailed)
	assert.False(t, f.manager.OpenPositions()[0].BreakevenMoved)

	// inside the retry interval nothing is sent
	f.ex.StopErr = nil
	require.NoError(t, f.manager.ProcessTick(ctx, tick(141, t0.Add(time.Second))))
	assert.False(t, f.manager.OpenPositions()[0].BreakevenMoved)

	require.NoError(t, f.manager.ProcessTick(ctx, tick(142, t0.Add(usecase.DefaultBreakevenRetryInterval))))
	require.NoError(t, f.manager.ProcessTick(ctx, tick(143, t0.Add(2*usecase.DefaultBreakevenRetryInterval))))

	pos := f.manager.OpenPositions()[0]
	assert.True(t, pos.BreakevenMoved)
	assert.Equal(t, 2, pos.BreakevenAttempts)
	_, stops, _, cancels := f.ex.Counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 3, stops)

	f.manager.Wait()
	assert.Len(t, f.notifier.Events(domain.EventStopFailed), 1)
	assert.Len(t, f.notifier.Events(domain.EventStopMoved), 1)
}

func TestPositionManager_PersistentBreakevenFailureIsBounded(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	ctx := context.Background()

	_, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	f.ex.CancelErr = errExchangeDown
	failures := 0
	for i := 0; i < 50; i++ {
		at := t0.Add(time.Duration(i) * 10 * time.Second)
		if err := f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "BTCUSDT", Price: 140 + float64(i), Time: at}); err != nil {
			failures++
		}
	}

	_, _, _, cancels := f.ex.Counts()
	assert.Equal(t, usecase.DefaultBreakevenMaxAttempts, cancels)
	assert.Equal(t, usecase.DefaultBreakevenMaxAttempts, failures)

	pos := f.manager.OpenPositions()[0]
	assert.False(t, pos.BreakevenMoved)
	assert.Equal(t, usecase.DefaultBreakevenMaxAttempts, pos.BreakevenAttempts)
	assert.Equal(t, 101.5-1.5, pos.StopPrice)

	f.manager.Wait()
	assert.Len(t, f.notifier.Events(domain.EventStopFailed), 1)
	assert.Empty(t, f.notifier.Events(domain.EventStopMoved))
}

func TestPositionManager_EffectiveMargin(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	ctx := context.Background()

	assert.Equal(t, 1000.0, f.manager.EffectiveMargin())

	pos, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	// No price seen yet for the symbol.
	assert.Equal(t, 1000.0, f.manager.EffectiveMargin())

	require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "BTCUSDT", Price: 102.5}))
	expected := 1000 + (102.5-101.5)*pos.Quantity*10
	assert.InDelta(t, expected, f.manager.EffectiveMargin(), 1e-9)
	assert.InDelta(t, expected-1000, f.metrics.PnL, 1e-9)

	require.NoError(t, f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "BTCUSDT", Price: 101}))
	expected = 1000 + (101-101.5)*pos.Quantity*10
	assert.InDelta(t, expected, f.manager.EffectiveMargin(), 1e-9)
	assert.Greater(t, f.manager.Snapshot().Drawdown, 0.0)
}

func TestPositionManager_ApplyExternalClose(t *testing.T) {
	f := newManagerFixture(1000)
	prior, current := breakout()
	ctx := context.Background()

	pos, err := f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	exitTime := t0.Add(2 * time.Hour)
	trade, err := f.manager.ApplyExternalClose(ctx, "BTCUSDT", 103.5, exitTime)
	require.NoError(t, err)

	expectedPnL := (103.5 - 101.5) * pos.Quantity * 10
	assert.InDelta(t, expectedPnL, trade.RealizedPnL, 1e-9)
	assert.InDelta(t, 1000+expectedPnL, trade.BalanceAfter, 1e-9)
	assert.Equal(t, domain.PositionClosed, trade.Position.Status)
	assert.True(t, trade.Win())

	assert.False(t, f.manager.HasOpenPosition("BTCUSDT"))
	assert.InDelta(t, 1000+expectedPnL, f.manager.Balance(), 1e-9)
	assert.Len(t, f.manager.ClosedTrades(time.Time{}), 1)
	assert.Empty(t, f.manager.ClosedTrades(exitTime.Add(time.Second)))
	assert.Len(t, f.journal.Trades, 1)
	assert.Equal(t, 0, f.metrics.Active)

	_, err = f.manager.ApplyExternalClose(ctx, "BTCUSDT", 103.5, exitTime)
	assert.ErrorIs(t, err, domain.ErrNoOpenPosition)
}

func TestPositionManager_ApplyExternalCloseChargesFees(t *testing.T) {
	f := newManagerFixture(1000)
	gw := newTestGateway(f.ex, f.metrics)
	manager := usecase.NewPositionManager(
		usecase.ManagerConfig{InitialBalance: 1000, Leverage: 10, FeeRate: 0.0004},
		usecase.NewPositionSizer(usecase.DefaultRiskParams()),
		gw, nil, nil, nil, zap.NewNop(),
	)
	prior, current := breakout()
	ctx := context.Background()

	pos, err := manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
	require.NoError(t, err)

	trade, err := manager.ApplyExternalClose(ctx, "BTCUSDT", 100, t0.Add(time.Hour))
	require.NoError(t, err)

	fees := 0.0004 * (101.5 + 100) * pos.Quantity
	assert.InDelta(t, fees, trade.Fees, 1e-9)
	assert.InDelta(t, (100-101.5)*pos.Quantity*10-fees, trade.RealizedPnL, 1e-9)
	assert.False(t, trade.Win())
}

// Concurrent poll cycles and stream ticks must never produce two positions
// for one symbol.
func TestPositionManager_ConcurrentTriggersOpenOnce(t *testing.T) {
	f := newManagerFixture(1000)
	f.ex.PlaceDelay = 5 * time.Millisecond
	prior, current := breakout()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if !f.manager.HasOpenPosition("BTCUSDT") {
				_, _ = f.manager.EvaluateSignal(ctx, "BTCUSDT", prior, current)
			}
		}()
		go func(i int) {
			defer wg.Done()
			_ = f.manager.ProcessTick(ctx, domain.PriceTick{Symbol: "BTCUSDT", Price: 100 + float64(i)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.manager.OpenPositions(), 1)
	market, _, _, _ := f.ex.Counts()
	assert.Equal(t, 1, market)
}

func TestPositionManager_LogsPlacementFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ex := NewMockExchange()
	ex.MarketErr = errExchangeDown
	manager := usecase.NewPositionManager(
		usecase.ManagerConfig{InitialBalance: 1000, Leverage: 10},
		usecase.NewPositionSizer(usecase.DefaultRiskParams()),
		newTestGateway(ex, &MockMetrics{}),
		nil, nil, nil,
		zap.New(core),
	)
	prior, current := breakout()

	_, err := manager.EvaluateSignal(context.Background(), "BTCUSDT", prior, current)
	require.ErrorIs(t, err, domain.ErrPlacementFailed)

	entries := logs.FilterMessage("Failed to open position").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "BTCUSDT", entries[0].ContextMap()["symbol"])
	assert.Equal(t, "position_manager", entries[0].ContextMap()["component"])
}
