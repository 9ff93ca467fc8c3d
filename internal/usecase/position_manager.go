package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/bimaindrawans/binance-algo/internal/id"
	"go.uber.org/zap"
)

const (
	DefaultLeverage         = 10
	DefaultInitialBalance   = 50.0
	DefaultBreakevenTrigger = 0.30
	DefaultFeeRate          = 0.0004

	DefaultBreakevenMaxAttempts   = 3
	DefaultBreakevenRetryInterval = 30 * time.Second
)

type ManagerConfig struct {
	InitialBalance float64
	Leverage       int

	// BreakevenTrigger is the favourable move, as a fraction of entry, that
	// moves the stop to entry. It is independent of leverage.
	BreakevenTrigger float64

	// FeeRate is charged on entry and exit notional when a trade closes.
	FeeRate float64

	// BreakevenMaxAttempts bounds stop replacements per position when the
	// exchange keeps rejecting them. Attempts are at least
	// BreakevenRetryInterval apart, measured on tick time.
	BreakevenMaxAttempts   int
	BreakevenRetryInterval time.Duration
	Location               *time.Location
}

// PositionManager owns every piece of state shared between the candle poller,
// the trade stream and the reporters: open positions, closed trades, last
// prices and the account balance. One mutex guards all of it.
type PositionManager struct {
	cfg      ManagerConfig
	sizer    *PositionSizer
	gateway  *OrderGateway
	notifier *asyncNotifier
	metrics  domain.MetricsRecorder
	journal  domain.TradeJournal
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	balance    float64
	peakEquity float64
	positions  map[string]*domain.Position
	closed     []domain.ClosedTrade
	lastPrices map[string]float64
}

func NewPositionManager(
	cfg ManagerConfig,
	sizer *PositionSizer,
	gateway *OrderGateway,
	notifier domain.Notifier,
	metrics domain.MetricsRecorder,
	journal domain.TradeJournal,
	logger *zap.Logger,
) *PositionManager {
	if cfg.Leverage <= 0 {
		cfg.Leverage = DefaultLeverage
	}
	if cfg.BreakevenTrigger <= 0 {
		cfg.BreakevenTrigger = DefaultBreakevenTrigger
	}
	if cfg.BreakevenMaxAttempts <= 0 {
		cfg.BreakevenMaxAttempts = DefaultBreakevenMaxAttempts
	}
	if cfg.BreakevenRetryInterval <= 0 {
		cfg.BreakevenRetryInterval = DefaultBreakevenRetryInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	logger = logger.With(zap.String("component", "position_manager"))
	return &PositionManager{
		cfg:        cfg,
		sizer:      sizer,
		gateway:    gateway,
		notifier:   newAsyncNotifier(notifier, logger),
		metrics:    metrics,
		journal:    journal,
		logger:     logger,
		now:        time.Now,
		balance:    cfg.InitialBalance,
		peakEquity: cfg.InitialBalance,
		positions:  make(map[string]*domain.Position),
		lastPrices: make(map[string]float64),
	}
}

// HasOpenPosition is the fast-path check the poller runs before fetching
// candles. EvaluateSignal repeats it under the lock.
func (m *PositionManager) HasOpenPosition(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[symbol]
	return ok
}

// EvaluateSignal opens a position for symbol when current breaks out of prior.
// It returns (nil, nil) when there is no signal or a position already exists.
// The lock is held across order placement so that two evaluations can never
// both open a position for the same symbol.
func (m *PositionManager) EvaluateSignal(ctx context.Context, symbol string, prior, current domain.Candle) (*domain.Position, error) {
	side, ok := Detect(prior, current).Side()
	if !ok {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[symbol]; exists {
		m.logger.Debug("Signal skipped, position already open", zap.String("symbol", symbol))
		return nil, nil
	}

	plan, err := m.sizer.Size(symbol, side, current.Open, prior.ATR, m.effectiveMarginLocked())
	if err != nil {
		m.logger.Warn("Signal dropped", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}

	res, err := m.gateway.OpenPosition(ctx, plan)
	if err != nil {
		m.logger.Error("Failed to open position", zap.String("symbol", symbol), zap.Error(err))
		m.notifier.send(domain.EventOrderFailed, "Order failure",
			fmt.Sprintf("Failed to place orders for %s after %d attempts.", symbol, m.gateway.cfg.MaxRetries))
		return nil, err
	}

	entryTime := current.Time.In(m.cfg.Location)
	pos := &domain.Position{
		ID:          id.New(),
		Symbol:      symbol,
		Side:        side,
		EntryTime:   entryTime,
		EntryPrice:  plan.EntryPrice,
		StopPrice:   plan.StopPrice,
		TargetPrice: plan.TargetPrice,
		Quantity:    plan.Quantity,
		Orders:      res.Orders,
		Status:      domain.PositionOpen,
	}
	if err := m.insertLocked(pos); err != nil {
		return nil, err
	}

	m.logger.Info("Position opened",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", pos.StopPrice),
		zap.Float64("target", pos.TargetPrice),
		zap.Float64("quantity", pos.Quantity),
	)
	m.notifier.send(domain.EventPositionOpened, "Trade OPENED", formatOpened(pos))

	out := *pos
	return &out, nil
}

func (m *PositionManager) insertLocked(pos *domain.Position) error {
	if _, exists := m.positions[pos.Symbol]; exists {
		m.logger.Error("Duplicate position insert", zap.String("symbol", pos.Symbol))
		return fmt.Errorf("%s: %w", pos.Symbol, domain.ErrPositionExists)
	}
	m.positions[pos.Symbol] = pos
	m.metrics.SetActivePositions(len(m.positions))
	return nil
}

// ProcessTick records the last price for the tick's symbol and moves the stop
// of its open position to entry once the breakeven trigger is crossed. The
// move succeeds at most once per position. A rejected move is retried on a
// later tick only after BreakevenRetryInterval and at most
// BreakevenMaxAttempts times in total; only the first failure is notified.
func (m *PositionManager) ProcessTick(ctx context.Context, tick domain.PriceTick) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrices[tick.Symbol] = tick.Price
	m.updateRiskGaugesLocked()

	pos, ok := m.positions[tick.Symbol]
	if !ok || pos.BreakevenMoved || !m.breakevenReached(pos, tick.Price) {
		return nil
	}

	at := tick.Time
	if at.IsZero() {
		at = m.now()
	}
	if pos.BreakevenAttempts >= m.cfg.BreakevenMaxAttempts {
		return nil
	}
	if pos.BreakevenAttempts > 0 && at.Sub(pos.BreakevenAttemptAt) < m.cfg.BreakevenRetryInterval {
		return nil
	}
	pos.BreakevenAttempts++
	pos.BreakevenAttemptAt = at

	if err := m.gateway.ReplaceStop(ctx, pos, pos.EntryPrice); err != nil {
		m.logger.Error("Failed to move stop to breakeven",
			zap.String("symbol", pos.Symbol),
			zap.Float64("price", tick.Price),
			zap.Int("attempt", pos.BreakevenAttempts),
			zap.Int("max_attempts", m.cfg.BreakevenMaxAttempts),
			zap.Error(err),
		)
		if pos.BreakevenAttempts == 1 {
			m.notifier.send(domain.EventStopFailed, "Stop update failed",
				fmt.Sprintf("Error updating SL for %s (%s): %v", pos.Symbol, pos.Side, err))
		}
		if pos.BreakevenAttempts >= m.cfg.BreakevenMaxAttempts {
			m.logger.Error("Giving up on breakeven stop",
				zap.String("symbol", pos.Symbol),
				zap.Int("attempts", pos.BreakevenAttempts),
			)
		}
		return err
	}
	pos.BreakevenMoved = true

	m.logger.Info("Stop moved to breakeven",
		zap.String("symbol", pos.Symbol),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("price", tick.Price),
	)
	m.notifier.send(domain.EventStopMoved, "Stop updated",
		fmt.Sprintf("Update SL for %s (%s): SL moved to BEP = %.4f USDT", pos.Symbol, pos.Side, pos.EntryPrice))
	return nil
}

func (m *PositionManager) breakevenReached(pos *domain.Position, price float64) bool {
	if pos.Side == domain.SideLong {
		return price >= pos.EntryPrice*(1+m.cfg.BreakevenTrigger)
	}
	return price <= pos.EntryPrice*(1-m.cfg.BreakevenTrigger)
}

// ApplyExternalClose moves the open position for symbol into the closed-trade
// history once the exchange has closed it.
func (m *PositionManager) ApplyExternalClose(ctx context.Context, symbol string, exitPrice float64, exitTime time.Time) (*domain.ClosedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrNoOpenPosition)
	}
	delete(m.positions, symbol)

	fees := m.cfg.FeeRate * (pos.EntryPrice + exitPrice) * pos.Quantity
	realized := pos.UnrealizedPnL(exitPrice, m.cfg.Leverage) - fees
	m.balance += realized

	closedPos := *pos
	closedPos.Status = domain.PositionClosed
	trade := domain.ClosedTrade{
		Position:     closedPos,
		ExitTime:     exitTime.In(m.cfg.Location),
		ExitPrice:    exitPrice,
		Fees:         fees,
		RealizedPnL:  realized,
		BalanceAfter: m.balance,
	}
	m.closed = append(m.closed, trade)
	m.metrics.SetActivePositions(len(m.positions))
	m.updateRiskGaugesLocked()

	if m.journal != nil {
		if err := m.journal.SaveClosedTrade(ctx, &trade); err != nil {
			m.logger.Error("Failed to journal closed trade", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	m.logger.Info("Position closed",
		zap.String("symbol", symbol),
		zap.Float64("exit", exitPrice),
		zap.Float64("pnl", realized),
		zap.Float64("balance", m.balance),
	)
	m.notifier.send(domain.EventPositionClosed, "Trade CLOSED",
		fmt.Sprintf("%s %s closed at %.4f\nPnL: %.4f USDT\nBalance: %.4f USDT", symbol, pos.Side, exitPrice, realized, m.balance))

	out := trade
	return &out, nil
}

var _ domain.CloseReconciler = (*PositionManager)(nil)

// EffectiveMargin is the balance plus leveraged unrealized PnL of open
// positions at their last seen prices.
func (m *PositionManager) EffectiveMargin() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.effectiveMarginLocked()
}

func (m *PositionManager) effectiveMarginLocked() float64 {
	return m.balance + m.unrealizedLocked()
}

func (m *PositionManager) unrealizedLocked() float64 {
	var total float64
	for symbol, pos := range m.positions {
		price, ok := m.lastPrices[symbol]
		if !ok {
			continue
		}
		total += pos.UnrealizedPnL(price, m.cfg.Leverage)
	}
	return total
}

func (m *PositionManager) updateRiskGaugesLocked() {
	equity := m.effectiveMarginLocked()
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	m.metrics.SetUnrealizedPnL(m.unrealizedLocked())
	m.metrics.SetDrawdown(m.drawdownLocked(equity))
}

func (m *PositionManager) drawdownLocked(equity float64) float64 {
	if m.peakEquity <= 0 || equity >= m.peakEquity {
		return 0
	}
	return (m.peakEquity - equity) / m.peakEquity
}

func (m *PositionManager) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

func (m *PositionManager) Leverage() int {
	return m.cfg.Leverage
}

func (m *PositionManager) LastPrice(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.lastPrices[symbol]
	return p, ok
}

// OpenPositions returns copies of the open positions sorted by symbol.
func (m *PositionManager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ClosedTrades returns trades that exited at or after since, oldest first.
// A zero since returns the full history.
func (m *PositionManager) ClosedTrades(since time.Time) []domain.ClosedTrade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ClosedTrade, 0, len(m.closed))
	for _, t := range m.closed {
		if since.IsZero() || !t.ExitTime.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

func (m *PositionManager) Snapshot() domain.AccountSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity := m.effectiveMarginLocked()
	return domain.AccountSnapshot{
		Balance:         m.balance,
		EffectiveMargin: equity,
		Leverage:        m.cfg.Leverage,
		OpenPositions:   len(m.positions),
		ClosedTrades:    len(m.closed),
		Drawdown:        m.drawdownLocked(equity),
	}
}

// Wait blocks until pending notifications have been handed to the notifier.
func (m *PositionManager) Wait() {
	m.notifier.wait()
}

func formatOpened(pos *domain.Position) string {
	return fmt.Sprintf("Trade OPENED for %s at %s\nDirection   : %s\nEntry Price : %.4f\nStop Loss   : %.4f\nTake Profit : %.4f\nQuantity    : %.4f",
		pos.Symbol,
		pos.EntryTime.Format("2006-01-02 15:04:05 MST"),
		pos.Side,
		pos.EntryPrice,
		pos.StopPrice,
		pos.TargetPrice,
		pos.Quantity,
	)
}

func isDroppedSignal(err error) bool {
	return errors.Is(err, domain.ErrSizingInfeasible) || errors.Is(err, domain.ErrPlacementFailed)
}
