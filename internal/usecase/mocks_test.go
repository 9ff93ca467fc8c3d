package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
)

var errExchangeDown = errors.New("exchange unavailable")

// MockExchange records calls and can be told to fail individual legs.
type MockExchange struct {
	mu sync.Mutex

	Candles   map[string][]domain.Candle
	CandleErr error

	MarketErr error
	StopErr   error
	TargetErr error
	CancelErr error

	// PlaceDelay slows the market leg to widen race windows.
	PlaceDelay time.Duration

	PositionAmounts map[string]float64
	Balance         float64

	CandleCalls int
	MarketCalls int
	StopCalls   int
	TargetCalls int
	CancelCalls int
	Cancelled   []string
	StopPrices  []float64

	nextID int
}

func NewMockExchange() *MockExchange {
	return &MockExchange{
		Candles:         make(map[string][]domain.Candle),
		PositionAmounts: make(map[string]float64),
	}
}

func (m *MockExchange) handle(symbol string, kind domain.OrderKind, price, qty float64) domain.OrderHandle {
	m.nextID++
	return domain.OrderHandle{
		OrderID:   fmt.Sprintf("%d", m.nextID),
		Symbol:    symbol,
		Kind:      kind,
		StopPrice: price,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}
}

func (m *MockExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandleCalls++
	if m.CandleErr != nil {
		return nil, m.CandleErr
	}
	all := m.Candles[symbol]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.Candle, len(all))
	copy(out, all)
	return out, nil
}

func (m *MockExchange) SetCandles(symbol string, candles []domain.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Candles[symbol] = candles
}

func (m *MockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderHandle, error) {
	if m.PlaceDelay > 0 {
		time.Sleep(m.PlaceDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarketCalls++
	if m.MarketErr != nil {
		return domain.OrderHandle{}, m.MarketErr
	}
	if side == domain.SideLong {
		m.PositionAmounts[symbol] += quantity
	} else {
		m.PositionAmounts[symbol] -= quantity
	}
	return m.handle(symbol, domain.OrderKindMarket, 0, quantity), nil
}

func (m *MockExchange) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, stopPrice float64) (domain.OrderHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	if m.StopErr != nil {
		return domain.OrderHandle{}, m.StopErr
	}
	m.StopPrices = append(m.StopPrices, stopPrice)
	return m.handle(symbol, domain.OrderKindStop, stopPrice, 0), nil
}

func (m *MockExchange) PlaceTargetOrder(ctx context.Context, symbol string, side domain.Side, targetPrice float64) (domain.OrderHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TargetCalls++
	if m.TargetErr != nil {
		return domain.OrderHandle{}, m.TargetErr
	}
	return m.handle(symbol, domain.OrderKindTarget, targetPrice, 0), nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

func (m *MockExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	return m.Balance, nil
}

func (m *MockExchange) GetPositionAmount(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PositionAmounts[symbol], nil
}

func (m *MockExchange) SetPositionAmount(symbol string, amt float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PositionAmounts[symbol] = amt
}

func (m *MockExchange) Counts() (market, stop, target, cancel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MarketCalls, m.StopCalls, m.TargetCalls, m.CancelCalls
}

type MockMetrics struct {
	mu        sync.Mutex
	Active    int
	Latencies []time.Duration
	Retries   int
	PnL       float64
	Drawdown  float64
}

func (m *MockMetrics) SetActivePositions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Active = n
}

func (m *MockMetrics) ObserveOrderLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latencies = append(m.Latencies, d)
}

func (m *MockMetrics) IncOrderRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Retries++
}

func (m *MockMetrics) SetUnrealizedPnL(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PnL = v
}

func (m *MockMetrics) SetDrawdown(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Drawdown = v
}

func (m *MockMetrics) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Retries
}

type sentMessage struct {
	Event   string
	Title   string
	Message string
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentMessage
}

func (n *MockNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, sentMessage{Event: event, Title: title, Message: message})
	return nil
}

func (n *MockNotifier) Events(event string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, s := range n.Sent {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

type MockJournal struct {
	mu     sync.Mutex
	Trades []domain.ClosedTrade
}

func (j *MockJournal) SaveClosedTrade(ctx context.Context, trade *domain.ClosedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Trades = append(j.Trades, *trade)
	return nil
}

func (j *MockJournal) ListClosedTrades(ctx context.Context, since time.Time) ([]*domain.ClosedTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*domain.ClosedTrade
	for i := range j.Trades {
		t := j.Trades[i]
		if !t.ExitTime.Before(since) {
			out = append(out, &t)
		}
	}
	return out, nil
}

// flatCandles returns n candles spaced 15 minutes apart with a true range of 2.
func flatCandles(start time.Time, n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Time:  start.Add(time.Duration(i) * 15 * time.Minute),
			Open:  100,
			High:  101,
			Low:   99,
			Close: 100,
		}
	}
	return out
}
