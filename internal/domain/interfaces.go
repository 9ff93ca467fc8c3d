package domain

import (
	"context"
	"time"
)

// Exchange defines the order and market data primitives the engine needs from a
// futures venue. Implementations must be safe for concurrent use.
type Exchange interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// Order legs. side is the side of the position being opened or protected;
	// the adapter maps it to the exchange order side.
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (OrderHandle, error)
	PlaceStopOrder(ctx context.Context, symbol string, side Side, stopPrice float64) (OrderHandle, error)
	PlaceTargetOrder(ctx context.Context, symbol string, side Side, targetPrice float64) (OrderHandle, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	GetBalance(ctx context.Context, asset string) (float64, error)
	// GetPositionAmount returns the signed position size held on the exchange.
	GetPositionAmount(ctx context.Context, symbol string) (float64, error)
}

// PriceStream pushes trade prices. Callbacks run on the stream's read goroutine.
type PriceStream interface {
	OnTrade(callback func(tick PriceTick))
	Run(ctx context.Context, symbols []string) error
}

// Notifier delivers human-readable messages to the operator.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MetricsRecorder is the best-effort metrics sink.
type MetricsRecorder interface {
	SetActivePositions(n int)
	ObserveOrderLatency(d time.Duration)
	IncOrderRetry()
	SetUnrealizedPnL(v float64)
	SetDrawdown(v float64)
}

// TradeJournal stores closed trades for reporting.
type TradeJournal interface {
	SaveClosedTrade(ctx context.Context, trade *ClosedTrade) error
	ListClosedTrades(ctx context.Context, since time.Time) ([]*ClosedTrade, error)
}

// CloseReconciler is implemented by the component that owns open positions. An
// external observer of exchange fills calls it when a position has been closed
// by its stop or target.
type CloseReconciler interface {
	ApplyExternalClose(ctx context.Context, symbol string, exitPrice float64, exitTime time.Time) (*ClosedTrade, error)
}

// InstanceLock guards against two engines trading the same account.
type InstanceLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	// Derived by the candle store.
	TrueRange float64 `json:"true_range"`
	ATR       float64 `json:"atr"`
	ATRReady  bool    `json:"atr_ready"`
}

type PriceTick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}
