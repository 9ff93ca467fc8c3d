package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Signal is the outcome of breakout detection.
type Signal string

const (
	SignalNone  Signal = "NONE"
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
)

// Side maps a directional signal to a position side. SignalNone has no side.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalLong:
		return SideLong, true
	case SignalShort:
		return SideShort, true
	}
	return "", false
}

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindStop   OrderKind = "STOP_MARKET"
	OrderKindTarget OrderKind = "TAKE_PROFIT_MARKET"
)

// OrderHandle identifies an order accepted by the exchange.
type OrderHandle struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Kind          OrderKind `json:"kind"`
	Side          string    `json:"side"` // exchange side, BUY or SELL
	StopPrice     float64   `json:"stop_price,omitempty"`
	Quantity      float64   `json:"quantity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderSet holds the three legs of an open position.
type OrderSet struct {
	Entry  OrderHandle `json:"entry"`
	Stop   OrderHandle `json:"stop"`
	Target OrderHandle `json:"target"`
}

// Position represents an open trade managed by the engine.
type Position struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Side           Side           `json:"side"`
	EntryTime      time.Time      `json:"entry_time"`
	EntryPrice     float64        `json:"entry_price"`
	StopPrice      float64        `json:"stop_price"`
	TargetPrice    float64        `json:"target_price"`
	Quantity       float64        `json:"quantity"`
	Orders         OrderSet       `json:"orders"`
	Status         PositionStatus `json:"status"`
	BreakevenMoved bool           `json:"breakeven_moved"`

	// Stop replacement attempts made after the breakeven trigger was crossed.
	BreakevenAttempts  int       `json:"breakeven_attempts,omitempty"`
	BreakevenAttemptAt time.Time `json:"breakeven_attempt_at,omitempty"`
}

// UnrealizedPnL returns the leveraged floating PnL at price.
func (p *Position) UnrealizedPnL(price float64, leverage int) float64 {
	diff := price - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	return diff * p.Quantity * float64(leverage)
}

// ClosedTrade is an immutable record of a finished position.
type ClosedTrade struct {
	Position     Position  `json:"position"`
	ExitTime     time.Time `json:"exit_time"`
	ExitPrice    float64   `json:"exit_price"`
	Fees         float64   `json:"fees"`
	RealizedPnL  float64   `json:"realized_pnl"`
	BalanceAfter float64   `json:"balance_after"`
}

// Win reports whether the trade closed with a positive PnL.
func (t *ClosedTrade) Win() bool {
	return t.RealizedPnL > 0
}
