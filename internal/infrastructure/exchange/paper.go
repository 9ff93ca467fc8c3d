package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/bimaindrawans/binance-algo/internal/id"
	"go.uber.org/zap"
)

const DefaultPaperSlippage = 0.0005

// CandleSource provides market data to the paper exchange.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

type paperOrder struct {
	handle domain.OrderHandle
	side   domain.Side // side of the protected position
}

// PaperExchange fills orders locally against the trade stream. Market orders
// fill at the last trade price plus slippage; stop and target orders are held
// in memory and flatten the position when a tick crosses them.
type PaperExchange struct {
	candles  CandleSource
	slippage float64
	balance  float64
	logger   *zap.Logger

	mu         sync.Mutex
	lastPrices map[string]float64
	amounts    map[string]float64
	orders     map[string]paperOrder
}

func NewPaperExchange(candles CandleSource, balance, slippage float64, logger *zap.Logger) *PaperExchange {
	if slippage < 0 {
		slippage = DefaultPaperSlippage
	}
	return &PaperExchange{
		candles:    candles,
		slippage:   slippage,
		balance:    balance,
		logger:     logger.With(zap.String("component", "paper_exchange")),
		lastPrices: make(map[string]float64),
		amounts:    make(map[string]float64),
		orders:     make(map[string]paperOrder),
	}
}

func (p *PaperExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if p.candles == nil {
		return nil, fmt.Errorf("paper: no candle source")
	}
	return p.candles.GetCandles(ctx, symbol, interval, limit)
}

func (p *PaperExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.lastPrices[symbol]
	if !ok {
		return domain.OrderHandle{}, fmt.Errorf("paper: no price for %s", symbol)
	}
	if quantity <= 0 {
		return domain.OrderHandle{}, fmt.Errorf("paper: invalid quantity %v", quantity)
	}

	open, _ := orderSides(side)
	fill := price * (1 + p.slippage)
	signed := quantity
	if side == domain.SideShort {
		fill = price * (1 - p.slippage)
		signed = -quantity
	}
	p.amounts[symbol] += signed

	h := p.newHandle(symbol, domain.OrderKindMarket, open)
	h.Quantity = quantity
	p.logger.Info("Paper market fill",
		zap.String("symbol", symbol),
		zap.String("side", open),
		zap.Float64("qty", quantity),
		zap.Float64("price", fill),
	)
	return h, nil
}

func (p *PaperExchange) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, stopPrice float64) (domain.OrderHandle, error) {
	return p.placeTrigger(symbol, side, domain.OrderKindStop, stopPrice)
}

func (p *PaperExchange) PlaceTargetOrder(ctx context.Context, symbol string, side domain.Side, targetPrice float64) (domain.OrderHandle, error) {
	return p.placeTrigger(symbol, side, domain.OrderKindTarget, targetPrice)
}

func (p *PaperExchange) placeTrigger(symbol string, side domain.Side, kind domain.OrderKind, price float64) (domain.OrderHandle, error) {
	if price <= 0 {
		return domain.OrderHandle{}, fmt.Errorf("paper: invalid trigger price %v", price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, exit := orderSides(side)
	h := p.newHandle(symbol, kind, exit)
	h.StopPrice = price
	p.orders[h.OrderID] = paperOrder{handle: h, side: side}
	return h, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok || o.handle.Symbol != symbol {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	delete(p.orders, orderID)
	return nil
}

func (p *PaperExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	return p.balance, nil
}

func (p *PaperExchange) GetPositionAmount(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amounts[symbol], nil
}

// OnTick records the trade price and fires any trigger order it crosses.
// A fired trigger flattens the position and cancels the symbol's other
// trigger orders.
func (p *PaperExchange) OnTick(tick domain.PriceTick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastPrices[tick.Symbol] = tick.Price

	for _, o := range p.orders {
		if o.handle.Symbol != tick.Symbol || !triggered(o, tick.Price) {
			continue
		}
		p.logger.Info("Paper trigger fired",
			zap.String("symbol", tick.Symbol),
			zap.String("kind", string(o.handle.Kind)),
			zap.Float64("trigger", o.handle.StopPrice),
			zap.Float64("price", tick.Price),
		)
		p.amounts[tick.Symbol] = 0
		for oid, other := range p.orders {
			if other.handle.Symbol == tick.Symbol {
				delete(p.orders, oid)
			}
		}
		return
	}
}

// OpenOrders returns the resting trigger orders for symbol.
func (p *PaperExchange) OpenOrders(symbol string) []domain.OrderHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.OrderHandle
	for _, o := range p.orders {
		if o.handle.Symbol == symbol {
			out = append(out, o.handle)
		}
	}
	return out
}

func triggered(o paperOrder, price float64) bool {
	long := o.side == domain.SideLong
	switch o.handle.Kind {
	case domain.OrderKindStop:
		if long {
			return price <= o.handle.StopPrice
		}
		return price >= o.handle.StopPrice
	case domain.OrderKindTarget:
		if long {
			return price >= o.handle.StopPrice
		}
		return price <= o.handle.StopPrice
	}
	return false
}

func (p *PaperExchange) newHandle(symbol string, kind domain.OrderKind, side string) domain.OrderHandle {
	return domain.OrderHandle{
		OrderID:       id.New(),
		ClientOrderID: newClientOrderID(),
		Symbol:        symbol,
		Kind:          kind,
		Side:          side,
		CreatedAt:     time.Now(),
	}
}

var _ domain.Exchange = (*PaperExchange)(nil)
