package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

type OrderGatewayConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// OpenResult describes a fully placed entry.
type OpenResult struct {
	Orders   domain.OrderSet
	Latency  time.Duration
	Attempts int
}

// OrderGateway places the market, stop and target legs of a position and
// replaces stops.
type OrderGateway struct {
	exchange domain.Exchange
	metrics  domain.MetricsRecorder
	cfg      OrderGatewayConfig
	logger   *zap.Logger
}

func NewOrderGateway(exchange domain.Exchange, metrics domain.MetricsRecorder, cfg OrderGatewayConfig, logger *zap.Logger) *OrderGateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &OrderGateway{
		exchange: exchange,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "order_gateway")),
	}
}

// OpenPosition submits market, stop and target orders, retrying the whole
// sequence up to MaxRetries times.
//
// A failed attempt is retried from the market leg. If the market order filled
// and a protective leg failed, the retry opens a second market order. Partial
// fills are not compensated here.
func (g *OrderGateway) OpenPosition(ctx context.Context, plan OrderPlan) (*OpenResult, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		start := time.Now()
		orders, err := g.placeLegs(ctx, plan)
		if err == nil {
			latency := time.Since(start)
			g.metrics.ObserveOrderLatency(latency)
			g.logger.Info("Orders placed",
				zap.String("symbol", plan.Symbol),
				zap.String("side", string(plan.Side)),
				zap.Int("attempt", attempt),
				zap.Duration("latency", latency),
			)
			return &OpenResult{Orders: orders, Latency: latency, Attempts: attempt}, nil
		}

		lastErr = err
		g.metrics.IncOrderRetry()
		g.logger.Warn("Order attempt failed",
			zap.String("symbol", plan.Symbol),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == g.cfg.MaxRetries {
			break
		}
		if err := sleepContext(ctx, g.cfg.RetryBackoff); err != nil {
			return nil, fmt.Errorf("%s after %d attempts: %w: %w", plan.Symbol, attempt, domain.ErrPlacementFailed, err)
		}
	}
	return nil, fmt.Errorf("%s after %d attempts: %w: %w", plan.Symbol, g.cfg.MaxRetries, domain.ErrPlacementFailed, lastErr)
}

func (g *OrderGateway) placeLegs(ctx context.Context, plan OrderPlan) (domain.OrderSet, error) {
	var orders domain.OrderSet
	var err error

	orders.Entry, err = g.exchange.PlaceMarketOrder(ctx, plan.Symbol, plan.Side, plan.Quantity)
	if err != nil {
		return orders, fmt.Errorf("market order: %w", err)
	}
	orders.Stop, err = g.exchange.PlaceStopOrder(ctx, plan.Symbol, plan.Side, plan.StopPrice)
	if err != nil {
		return orders, fmt.Errorf("stop order: %w", err)
	}
	orders.Target, err = g.exchange.PlaceTargetOrder(ctx, plan.Symbol, plan.Side, plan.TargetPrice)
	if err != nil {
		return orders, fmt.Errorf("target order: %w", err)
	}
	return orders, nil
}

// ReplaceStop cancels the position's stop order and submits a new one at
// newStop. The cancellation is not rolled back if the new order fails; the
// position is then left without a stop handle and the next call only submits.
func (g *OrderGateway) ReplaceStop(ctx context.Context, pos *domain.Position, newStop float64) error {
	if id := pos.Orders.Stop.OrderID; id != "" {
		if err := g.exchange.CancelOrder(ctx, pos.Symbol, id); err != nil {
			return fmt.Errorf("%s cancel stop %s: %w: %w", pos.Symbol, id, domain.ErrStopReplaceFailed, err)
		}
		pos.Orders.Stop = domain.OrderHandle{}
	}

	stop, err := g.exchange.PlaceStopOrder(ctx, pos.Symbol, pos.Side, newStop)
	if err != nil {
		return fmt.Errorf("%s place stop at %.8f: %w: %w", pos.Symbol, newStop, domain.ErrStopReplaceFailed, err)
	}
	pos.Orders.Stop = stop
	pos.StopPrice = newStop
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopMetrics struct{}

func (nopMetrics) SetActivePositions(int)            {}
func (nopMetrics) ObserveOrderLatency(time.Duration) {}
func (nopMetrics) IncOrderRetry()                    {}
func (nopMetrics) SetUnrealizedPnL(float64)          {}
func (nopMetrics) SetDrawdown(float64)               {}
