package usecase

import (
	"context"
	"math"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

const DefaultReconcileInterval = 30 * time.Second

// Reconciler polls the exchange for positions the manager still holds and
// hands flat ones to a domain.CloseReconciler at the last seen price.
type Reconciler struct {
	exchange domain.Exchange
	manager  *PositionManager
	target   domain.CloseReconciler
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(exchange domain.Exchange, manager *PositionManager, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		exchange: exchange,
		manager:  manager,
		target:   manager,
		interval: interval,
		logger:   logger.With(zap.String("component", "reconciler")),
		now:      time.Now,
	}
}

// ReconcileOnce checks each open position once and returns how many were closed.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	closed := 0
	for _, pos := range r.manager.OpenPositions() {
		amt, err := r.exchange.GetPositionAmount(ctx, pos.Symbol)
		if err != nil {
			return closed, err
		}
		if math.Abs(amt) > 0 {
			continue
		}

		exit, ok := r.manager.LastPrice(pos.Symbol)
		if !ok {
			exit = pos.EntryPrice
		}
		if _, err := r.target.ApplyExternalClose(ctx, pos.Symbol, exit, r.now()); err != nil {
			r.logger.Warn("Close not applied", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Reconcile failed", zap.Error(err))
			}
		}
	}
}
