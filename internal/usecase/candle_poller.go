package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval   = 10 * time.Second
	DefaultErrorBackoff   = 5 * time.Second
	DefaultHistoryCandles = 50
	DefaultCandleInterval = "15m"
)

type CandlePollerConfig struct {
	Symbols        []string
	Interval       string
	PollInterval   time.Duration
	ErrorBackoff   time.Duration
	HistoryCandles int
	ATRPeriod      int
	MaxCandles     int
	Location       *time.Location
}

// CandlePoller fetches the last closed candle of every symbol on a fixed
// period and hands breakouts to the position manager. It owns the candle
// stores; nothing else touches them.
type CandlePoller struct {
	exchange domain.Exchange
	manager  *PositionManager
	notifier *asyncNotifier
	cfg      CandlePollerConfig
	stores   map[string]*CandleStore
	logger   *zap.Logger
}

func NewCandlePoller(exchange domain.Exchange, manager *PositionManager, notifier domain.Notifier, cfg CandlePollerConfig, logger *zap.Logger) *CandlePoller {
	if cfg.Interval == "" {
		cfg.Interval = DefaultCandleInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.HistoryCandles <= 0 {
		cfg.HistoryCandles = DefaultHistoryCandles
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = DefaultATRPeriod
	}
	if cfg.MaxCandles <= 0 {
		cfg.MaxCandles = DefaultMaxCandles
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	logger = logger.With(zap.String("component", "candle_poller"))
	stores := make(map[string]*CandleStore, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		stores[s] = NewCandleStore(s, cfg.ATRPeriod, cfg.MaxCandles)
	}
	return &CandlePoller{
		exchange: exchange,
		manager:  manager,
		notifier: newAsyncNotifier(notifier, logger),
		cfg:      cfg,
		stores:   stores,
		logger:   logger,
	}
}

// Backfill seeds every store with recent history.
func (p *CandlePoller) Backfill(ctx context.Context) error {
	for _, symbol := range p.cfg.Symbols {
		candles, err := p.exchange.GetCandles(ctx, symbol, p.cfg.Interval, p.cfg.HistoryCandles)
		if err != nil {
			return fmt.Errorf("backfill %s: %w", symbol, err)
		}
		// The last kline is still forming; polling appends it once closed.
		if len(candles) > 0 {
			candles = candles[:len(candles)-1]
		}
		for i := range candles {
			candles[i].Time = candles[i].Time.In(p.cfg.Location)
		}
		added := p.stores[symbol].Seed(candles)
		p.logger.Info("History loaded", zap.String("symbol", symbol), zap.Int("candles", added))
	}
	p.notifier.send(domain.EventLifecycle, "History ready", "Historical data initialised. Candle polling started.")
	return nil
}

// PollOnce runs one poll cycle over all symbols. Symbols with an open
// position are skipped before any request is made.
func (p *CandlePoller) PollOnce(ctx context.Context) error {
	for _, symbol := range p.cfg.Symbols {
		if p.manager.HasOpenPosition(symbol) {
			continue
		}
		if err := p.pollSymbol(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}

func (p *CandlePoller) pollSymbol(ctx context.Context, symbol string) error {
	klines, err := p.exchange.GetCandles(ctx, symbol, p.cfg.Interval, 2)
	if err != nil {
		return fmt.Errorf("fetch candles %s: %w", symbol, err)
	}
	if len(klines) < 2 {
		return nil
	}

	// The last kline is still forming.
	closed := klines[len(klines)-2]
	closed.Time = closed.Time.In(p.cfg.Location)

	store := p.stores[symbol]
	if err := store.AppendOrReject(closed); err != nil {
		if errors.Is(err, domain.ErrStaleCandle) {
			return nil
		}
		return err
	}
	if store.Len() < p.cfg.ATRPeriod+1 {
		return nil
	}

	prior, current, _ := store.LastTwo()
	if _, err := p.manager.EvaluateSignal(ctx, symbol, prior, current); err != nil && !isDroppedSignal(err) {
		return err
	}
	return nil
}

// Run backfills history and then polls until ctx is cancelled. A failed cycle
// is followed by ErrorBackoff instead of PollInterval.
func (p *CandlePoller) Run(ctx context.Context) error {
	if err := p.Backfill(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		wait := p.cfg.PollInterval
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("Poll cycle failed", zap.Error(err))
			wait = p.cfg.ErrorBackoff
		}
		timer.Reset(wait)
	}
}

// Store exposes the candle store for symbol. Callers must not use it while
// Run is active.
func (p *CandlePoller) Store(symbol string) (*CandleStore, bool) {
	s, ok := p.stores[symbol]
	return s, ok
}
