package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/config"
	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/exchange"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/lock"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/logger"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/metrics"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/notify"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/storage"
	"github.com/bimaindrawans/binance-algo/internal/usecase"
	"github.com/bimaindrawans/binance-algo/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, cfg *config.Config) error {
	// 1. Logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	symbols := cfg.Trading.Symbols

	// 2. Exchange, paper fills in dry run
	binance := exchange.NewBinanceAdapter(exchange.BinanceConfig{
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		Testnet:     cfg.Exchange.Testnet,
		BaseURL:     cfg.Exchange.RESTEndpoint,
		Instruments: cfg.Exchange.Instruments,
	})
	stream := exchange.NewTradeStream(streamURL(cfg.Exchange), 0, log)

	var ex domain.Exchange = binance
	if cfg.DryRun {
		paper := exchange.NewPaperExchange(binance, cfg.Trading.InitialBalance, exchange.DefaultPaperSlippage, log)
		stream.OnTrade(paper.OnTick)
		ex = paper
		log.Info("Dry run: orders are filled by the paper exchange")
	}

	// 3. Instance lock
	if cfg.Redis.Enabled {
		rl, err := lock.NewRedisLock(ctx, lock.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, log)
		if err != nil {
			return err
		}
		defer rl.Close()
		lease, err := rl.AcquireLease(ctx, cfg.Redis.LockKey, cfg.Redis.LockTTL)
		if err != nil {
			return fmt.Errorf("instance lock %s: %w", cfg.Redis.LockKey, err)
		}
		defer lease.Release()

		lockCtx, cancelLock := context.WithCancel(ctx)
		defer cancelLock()
		lostLock := make(chan error, 1)
		go func() { lostLock <- lease.Keep(lockCtx) }()
		// trading stops if another process takes the account over
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := <-lostLock; err != nil {
				log.Error("Instance lock lost, stopping", zap.Error(err))
				cancel()
			}
		}()
	}

	// 4. Notifications, metrics, journal
	notifier := notify.NewNotifier(newSenders(cfg.Notify), cfg.Notify.Events, log)

	var recorder domain.MetricsRecorder
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		rec := metrics.NewRecorder()
		recorder = rec
		metricsHandler = rec.Handler()
	}

	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return err
		}
	}
	journal, err := storage.NewSQLiteStore(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	defer journal.Close()

	// 5. Account
	balance := cfg.Trading.InitialBalance
	if cfg.Trading.UseLiveBalance {
		live, err := ex.GetBalance(ctx, cfg.Exchange.QuoteAsset)
		if err != nil {
			return fmt.Errorf("read %s balance: %w", cfg.Exchange.QuoteAsset, err)
		}
		balance = live
		log.Info("Using live balance", zap.Float64("balance", balance))
	}

	// 6. Engine
	gateway := usecase.NewOrderGateway(ex, recorder, usecase.OrderGatewayConfig{
		MaxRetries:   cfg.Trading.MaxRetries,
		RetryBackoff: cfg.Trading.RetryBackoff,
	}, log)
	manager := usecase.NewPositionManager(usecase.ManagerConfig{
		InitialBalance:         balance,
		Leverage:               cfg.Trading.Leverage,
		BreakevenTrigger:       cfg.Trading.BreakevenTrigger,
		BreakevenMaxAttempts:   cfg.Trading.BreakevenRetries,
		BreakevenRetryInterval: cfg.Trading.BreakevenBackoff,
		FeeRate:                cfg.Trading.FeeRate,
		Location:               loc,
	}, usecase.NewPositionSizer(cfg.Trading.Risk), gateway, notifier, recorder, journal, log)
	defer manager.Wait()

	stream.OnTrade(func(tick domain.PriceTick) {
		if err := manager.ProcessTick(ctx, tick); err != nil {
			log.Warn("Tick not processed", zap.String("symbol", tick.Symbol), zap.Error(err))
		}
	})

	poller := usecase.NewCandlePoller(ex, manager, notifier, usecase.CandlePollerConfig{
		Symbols:        symbols,
		Interval:       cfg.Exchange.Interval,
		PollInterval:   cfg.Trading.PollInterval,
		ErrorBackoff:   cfg.Trading.ErrorBackoff,
		HistoryCandles: cfg.Trading.HistoryCandles,
		ATRPeriod:      cfg.Trading.ATRPeriod,
		MaxCandles:     cfg.Trading.MaxCandles,
		Location:       loc,
	}, log)

	notifyNow(notifier, domain.EventLifecycle, "Bot STARTED", startMessage(cfg, balance, loc), log)

	// 7. Run everything under one group
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return stream.Run(gctx, symbols) })

	if cfg.Reports.Enabled {
		reporter := usecase.NewSummaryReporter(manager, notifier, usecase.DefaultSummaryPeriods(), loc, log)
		reporter.SetCheckInterval(cfg.Reports.CheckInterval)
		g.Go(func() error { return reporter.Run(gctx) })
	}

	// paper stops and targets only close positions through the reconciler
	if cfg.Reconcile.Enabled || cfg.DryRun {
		reconciler := usecase.NewReconciler(ex, manager, cfg.Reconcile.Interval, log)
		g.Go(func() error { return reconciler.Run(gctx) })
	}

	if cfg.Server.Enabled {
		server := web.NewServer(web.Options{
			Port:        cfg.Server.Port,
			Symbols:     symbols,
			DryRun:      cfg.DryRun,
			CORSOrigins: cfg.Server.CORSOrigins,
			Metrics:     metricsHandler,
		}, manager, journal, log)
		g.Go(func() error { return server.Run(gctx) })
	}

	err = g.Wait()
	log.Info("Shutting down...", zap.Error(err))
	notifyNow(notifier, domain.EventLifecycle, "Bot STOPPED", fmt.Sprintf("Bot STOPPED at %s", time.Now().In(loc).Format("2006-01-02 15:04:05 MST")), log)
	return err
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.File != "" {
		return logger.NewFileLogger(cfg.File, cfg.Level)
	}
	return logger.NewLogger(cfg.Level)
}

func newSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	return senders
}

func streamURL(cfg config.ExchangeConfig) string {
	if cfg.WSEndpoint != "" {
		return cfg.WSEndpoint
	}
	if cfg.Testnet {
		return exchange.TestnetStreamURL
	}
	return exchange.DefaultStreamURL
}

func startMessage(cfg *config.Config, balance float64, loc *time.Location) string {
	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	return fmt.Sprintf("Bot STARTED at %s\nPairs: %s\nLeverage: %dx\nBalance: %.2f %s\nMode: %s",
		time.Now().In(loc).Format("2006-01-02 15:04:05 MST"),
		strings.Join(cfg.Trading.Symbols, ", "),
		cfg.Trading.Leverage,
		balance, cfg.Exchange.QuoteAsset,
		mode,
	)
}

// notifyNow sends outside the engine's async path, for lifecycle messages.
func notifyNow(n domain.Notifier, event, title, message string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := n.Notify(ctx, event, title, message); err != nil {
		log.Warn("Notification failed", zap.String("title", title), zap.Error(err))
	}
	log.Info(title, zap.String("message", message))
}
