package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/config"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/exchange"
	"github.com/bimaindrawans/binance-algo/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config/config.yaml", "config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Binance futures interaction...\n")
	fmt.Printf("Testnet: %v\n", cfg.Exchange.Testnet)
	if len(cfg.Exchange.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", cfg.Exchange.APIKey[:4])
	}

	adapter := exchange.NewBinanceAdapter(exchange.BinanceConfig{
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		Testnet:     cfg.Exchange.Testnet,
		BaseURL:     cfg.Exchange.RESTEndpoint,
		Instruments: cfg.Exchange.Instruments,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Public endpoint: history and ATR
	for _, symbol := range cfg.Trading.Symbols {
		candles, err := adapter.GetCandles(ctx, symbol, cfg.Exchange.Interval, cfg.Trading.HistoryCandles)
		if err != nil {
			fmt.Printf("❌ Failed to get candles for %s: %v\n", symbol, err)
			continue
		}
		store := usecase.NewCandleStore(symbol, cfg.Trading.ATRPeriod, cfg.Trading.MaxCandles)
		store.Seed(candles)
		last, ok := store.Last()
		if !ok {
			fmt.Printf("⚠️ No candles for %s\n", symbol)
			continue
		}
		fmt.Printf("✅ %s: %d candles, last close %.4f, ATR(%d)=%.4f ready=%v\n",
			symbol, store.Len(), last.Close, cfg.Trading.ATRPeriod, last.ATR, last.ATRReady)
	}

	// 3. Private endpoints: balance and positions
	bal, err := adapter.GetBalance(ctx, cfg.Exchange.QuoteAsset)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		fmt.Printf("✅ Balance: %.4f %s\n", bal, cfg.Exchange.QuoteAsset)
	}

	for _, symbol := range cfg.Trading.Symbols {
		amt, err := adapter.GetPositionAmount(ctx, symbol)
		if err != nil {
			fmt.Printf("❌ Failed to get position for %s: %v\n", symbol, err)
			continue
		}
		fmt.Printf("✅ Position (%s): %f\n", symbol, amt)
	}
}
