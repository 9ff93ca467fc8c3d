package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/config"
	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/bimaindrawans/binance-algo/internal/infrastructure/storage"
	"github.com/bimaindrawans/binance-algo/internal/usecase"
)

// Prints journaled trades and a summary, e.g. journal -since 168h.
func main() {
	cfgPath := flag.String("config", "config/config.yaml", "config file")
	window := flag.Duration("since", 0, "only trades that closed within this window")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Journal.Path == "" {
		fmt.Println("journal.path is empty, nothing is persisted")
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Journal.Path)
	if err != nil {
		fmt.Printf("Failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	now := time.Now()
	var since time.Time
	if *window > 0 {
		since = now.Add(-*window)
	}

	trades, err := store.ListClosedTrades(context.Background(), since)
	if err != nil {
		fmt.Printf("Failed to list trades: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d trades:\n", len(trades))
	closed := make([]domain.ClosedTrade, 0, len(trades))
	for _, t := range trades {
		p := t.Position
		fmt.Printf("- %s %s %-5s qty=%.4f entry=%.4f exit=%.4f pnl=%.4f fees=%.4f breakeven=%v\n",
			t.ExitTime.Format("2006-01-02 15:04"), p.Symbol, p.Side, p.Quantity,
			p.EntryPrice, t.ExitPrice, t.RealizedPnL, t.Fees, p.BreakevenMoved)
		closed = append(closed, *t)
	}

	if len(trades) == 0 {
		return
	}
	balance := trades[len(trades)-1].BalanceAfter
	from := since
	if from.IsZero() {
		from = trades[0].ExitTime
	}
	fmt.Println()
	fmt.Println(usecase.FormatSummary(usecase.Summarize("journal", closed, from, now, balance)))
}
