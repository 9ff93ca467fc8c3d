package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const MemoryDSN = "file::memory:?cache=shared"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = MemoryDSN
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite3 serializes writers; one connection keeps an in-memory db alive
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			entry_price REAL NOT NULL,
			stop_price REAL NOT NULL,
			target_price REAL NOT NULL,
			quantity REAL NOT NULL,
			breakeven_moved BOOLEAN NOT NULL DEFAULT 0,
			orders TEXT NOT NULL DEFAULT '{}',
			exit_time DATETIME NOT NULL,
			exit_price REAL NOT NULL,
			fees REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL,
			balance_after REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_time ON closed_trades(exit_time);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// TradeJournal implementation

func (s *SQLiteStore) SaveClosedTrade(ctx context.Context, trade *domain.ClosedTrade) error {
	orders, err := json.Marshal(trade.Position.Orders)
	if err != nil {
		return fmt.Errorf("marshal orders: %w", err)
	}

	p := trade.Position
	query := `INSERT OR REPLACE INTO closed_trades (id, symbol, side, entry_time, entry_price, stop_price, target_price, quantity, breakeven_moved, orders, exit_time, exit_price, fees, realized_pnl, balance_after)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Symbol, string(p.Side), p.EntryTime.UTC(), p.EntryPrice, p.StopPrice, p.TargetPrice,
		p.Quantity, p.BreakevenMoved, string(orders),
		trade.ExitTime.UTC(), trade.ExitPrice, trade.Fees, trade.RealizedPnL, trade.BalanceAfter)
	return err
}

// ListClosedTrades returns trades that exited at or after since, oldest first.
// A zero since returns every trade.
func (s *SQLiteStore) ListClosedTrades(ctx context.Context, since time.Time) ([]*domain.ClosedTrade, error) {
	query := `SELECT id, symbol, side, entry_time, entry_price, stop_price, target_price, quantity, breakeven_moved, orders, exit_time, exit_price, fees, realized_pnl, balance_after
			  FROM closed_trades WHERE exit_time >= ? ORDER BY exit_time ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.ClosedTrade
	for rows.Next() {
		var (
			t      domain.ClosedTrade
			side   string
			orders string
		)
		p := &t.Position
		if err := rows.Scan(&p.ID, &p.Symbol, &side, &p.EntryTime, &p.EntryPrice, &p.StopPrice, &p.TargetPrice,
			&p.Quantity, &p.BreakevenMoved, &orders,
			&t.ExitTime, &t.ExitPrice, &t.Fees, &t.RealizedPnL, &t.BalanceAfter); err != nil {
			return nil, err
		}
		p.Side = domain.Side(side)
		p.Status = domain.PositionClosed
		if err := json.Unmarshal([]byte(orders), &p.Orders); err != nil {
			return nil, fmt.Errorf("unmarshal orders for %s: %w", p.ID, err)
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

var _ domain.TradeJournal = (*SQLiteStore)(nil)
