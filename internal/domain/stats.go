package domain

import "time"

// TradeSummary aggregates closed trades over a reporting period.
type TradeSummary struct {
	Period      string    `json:"period"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	TotalTrades int       `json:"total_trades"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	WinRate     float64   `json:"win_rate"` // percent
	RealizedPnL float64   `json:"realized_pnl"`
	Balance     float64   `json:"balance"`
}

// AccountSnapshot is a read-only view of the account for reporting.
type AccountSnapshot struct {
	Balance         float64 `json:"balance"`
	EffectiveMargin float64 `json:"effective_margin"`
	Leverage        int     `json:"leverage"`
	OpenPositions   int     `json:"open_positions"`
	ClosedTrades    int     `json:"closed_trades"`
	Drawdown        float64 `json:"drawdown"`
}
