package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

const DefaultSummaryCheck = time.Minute

// SummaryPeriod is one recurring report. A zero Window reports on every trade
// since the reporter started.
type SummaryPeriod struct {
	Name   string
	Title  string
	Every  time.Duration
	Window time.Duration
}

func DefaultSummaryPeriods() []SummaryPeriod {
	return []SummaryPeriod{
		{Name: "daily", Title: "Daily Summary", Every: 24 * time.Hour},
		{Name: "weekly", Title: "Weekly Summary", Every: 7 * 24 * time.Hour, Window: 7 * 24 * time.Hour},
		{Name: "monthly", Title: "Monthly Summary", Every: 30 * 24 * time.Hour, Window: 30 * 24 * time.Hour},
	}
}

// TradeHistory is the read side of the position manager used for reports.
type TradeHistory interface {
	ClosedTrades(since time.Time) []domain.ClosedTrade
	Balance() float64
}

type SummaryReporter struct {
	history  TradeHistory
	notifier domain.Notifier
	periods  []SummaryPeriod
	location *time.Location
	check    time.Duration
	logger   *zap.Logger
	now      func() time.Time

	started time.Time
	last    map[string]time.Time
}

func NewSummaryReporter(history TradeHistory, notifier domain.Notifier, periods []SummaryPeriod, location *time.Location, logger *zap.Logger) *SummaryReporter {
	if location == nil {
		location = time.UTC
	}
	r := &SummaryReporter{
		history:  history,
		notifier: notifier,
		periods:  periods,
		location: location,
		check:    DefaultSummaryCheck,
		logger:   logger.With(zap.String("component", "summary_reporter")),
		now:      time.Now,
		last:     make(map[string]time.Time, len(periods)),
	}
	r.reset()
	return r
}

// SetCheckInterval changes how often Run looks for due reports.
func (r *SummaryReporter) SetCheckInterval(d time.Duration) {
	if d > 0 {
		r.check = d
	}
}

func (r *SummaryReporter) reset() {
	r.started = r.now().In(r.location)
	for _, p := range r.periods {
		r.last[p.Name] = r.started
	}
}

// Summarize aggregates trades into a summary for the given period.
func Summarize(period string, trades []domain.ClosedTrade, from, to time.Time, balance float64) domain.TradeSummary {
	s := domain.TradeSummary{
		Period:      period,
		From:        from,
		To:          to,
		TotalTrades: len(trades),
		Balance:     balance,
	}
	for i := range trades {
		if trades[i].Win() {
			s.Wins++
		}
		s.RealizedPnL += trades[i].RealizedPnL
	}
	s.Losses = s.TotalTrades - s.Wins
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return s
}

// Due builds the summaries whose period has elapsed at now and marks them sent.
func (r *SummaryReporter) Due(now time.Time) []domain.TradeSummary {
	now = now.In(r.location)
	var out []domain.TradeSummary
	for _, p := range r.periods {
		if now.Sub(r.last[p.Name]) < p.Every {
			continue
		}
		from := r.started
		if p.Window > 0 {
			from = now.Add(-p.Window)
		}
		out = append(out, Summarize(p.Name, r.history.ClosedTrades(from), from, now, r.history.Balance()))
		r.last[p.Name] = now
	}
	return out
}

func (r *SummaryReporter) Run(ctx context.Context) error {
	r.reset()
	ticker := time.NewTicker(r.check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, s := range r.Due(r.now()) {
				r.send(ctx, s)
			}
		}
	}
}

func (r *SummaryReporter) send(ctx context.Context, s domain.TradeSummary) {
	title := r.titleFor(s.Period)
	msg := FormatSummary(s)
	r.logger.Info("Summary", zap.String("period", s.Period), zap.Int("trades", s.TotalTrades), zap.Float64("win_rate", s.WinRate))
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, domain.EventSummary, title, msg); err != nil {
		r.logger.Warn("Summary notification failed", zap.String("period", s.Period), zap.Error(err))
	}
}

func (r *SummaryReporter) titleFor(name string) string {
	for _, p := range r.periods {
		if p.Name == name {
			return p.Title
		}
	}
	return name
}

func FormatSummary(s domain.TradeSummary) string {
	return fmt.Sprintf("Period: %s - %s\nBalance: %.2f USDT\nTotal Trades: %d\nWins: %d, Losses: %d\nWin Rate: %.2f%%",
		s.From.Format("2006-01-02 15:04"),
		s.To.Format("2006-01-02 15:04"),
		s.Balance,
		s.TotalTrades,
		s.Wins,
		s.Losses,
		s.WinRate,
	)
}
