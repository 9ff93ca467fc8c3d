package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

type statusView struct {
	domain.AccountSnapshot
	Symbols    []string           `json:"symbols"`
	DryRun     bool               `json:"dry_run"`
	Uptime     string             `json:"uptime"`
	LastPrices map[string]float64 `json:"last_prices"`
}

type positionView struct {
	domain.Position
	LastPrice float64 `json:"last_price,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	prices := make(map[string]float64, len(s.symbols))
	for _, sym := range s.symbols {
		if p, ok := s.state.LastPrice(sym); ok {
			prices[sym] = p
		}
	}

	s.writeJSON(w, http.StatusOK, statusView{
		AccountSnapshot: s.state.Snapshot(),
		Symbols:         s.symbols,
		DryRun:          s.dryRun,
		Uptime:          time.Since(s.started).Truncate(time.Second).String(),
		LastPrices:      prices,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.state.OpenPositions()
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		v := positionView{Position: p}
		if price, ok := s.state.LastPrice(p.Symbol); ok {
			v.LastPrice = price
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, views)
}

// handleTrades lists journaled trades. since accepts RFC3339 or a duration
// back from now, e.g. ?since=24h.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		} else if d, err := time.ParseDuration(v); err == nil {
			since = time.Now().Add(-d)
		} else {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
	}

	trades, err := s.journal.ListClosedTrades(r.Context(), since)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []*domain.ClosedTrade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
