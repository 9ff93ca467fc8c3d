package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultStreamURL      = "wss://fstream.binance.com/stream"
	TestnetStreamURL      = "wss://stream.binancefuture.com/stream"
	defaultReconnectDelay = 2 * time.Second
)

// TradeStream subscribes to the combined <symbol>@trade stream and pushes
// every trade price to the registered callbacks.
type TradeStream struct {
	baseURL        string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         *zap.Logger

	mu        sync.Mutex
	callbacks []func(domain.PriceTick)
}

func NewTradeStream(baseURL string, reconnectDelay time.Duration, logger *zap.Logger) *TradeStream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &TradeStream{
		baseURL:        baseURL,
		reconnectDelay: reconnectDelay,
		dialer:         websocket.DefaultDialer,
		logger:         logger.With(zap.String("component", "trade_stream")),
	}
}

func (s *TradeStream) OnTrade(callback func(domain.PriceTick)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// StreamURL builds the combined stream URL for symbols.
func StreamURL(baseURL string, symbols []string) string {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	return baseURL + "?streams=" + strings.Join(streams, "/")
}

// Run keeps the stream connected until ctx is cancelled, reconnecting after
// reconnectDelay whenever the connection drops.
func (s *TradeStream) Run(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("trade stream: no symbols")
	}
	url := StreamURL(s.baseURL, symbols)

	for {
		err := s.runOnce(ctx, url)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("Stream disconnected, reconnecting", zap.Error(err), zap.Duration("delay", s.reconnectDelay))

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *TradeStream) runOnce(ctx context.Context, url string) error {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	s.logger.Info("Stream connected", zap.String("url", url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, ok := parseTradeMessage(message)
		if !ok {
			continue
		}

		s.mu.Lock()
		callbacks := make([]func(domain.PriceTick), len(s.callbacks))
		copy(callbacks, s.callbacks)
		s.mu.Unlock()

		for _, cb := range callbacks {
			cb(tick)
		}
	}
}

type tradeEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

func parseTradeMessage(message []byte) (domain.PriceTick, bool) {
	var env tradeEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return domain.PriceTick{}, false
	}
	if env.Data.Symbol == "" {
		return domain.PriceTick{}, false
	}
	price, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil || price <= 0 {
		return domain.PriceTick{}, false
	}

	ts := time.Now()
	if env.Data.TradeTime > 0 {
		ts = time.UnixMilli(env.Data.TradeTime)
	}
	return domain.PriceTick{Symbol: env.Data.Symbol, Price: price, Time: ts}, true
}

var _ domain.PriceStream = (*TradeStream)(nil)
