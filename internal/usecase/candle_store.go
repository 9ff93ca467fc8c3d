package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
)

const (
	DefaultATRPeriod  = 14
	DefaultMaxCandles = 500
)

// CandleStore keeps an ordered candle buffer for one symbol and derives true
// range and ATR as candles arrive. It is owned by a single goroutine.
type CandleStore struct {
	symbol  string
	period  int
	maxLen  int
	candles []domain.Candle
	trCount int
}

func NewCandleStore(symbol string, period, maxLen int) *CandleStore {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if maxLen < period+1 {
		maxLen = period + 1
	}
	return &CandleStore{
		symbol:  symbol,
		period:  period,
		maxLen:  maxLen,
		candles: make([]domain.Candle, 0, maxLen),
	}
}

// AppendOrReject appends c when it is strictly newer than the last stored
// candle and fills in its true range and ATR. Older or duplicate candles are
// rejected with domain.ErrStaleCandle and leave the store untouched.
func (s *CandleStore) AppendOrReject(c domain.Candle) error {
	n := len(s.candles)
	if n > 0 && !c.Time.After(s.candles[n-1].Time) {
		return fmt.Errorf("%s %s: %w", s.symbol, c.Time.Format(time.RFC3339), domain.ErrStaleCandle)
	}

	c.TrueRange = c.High - c.Low
	if n > 0 {
		prevClose := s.candles[n-1].Close
		c.TrueRange = math.Max(c.TrueRange, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	s.trCount++

	c.ATR, c.ATRReady = 0, false
	if s.trCount >= s.period {
		sum := c.TrueRange
		for i := n - 1; i >= n-(s.period-1); i-- {
			sum += s.candles[i].TrueRange
		}
		c.ATR = sum / float64(s.period)
		c.ATRReady = true
	}

	if n == s.maxLen {
		copy(s.candles, s.candles[1:])
		s.candles = s.candles[:n-1]
	}
	s.candles = append(s.candles, c)
	return nil
}

// Seed appends a history batch in order, skipping stale entries. It returns
// the number of candles stored.
func (s *CandleStore) Seed(candles []domain.Candle) int {
	added := 0
	for _, c := range candles {
		if err := s.AppendOrReject(c); err == nil {
			added++
		}
	}
	return added
}

func (s *CandleStore) Len() int {
	return len(s.candles)
}

func (s *CandleStore) Symbol() string {
	return s.symbol
}

func (s *CandleStore) Last() (domain.Candle, bool) {
	if len(s.candles) == 0 {
		return domain.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// LastTwo returns the reference candle and the latest candle.
func (s *CandleStore) LastTwo() (prior, current domain.Candle, ok bool) {
	n := len(s.candles)
	if n < 2 {
		return domain.Candle{}, domain.Candle{}, false
	}
	return s.candles[n-2], s.candles[n-1], true
}

// Candles returns a copy of the buffer, oldest first.
func (s *CandleStore) Candles() []domain.Candle {
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}
