package usecase

import "github.com/bimaindrawans/binance-algo/internal/domain"

// Detect reports a breakout of current beyond the range of prior. A close
// above prior.High is long, below prior.Low is short; long wins if both hold.
// Without a prior ATR there is no signal.
func Detect(prior, current domain.Candle) domain.Signal {
	if !prior.ATRReady {
		return domain.SignalNone
	}
	if current.Close > prior.High {
		return domain.SignalLong
	}
	if current.Close < prior.Low {
		return domain.SignalShort
	}
	return domain.SignalNone
}
