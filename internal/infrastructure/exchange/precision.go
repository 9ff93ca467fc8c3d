package exchange

import (
	"strings"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// instrumentBook rounds prices and quantities to each symbol's precision.
type instrumentBook map[string]domain.Instrument

func newInstrumentBook(instruments []domain.Instrument) instrumentBook {
	book := make(instrumentBook, len(instruments))
	for _, in := range instruments {
		book[in.Symbol] = in
	}
	return book
}

func (b instrumentBook) get(symbol string) domain.Instrument {
	in, ok := b[symbol]
	if !ok {
		in = domain.Instrument{Symbol: symbol}
	}
	if in.PriceScale <= 0 {
		in.PriceScale = domain.DefaultPriceScale
	}
	if in.QuantityScale <= 0 {
		in.QuantityScale = domain.DefaultQuantityScale
	}
	return in
}

func (b instrumentBook) price(symbol string, v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(b.get(symbol).PriceScale)
}

func (b instrumentBook) quantity(symbol string, v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(b.get(symbol).QuantityScale)
}

// orderSides maps a position side to the exchange sides that open and close it.
func orderSides(side domain.Side) (open, exit string) {
	if side == domain.SideShort {
		return "SELL", "BUY"
	}
	return "BUY", "SELL"
}

// newClientOrderID returns an ID within Binance's 36 character limit.
func newClientOrderID() string {
	return "ba-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
