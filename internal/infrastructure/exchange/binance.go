package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/bimaindrawans/binance-algo/internal/domain"
)

type BinanceConfig struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	BaseURL     string // overrides the client endpoint when set
	Instruments []domain.Instrument
}

// BinanceAdapter implements domain.Exchange on USDⓈ-M futures.
type BinanceAdapter struct {
	client      *futures.Client
	instruments instrumentBook
}

func NewBinanceAdapter(cfg BinanceConfig) *BinanceAdapter {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := binance.NewFuturesClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &BinanceAdapter{
		client:      client,
		instruments: newInstrumentBook(cfg.Instruments),
	}
}

// GetCandles returns klines oldest first. Candle times are the kline open time in UTC.
func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		c := domain.Candle{Time: time.UnixMilli(k.OpenTime).UTC()}
		if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
			return nil, fmt.Errorf("binance kline open %q: %w", k.Open, err)
		}
		if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
			return nil, fmt.Errorf("binance kline high %q: %w", k.High, err)
		}
		if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
			return nil, fmt.Errorf("binance kline low %q: %w", k.Low, err)
		}
		if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
			return nil, fmt.Errorf("binance kline close %q: %w", k.Close, err)
		}
		c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, c)
	}
	return candles, nil
}

func (b *BinanceAdapter) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderHandle, error) {
	openSide, _ := orderSides(side)
	qty := b.instruments.quantity(symbol, quantity)

	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(openSide)).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("binance market order %s: %w", symbol, err)
	}
	h := toHandle(res, domain.OrderKindMarket)
	h.Quantity = qty.InexactFloat64()
	return h, nil
}

func (b *BinanceAdapter) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, stopPrice float64) (domain.OrderHandle, error) {
	return b.placeClosingTrigger(ctx, symbol, side, futures.OrderTypeStopMarket, domain.OrderKindStop, stopPrice)
}

func (b *BinanceAdapter) PlaceTargetOrder(ctx context.Context, symbol string, side domain.Side, targetPrice float64) (domain.OrderHandle, error) {
	return b.placeClosingTrigger(ctx, symbol, side, futures.OrderTypeTakeProfitMarket, domain.OrderKindTarget, targetPrice)
}

// placeClosingTrigger submits a close-position trigger order on the side
// opposite to the position.
func (b *BinanceAdapter) placeClosingTrigger(ctx context.Context, symbol string, side domain.Side, orderType futures.OrderType, kind domain.OrderKind, trigger float64) (domain.OrderHandle, error) {
	_, closeSide := orderSides(side)
	price := b.instruments.price(symbol, trigger)

	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(closeSide)).
		Type(orderType).
		StopPrice(price.StringFixed(b.instruments.get(symbol).PriceScale)).
		ClosePosition(true).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("binance %s %s: %w", orderType, symbol, err)
	}
	h := toHandle(res, kind)
	h.StopPrice = price.InexactFloat64()
	return h, nil
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance order id %q: %w", orderID, err)
	}
	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("binance cancel %s/%s: %w", symbol, orderID, err)
	}
	return nil
}

func (b *BinanceAdapter) GetBalance(ctx context.Context, asset string) (float64, error) {
	balances, err := b.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance balance: %w", err)
	}
	for _, bal := range balances {
		if bal.Asset == asset {
			return strconv.ParseFloat(bal.Balance, 64)
		}
	}
	return 0, fmt.Errorf("binance balance: asset %s not found", asset)
}

func (b *BinanceAdapter) GetPositionAmount(ctx context.Context, symbol string) (float64, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance position risk %s: %w", symbol, err)
	}
	var total float64
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil {
			return 0, fmt.Errorf("binance position amount %q: %w", r.PositionAmt, err)
		}
		total += amt
	}
	return total, nil
}

func toHandle(res *futures.CreateOrderResponse, kind domain.OrderKind) domain.OrderHandle {
	created := time.Now()
	if res.UpdateTime > 0 {
		created = time.UnixMilli(res.UpdateTime)
	}
	return domain.OrderHandle{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Kind:          kind,
		Side:          string(res.Side),
		CreatedAt:     created,
	}
}

var _ domain.Exchange = (*BinanceAdapter)(nil)
