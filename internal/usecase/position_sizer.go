package usecase

import (
	"fmt"
	"math"

	"github.com/bimaindrawans/binance-algo/internal/domain"
)

type RiskParams struct {
	BaseRiskPercent   float64 `yaml:"base_risk_percent"`
	VolatilityScale   float64 `yaml:"volatility_scale"`
	MinQuantity       float64 `yaml:"min_quantity"`
	StopATRMultiple   float64 `yaml:"stop_atr_multiple"`
	TargetATRMultiple float64 `yaml:"target_atr_multiple"`
}

func DefaultRiskParams() RiskParams {
	return RiskParams{
		BaseRiskPercent:   0.05,
		VolatilityScale:   10.0,
		MinQuantity:       0.001,
		StopATRMultiple:   1.5,
		TargetATRMultiple: 2.0,
	}
}

// OrderPlan is a sized entry ready for the order gateway.
type OrderPlan struct {
	Symbol      string
	Side        domain.Side
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Quantity    float64
	ATR         float64
	RiskPercent float64
	RiskAmount  float64
}

type PositionSizer struct {
	params RiskParams
}

func NewPositionSizer(params RiskParams) *PositionSizer {
	return &PositionSizer{params: params}
}

// Size derives stop, target and quantity for an entry. The risk fraction
// shrinks as ATR grows relative to price.
func (s *PositionSizer) Size(symbol string, side domain.Side, entry, atr, effectiveMargin float64) (OrderPlan, error) {
	if entry <= 0 {
		return OrderPlan{}, fmt.Errorf("%s entry %.8f: %w", symbol, entry, domain.ErrSizingInfeasible)
	}

	plan := OrderPlan{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
		ATR:        atr,
	}
	stopOffset := s.params.StopATRMultiple * atr
	targetOffset := s.params.TargetATRMultiple * atr
	if side == domain.SideLong {
		plan.StopPrice = entry - stopOffset
		plan.TargetPrice = entry + targetOffset
	} else {
		plan.StopPrice = entry + stopOffset
		plan.TargetPrice = entry - targetOffset
	}

	stopDistance := math.Abs(entry - plan.StopPrice)
	if stopDistance == 0 {
		return OrderPlan{}, fmt.Errorf("%s zero stop distance: %w", symbol, domain.ErrSizingInfeasible)
	}

	plan.RiskPercent = s.params.BaseRiskPercent / (1 + s.params.VolatilityScale*(atr/entry))
	plan.RiskAmount = plan.RiskPercent * effectiveMargin
	plan.Quantity = math.Max(plan.RiskAmount/stopDistance, s.params.MinQuantity)
	return plan, nil
}
