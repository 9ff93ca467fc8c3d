package domain

// Instrument carries the order precision used for a symbol.
type Instrument struct {
	Symbol        string `json:"symbol" yaml:"symbol"`
	PriceScale    int32  `json:"price_scale" yaml:"price_scale"`
	QuantityScale int32  `json:"quantity_scale" yaml:"quantity_scale"`
}

const (
	DefaultPriceScale    int32 = 2
	DefaultQuantityScale int32 = 6
)
