package strategy

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Params are the parsed strategy parameters for one runner. A runner owns its
// copy: CurrentPrice is drift state the runner writes back after each cycle so
// the generators themselves stay stateless.
type Params struct {
	// Quantity is the base-asset order size.
	Quantity decimal.Decimal
	// SpreadPercent: RandomWalk/MarketRate treat it as the full spread
	// fraction (0.02 = 2% between bid and ask); OrderBookFiller treats it
	// as the per-side offset in percent of the midpoint (0.02 = 0.02%).
	SpreadPercent decimal.Decimal
	// MinChangePercent/MaxChangePercent bound the RandomWalk step fraction.
	MinChangePercent decimal.Decimal
	MaxChangePercent decimal.Decimal
	// MaxDeviationPercent bounds RandomWalk drift around AnchorPrice.
	MaxDeviationPercent decimal.Decimal
	// AnchorPrice is the fixed band center for RandomWalk (first reference).
	AnchorPrice decimal.Decimal
	// CurrentPrice is the walk's previous center, updated by the caller.
	CurrentPrice decimal.Decimal
	// PriceTolerance is the "close enough" fraction for treating an
	// existing order as equivalent to a desired one (0 = exact).
	PriceTolerance decimal.Decimal
	// NumOrders is how many price levels OrderBookFiller quotes per side.
	NumOrders int
	// MinOrderSize is the smallest per-order quantity OrderBookFiller may
	// emit when splitting Quantity across levels.
	MinOrderSize decimal.Decimal
	// Seed seeds strategy randomness.
	Seed int64
}

// ParseParams converts the string map from account configuration.
// Unknown keys are ignored so accounts can share one parameter block across
// strategies.
func ParseParams(raw map[string]string) (Params, error) {
	p := Params{
		Quantity:      decimal.RequireFromString("1"),
		SpreadPercent: decimal.RequireFromString("0.02"),
	}
	dec := func(key string, dst *decimal.Decimal) error {
		s, ok := raw[key]
		if !ok || s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parameter %s=%q: %w", key, s, err)
		}
		*dst = d
		return nil
	}
	for key, dst := range map[string]*decimal.Decimal{
		"quantity":                 &p.Quantity,
		"spread_percentage":        &p.SpreadPercent,
		"min_change_percentage":    &p.MinChangePercent,
		"max_change_percentage":    &p.MaxChangePercent,
		"max_deviation_percentage": &p.MaxDeviationPercent,
		"anchor_price":             &p.AnchorPrice,
		"current_price":            &p.CurrentPrice,
		"price_tolerance":          &p.PriceTolerance,
		"min_order_size":           &p.MinOrderSize,
	} {
		if err := dec(key, dst); err != nil {
			return Params{}, err
		}
	}
	if s, ok := raw["seed"]; ok && s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Params{}, fmt.Errorf("parameter seed=%q: %w", s, err)
		}
		p.Seed = seed
	}
	p.NumOrders = 1
	if s, ok := raw["num_orders"]; ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return Params{}, fmt.Errorf("parameter num_orders=%q: must be a positive integer", s)
		}
		p.NumOrders = n
	}
	if p.Quantity.LessThanOrEqual(decimal.Zero) {
		return Params{}, fmt.Errorf("quantity must be positive, got %s", p.Quantity)
	}
	if p.SpreadPercent.LessThan(decimal.Zero) {
		return Params{}, fmt.Errorf("spread_percentage must not be negative, got %s", p.SpreadPercent)
	}
	if p.NumOrders > 1 {
		per := p.Quantity.Div(decimal.NewFromInt(int64(p.NumOrders)))
		if per.LessThan(p.MinOrderSize) {
			return Params{}, fmt.Errorf("quantity %s split across %d orders falls below min_order_size %s",
				p.Quantity, p.NumOrders, p.MinOrderSize)
		}
	}
	return p, nil
}
