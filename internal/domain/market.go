package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair is a base/quote token combination tradable on the DEX.
//
// Precision must match the token contract's precision exactly; the chain
// rejects transfers whose quantity string carries the wrong number of
// fractional digits ("symbol precision mismatch").
type TradingPair struct {
	BaseSymbol    string `yaml:"base"`
	QuoteSymbol   string `yaml:"quote"`
	BaseContract  string `yaml:"base_contract"`
	QuoteContract string `yaml:"quote_contract"`
	BasePrecision int32  `yaml:"base_precision"`
	QuotePrecision int32 `yaml:"quote_precision"`
	// PricePrecision is the number of fractional digits used when rounding
	// and rendering prices. The DEX memo format uses 10.
	PricePrecision int32 `yaml:"price_precision"`
}

// Symbol returns the canonical "BASE/QUOTE" form.
func (p TradingPair) Symbol() string {
	return p.BaseSymbol + "/" + p.QuoteSymbol
}

// Scope is the DEX table scope for the pair, e.g. "btcusdt".
func (p TradingPair) Scope() string {
	return strings.ToLower(p.BaseSymbol + p.QuoteSymbol)
}

// QuantityString renders a base-asset quantity at the pair's base precision,
// e.g. "100.00000000 BTC".
func (p TradingPair) QuantityString(q decimal.Decimal) string {
	return fmt.Sprintf("%s %s", q.StringFixed(p.BasePrecision), p.BaseSymbol)
}

// RoundPrice quantizes a price to the pair's price precision.
func (p TradingPair) RoundPrice(price decimal.Decimal) decimal.Decimal {
	prec := p.PricePrecision
	if prec <= 0 {
		prec = 10
	}
	return price.Round(prec)
}

// PriceLevel is one row of the normalized order book.
type PriceLevel struct {
	OrderID  uint64
	Account  string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// MarketSnapshot is a point-in-time normalized view of the order book plus an
// optional external reference price. It is an immutable value: providers build
// a fresh snapshot each poll and never mutate a published one.
type MarketSnapshot struct {
	Pair      TradingPair
	Timestamp time.Time
	// Bids sorted by price descending, Asks ascending; ties keep the
	// exchange's row order.
	Bids []PriceLevel
	Asks []PriceLevel
	// ReferencePrice is set only when an external feed contributed a price.
	ReferencePrice *decimal.Decimal
}

// BestBid returns the highest bid, if any.
func (s *MarketSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (s *MarketSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Midpoint returns the best bid/ask midpoint. ok is false when either side of
// the book is empty.
func (s *MarketSnapshot) Midpoint() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// OwnOrders returns the snapshot levels owned by account, both sides.
func (s *MarketSnapshot) OwnOrders(account string) []PriceLevel {
	var own []PriceLevel
	for _, lvl := range s.Bids {
		if lvl.Account == account {
			own = append(own, lvl)
		}
	}
	for _, lvl := range s.Asks {
		if lvl.Account == account {
			own = append(own, lvl)
		}
	}
	return own
}
