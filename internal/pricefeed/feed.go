// Package pricefeed provides external reference price sources. Strategies
// that track an off-chain market (MarketRate, RandomWalk anchoring) read one
// of these; pure order-book strategies run without one.
package pricefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "pricefeed")

// ErrUnavailable marks a feed that currently cannot produce a price.
// Fatal only to strategies that require the external reference.
var ErrUnavailable = errors.New("price feed unavailable")

// Source produces a current reference price for one symbol.
type Source interface {
	// GetPrice returns the current price or ErrUnavailable.
	GetPrice(ctx context.Context) (decimal.Decimal, error)
	// Start initializes the source (connections, warm-up).
	Start(ctx context.Context) error
	// Stop releases resources.
	Stop(ctx context.Context) error
}

// Config selects and parameterizes a source.
type Config struct {
	// Kind: "fixed", "binance" or "binance_ws".
	Kind string
	// Symbol is the upstream symbol for remote sources, e.g. "BTCUSDT".
	Symbol string
	// Price is the constant value for the fixed source.
	Price string
}

// New builds a source from config.
func New(cfg Config) (Source, error) {
	switch cfg.Kind {
	case "fixed":
		p, err := decimal.NewFromString(cfg.Price)
		if err != nil {
			return nil, fmt.Errorf("fixed price %q: %w", cfg.Price, err)
		}
		return &FixedSource{price: p}, nil
	case "binance":
		if cfg.Symbol == "" {
			return nil, fmt.Errorf("binance source requires a symbol")
		}
		return NewBinanceSource(cfg.Symbol), nil
	case "binance_ws":
		if cfg.Symbol == "" {
			return nil, fmt.Errorf("binance_ws source requires a symbol")
		}
		return NewBinanceStreamSource(cfg.Symbol), nil
	}
	return nil, fmt.Errorf("unknown price source kind %q", cfg.Kind)
}

// FixedSource returns a constant price. Useful for pairs without an external
// market and for tests.
type FixedSource struct {
	price decimal.Decimal
}

// NewFixedSource creates a source pinned to price.
func NewFixedSource(price decimal.Decimal) *FixedSource {
	return &FixedSource{price: price}
}

func (s *FixedSource) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	return s.price, nil
}

func (s *FixedSource) Start(ctx context.Context) error { return nil }
func (s *FixedSource) Stop(ctx context.Context) error  { return nil }
