package pricefeed

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinanceSource polls the Binance REST ticker endpoint.
type BinanceSource struct {
	api    *resty.Client
	symbol string
}

// NewBinanceSource creates a REST source for symbol (e.g. "BTCUSDT").
func NewBinanceSource(symbol string) *BinanceSource {
	api := resty.New().
		SetBaseURL("https://api.binance.com").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &BinanceSource{api: api, symbol: symbol}
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (s *BinanceSource) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	var ticker binanceTicker
	resp, err := s.api.R().
		SetContext(ctx).
		SetQueryParam("symbol", s.symbol).
		SetResult(&ticker).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrUnavailable, "binance %s: %v", s.symbol, err)
	}
	if resp.IsError() {
		return decimal.Zero, errors.Wrapf(ErrUnavailable, "binance %s: status %d", s.symbol, resp.StatusCode())
	}
	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrUnavailable, "binance %s: bad price %q", s.symbol, ticker.Price)
	}
	return price, nil
}

func (s *BinanceSource) Start(ctx context.Context) error { return nil }
func (s *BinanceSource) Stop(ctx context.Context) error  { return nil }
