// Package market normalizes raw DEX order-book rows and external feed reads
// into immutable MarketSnapshot values.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/dex"
	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/internal/pricefeed"
	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "market")

// ErrorKind classifies snapshot failures.
type ErrorKind string

const (
	// KindExchangeUnavailable: transient; caller retries with backoff.
	KindExchangeUnavailable ErrorKind = "exchange_unavailable"
	// KindMalformedRows: every returned row failed to parse.
	KindMalformedRows ErrorKind = "malformed_rows"
	// KindExternalFeedUnavailable: the required reference price is missing.
	KindExternalFeedUnavailable ErrorKind = "external_feed_unavailable"
)

// SnapshotError is a failed snapshot fetch.
type SnapshotError struct {
	Kind  ErrorKind
	Cause error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Kind, e.Cause)
}

func (e *SnapshotError) Unwrap() error { return e.Cause }

// IsTransient reports whether the failure should be retried within the cycle.
func (e *SnapshotError) IsTransient() bool {
	return e.Kind == KindExchangeUnavailable
}

// AsSnapshotError unwraps err into a *SnapshotError if possible.
func AsSnapshotError(err error) (*SnapshotError, bool) {
	var se *SnapshotError
	ok := errors.As(err, &se)
	return se, ok
}

// BookSource provides raw order-book rows; satisfied by *dex.Gateway.
type BookSource interface {
	FetchOrderBook(ctx context.Context, pair domain.TradingPair) ([]dex.OrderBookRow, int, error)
}

// SnapshotProvider fetches and normalizes snapshots for one pair, optionally
// decorated with an external reference price.
type SnapshotProvider struct {
	src  BookSource
	feed pricefeed.Source // nil: no external reference configured
}

// NewProvider wires a provider from a book source and an optional feed.
func NewProvider(src BookSource, feed pricefeed.Source) *SnapshotProvider {
	return &SnapshotProvider{src: src, feed: feed}
}

// Fetch builds a fresh snapshot. needReference marks strategies that cannot
// run without the external price; for the rest a dead feed just leaves
// ReferencePrice unset.
func (p *SnapshotProvider) Fetch(ctx context.Context, pair domain.TradingPair, needReference bool) (*domain.MarketSnapshot, error) {
	rows, malformed, err := p.src.FetchOrderBook(ctx, pair)
	if err != nil {
		return nil, &SnapshotError{Kind: KindExchangeUnavailable, Cause: err}
	}

	bids, asks, dropped := normalizeRows(pair, rows)
	malformed += dropped
	if malformed > 0 && len(bids)+len(asks) == 0 {
		return nil, &SnapshotError{
			Kind:  KindMalformedRows,
			Cause: fmt.Errorf("%d rows dropped, none parseable", malformed),
		}
	}

	snap := &domain.MarketSnapshot{
		Pair:      pair,
		Timestamp: time.Now(),
		Bids:      bids,
		Asks:      asks,
	}

	if p.feed != nil {
		ref, err := p.feed.GetPrice(ctx)
		switch {
		case err == nil:
			snap.ReferencePrice = &ref
		case needReference:
			return nil, &SnapshotError{Kind: KindExternalFeedUnavailable, Cause: err}
		default:
			log.Debugf("reference price unavailable for %s, proceeding without: %v", pair.Symbol(), err)
		}
	} else if needReference {
		return nil, &SnapshotError{
			Kind:  KindExternalFeedUnavailable,
			Cause: fmt.Errorf("no price feed configured for %s", pair.Symbol()),
		}
	}

	return snap, nil
}

// normalizeRows parses raw rows into levels: bids sorted by price descending,
// asks ascending, exchange row order preserved on equal prices. Rows with
// unparseable numbers are dropped and counted.
func normalizeRows(pair domain.TradingPair, rows []dex.OrderBookRow) (bids, asks []domain.PriceLevel, dropped int) {
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Price.String())
		if err != nil {
			dropped++
			log.Warnf("dropping row %d for %s: bad price %q", row.Identifier, pair.Symbol(), row.Price)
			continue
		}
		qty, err := decimal.NewFromString(row.Quantity.String())
		if err != nil {
			dropped++
			log.Warnf("dropping row %d for %s: bad quantity %q", row.Identifier, pair.Symbol(), row.Quantity)
			continue
		}
		lvl := domain.PriceLevel{
			OrderID:  row.Identifier,
			Account:  row.Account,
			Price:    price,
			Quantity: qty,
		}
		switch row.OrderType {
		case "bid":
			bids = append(bids, lvl)
		case "offer":
			asks = append(asks, lvl)
		default:
			dropped++
			log.Warnf("dropping row %d for %s: unknown order_type %q", row.Identifier, pair.Symbol(), row.OrderType)
		}
	}

	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	return bids, asks, dropped
}
