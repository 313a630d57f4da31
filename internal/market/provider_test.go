package market

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/chain"
	"github.com/bensig/golibre/internal/dex"
	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/internal/pricefeed"
)

func testPair() domain.TradingPair {
	return domain.TradingPair{
		BaseSymbol:     "BTC",
		QuoteSymbol:    "USDT",
		BasePrecision:  8,
		QuotePrecision: 8,
		PricePrecision: 2,
	}
}

type fakeBook struct {
	rows      []dex.OrderBookRow
	malformed int
	err       error
}

func (f *fakeBook) FetchOrderBook(context.Context, domain.TradingPair) ([]dex.OrderBookRow, int, error) {
	return f.rows, f.malformed, f.err
}

func row(id uint64, account, price, qty, orderType string) dex.OrderBookRow {
	return dex.OrderBookRow{
		Identifier: id,
		Account:    account,
		Price:      json.Number(price),
		Quantity:   json.Number(qty),
		OrderType:  orderType,
	}
}

func TestFetchNormalizesAndSortsBook(t *testing.T) {
	book := &fakeBook{rows: []dex.OrderBookRow{
		row(1, "alice", "99", "1", "bid"),
		row(2, "bob", "101", "1", "bid"),
		row(3, "alice", "110", "1", "offer"),
		row(4, "bob", "105", "1", "offer"),
		row(5, "bob", "bogus", "1", "bid"), // dropped, not fatal
	}}
	p := NewProvider(book, nil)

	snap, err := p.Fetch(context.Background(), testPair(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("levels: bids=%d asks=%d want 2/2", len(snap.Bids), len(snap.Asks))
	}
	if best, _ := snap.BestBid(); best.OrderID != 2 {
		t.Fatalf("best bid: got order %d want 2", best.OrderID)
	}
	if best, _ := snap.BestAsk(); best.OrderID != 4 {
		t.Fatalf("best ask: got order %d want 4", best.OrderID)
	}
	mid, ok := snap.Midpoint()
	if !ok || !mid.Equal(decimal.RequireFromString("103")) {
		t.Fatalf("midpoint: got=%s ok=%v want 103", mid, ok)
	}
	if snap.ReferencePrice != nil {
		t.Fatal("reference price set without a feed")
	}
}

func TestFetchExchangeUnavailableIsTransient(t *testing.T) {
	book := &fakeBook{err: errors.Wrap(chain.ErrUnavailable, "connection refused")}
	p := NewProvider(book, nil)

	_, err := p.Fetch(context.Background(), testPair(), false)
	se, ok := AsSnapshotError(err)
	if !ok || se.Kind != KindExchangeUnavailable {
		t.Fatalf("error: got=%v want exchange_unavailable", err)
	}
	if !se.IsTransient() {
		t.Fatal("exchange_unavailable must be transient")
	}
}

func TestFetchAllRowsMalformedFails(t *testing.T) {
	book := &fakeBook{rows: []dex.OrderBookRow{
		row(1, "alice", "bogus", "1", "bid"),
		row(2, "alice", "100", "bogus", "offer"),
	}}
	p := NewProvider(book, nil)

	_, err := p.Fetch(context.Background(), testPair(), false)
	se, ok := AsSnapshotError(err)
	if !ok || se.Kind != KindMalformedRows {
		t.Fatalf("error: got=%v want malformed_rows", err)
	}
	if se.IsTransient() {
		t.Fatal("malformed_rows must not be transient")
	}
}

func TestFetchEmptyBookIsValid(t *testing.T) {
	p := NewProvider(&fakeBook{}, nil)
	snap, err := p.Fetch(context.Background(), testPair(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := snap.Midpoint(); ok {
		t.Fatal("empty book must have no midpoint")
	}
}

func TestFetchReferencePriceHandling(t *testing.T) {
	book := &fakeBook{rows: []dex.OrderBookRow{row(1, "alice", "100", "1", "bid")}}

	// No feed configured but the strategy requires one.
	p := NewProvider(book, nil)
	_, err := p.Fetch(context.Background(), testPair(), true)
	if se, ok := AsSnapshotError(err); !ok || se.Kind != KindExternalFeedUnavailable {
		t.Fatalf("error: got=%v want external_feed_unavailable", err)
	}

	// Feed present: the snapshot carries its price.
	feed := pricefeed.NewFixedSource(decimal.RequireFromString("50000"))
	p = NewProvider(book, feed)
	snap, err := p.Fetch(context.Background(), testPair(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ReferencePrice == nil || !snap.ReferencePrice.Equal(decimal.RequireFromString("50000")) {
		t.Fatalf("reference price: got=%v want 50000", snap.ReferencePrice)
	}
}

func TestFetchOwnOrders(t *testing.T) {
	book := &fakeBook{rows: []dex.OrderBookRow{
		row(1, "alice", "99", "1", "bid"),
		row(2, "bob", "100", "1", "bid"),
		row(3, "alice", "110", "1", "offer"),
	}}
	p := NewProvider(book, nil)
	snap, err := p.Fetch(context.Background(), testPair(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	own := snap.OwnOrders("alice")
	if len(own) != 2 {
		t.Fatalf("own orders: got=%d want=2", len(own))
	}
}
