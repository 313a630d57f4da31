package dex

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/chain"
	"github.com/bensig/golibre/internal/domain"
)

type fakeChain struct {
	rows    []json.RawMessage
	actions []chain.Action
	actors  []string
}

func (f *fakeChain) GetTable(context.Context, chain.TableQuery) ([]json.RawMessage, error) {
	return f.rows, nil
}

func (f *fakeChain) SubmitTransaction(_ context.Context, action chain.Action, actor string) (string, error) {
	f.actions = append(f.actions, action)
	f.actors = append(f.actors, actor)
	return "txid", nil
}

func testPair() domain.TradingPair {
	return domain.TradingPair{
		BaseSymbol:     "BTC",
		QuoteSymbol:    "USDT",
		BaseContract:   "btc.ptokens",
		QuoteContract:  "usdt.ptokens",
		BasePrecision:  8,
		QuotePrecision: 8,
		PricePrecision: 2,
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaceBuyEscrowsQuoteValue(t *testing.T) {
	fc := &fakeChain{}
	g := NewGateway(fc, "dex.libre")

	_, err := g.PlaceOrder(context.Background(), "alice", testPair(), domain.SideBuy, d("0.1"), d("50000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.actions) != 1 {
		t.Fatalf("actions: got=%d want=1", len(fc.actions))
	}
	a := fc.actions[0]
	if a.Contract != "usdt.ptokens" || a.Name != "transfer" {
		t.Fatalf("action: %s::%s, want usdt.ptokens::transfer", a.Contract, a.Name)
	}
	data := a.Data.(map[string]string)
	if data["from"] != "alice" || data["to"] != "dex.libre" {
		t.Fatalf("transfer endpoints: from=%s to=%s", data["from"], data["to"])
	}
	// A buy of 0.1 BTC at 50000 escrows 5000 USDT.
	if data["quantity"] != "5000.00000000 USDT" {
		t.Fatalf("quantity: got=%q want=%q", data["quantity"], "5000.00000000 USDT")
	}
	if data["memo"] != "buy:0.10000000 BTC:50000.0000000000 USDT" {
		t.Fatalf("memo: got=%q", data["memo"])
	}
	if fc.actors[0] != "alice" {
		t.Fatalf("actor: got=%s want=alice", fc.actors[0])
	}
}

func TestPlaceSellEscrowsBaseAsset(t *testing.T) {
	fc := &fakeChain{}
	g := NewGateway(fc, "dex.libre")

	_, err := g.PlaceOrder(context.Background(), "alice", testPair(), domain.SideSell, d("0.1"), d("50000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := fc.actions[0]
	if a.Contract != "btc.ptokens" {
		t.Fatalf("contract: got=%s want=btc.ptokens", a.Contract)
	}
	data := a.Data.(map[string]string)
	if data["quantity"] != "0.10000000 BTC" {
		t.Fatalf("quantity: got=%q want=%q", data["quantity"], "0.10000000 BTC")
	}
	if data["memo"] != "sell:0.10000000 BTC:50000.0000000000 USDT" {
		t.Fatalf("memo: got=%q", data["memo"])
	}
}

func TestCancelOrderAction(t *testing.T) {
	fc := &fakeChain{}
	g := NewGateway(fc, "dex.libre")

	_, err := g.CancelOrder(context.Background(), "alice", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := fc.actions[0]
	if a.Contract != "dex.libre" || a.Name != "cancelorder" {
		t.Fatalf("action: %s::%s, want dex.libre::cancelorder", a.Contract, a.Name)
	}
	data := a.Data.(map[string]interface{})
	if data["owner"] != "alice" || data["order_id"] != uint64(42) {
		t.Fatalf("data: %+v", data)
	}
}

func TestFetchOrderBookCountsMalformedRows(t *testing.T) {
	fc := &fakeChain{rows: []json.RawMessage{
		json.RawMessage(`{"identifier":1,"account":"alice","price":"100.5","quantity":"2","order_type":"bid"}`),
		json.RawMessage(`{"identifier":2,"account":`), // truncated
		json.RawMessage(`{"identifier":3,"account":"bob","price":"101","quantity":"1","order_type":"offer"}`),
	}}
	g := NewGateway(fc, "")

	rows, malformed, err := g.FetchOrderBook(context.Background(), testPair())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || malformed != 1 {
		t.Fatalf("rows=%d malformed=%d, want 2/1", len(rows), malformed)
	}
	if rows[0].Identifier != 1 || rows[1].Identifier != 3 {
		t.Fatalf("row order not preserved: %+v", rows)
	}
}

func TestGatewayDefaultsContract(t *testing.T) {
	g := NewGateway(&fakeChain{}, "")
	if g.Contract() != "dex.libre" {
		t.Fatalf("contract: got=%s want=dex.libre", g.Contract())
	}
}
