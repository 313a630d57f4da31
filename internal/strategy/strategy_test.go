package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/domain"
)

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

func snapshot(pair domain.TradingPair, bestBid, bestAsk string) *domain.MarketSnapshot {
	snap := &domain.MarketSnapshot{Pair: pair, Timestamp: time.Now()}
	if bestBid != "" {
		snap.Bids = []domain.PriceLevel{{OrderID: 1, Account: "other", Price: d(bestBid), Quantity: d("1")}}
	}
	if bestAsk != "" {
		snap.Asks = []domain.PriceLevel{{OrderID: 2, Account: "other", Price: d(bestAsk), Quantity: d("1")}}
	}
	return snap
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRegistryKnowsAllStrategies(t *testing.T) {
	names := Names()
	want := []string{MarketRateName, OrderBookFillerName, RandomWalkName}
	if len(names) != len(want) {
		t.Fatalf("registered strategies: got=%v want=%v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("registered strategies: got=%v want=%v", names, want)
		}
	}
	if _, err := New("NoSuchStrategy", Params{}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestParseParamsDefaults(t *testing.T) {
	p, err := ParseParams(map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Quantity.Equal(d("1")) {
		t.Fatalf("quantity: got=%s want=1", p.Quantity)
	}
	if !p.SpreadPercent.Equal(d("0.02")) {
		t.Fatalf("spread: got=%s want=0.02", p.SpreadPercent)
	}
}

func TestParseParamsValues(t *testing.T) {
	p, err := ParseParams(map[string]string{
		"quantity":                 "0.5",
		"spread_percentage":        "0.01",
		"min_change_percentage":    "0.001",
		"max_change_percentage":    "0.002",
		"max_deviation_percentage": "0.05",
		"anchor_price":             "100",
		"price_tolerance":          "0.0001",
		"seed":                     "42",
		"some_future_key":          "ignored",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Quantity.Equal(d("0.5")) || !p.AnchorPrice.Equal(d("100")) || p.Seed != 42 {
		t.Fatalf("unexpected params: %+v", p)
	}
}

func TestParseParamsRejectsBadValues(t *testing.T) {
	cases := []map[string]string{
		{"quantity": "0"},
		{"quantity": "-1"},
		{"quantity": "abc"},
		{"spread_percentage": "-0.01"},
		{"seed": "notanumber"},
		{"num_orders": "0"},
		{"num_orders": "two"},
		{"quantity": "1", "num_orders": "4", "min_order_size": "0.5"},
	}
	for _, raw := range cases {
		if _, err := ParseParams(raw); err == nil {
			t.Fatalf("expected error for %v", raw)
		}
	}
}

func TestRandomWalkIsDeterministicPerSeed(t *testing.T) {
	params, err := ParseParams(map[string]string{
		"quantity":              "1",
		"spread_percentage":     "0.02",
		"min_change_percentage": "0.001",
		"max_change_percentage": "0.01",
		"current_price":         "100",
		"seed":                  "7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	genA, _ := New(RandomWalkName, params)
	genB, _ := New(RandomWalkName, params)
	snap := snapshot(testPair(), "99", "101")

	for i := 0; i < 5; i++ {
		a, errA := genA.Generate(snap, params, nil)
		b, errB := genB.Generate(snap, params, nil)
		if errA != nil || errB != nil {
			t.Fatalf("cycle %d: errA=%v errB=%v", i, errA, errB)
		}
		if len(a) != 2 || len(b) != 2 {
			t.Fatalf("cycle %d: got %d and %d orders, want 2 each", i, len(a), len(b))
		}
		for j := range a {
			if !a[j].Price.Equal(b[j].Price) {
				t.Fatalf("cycle %d order %d: prices diverged %s vs %s", i, j, a[j].Price, b[j].Price)
			}
		}
	}
}

func TestRandomWalkClampsToDeviationBand(t *testing.T) {
	params, err := ParseParams(map[string]string{
		"spread_percentage":        "0.02",
		"min_change_percentage":    "0.02",
		"max_change_percentage":    "0.02",
		"max_deviation_percentage": "0.05",
		"anchor_price":             "100",
		"current_price":            "104.9",
		"seed":                     "1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gen, _ := New(RandomWalkName, params)
	snap := snapshot(testPair(), "99", "101")

	// Whatever direction the walk takes, both quotes must stay inside the
	// band around the anchor widened by the half-spread.
	lo := d("95").Mul(d("0.99"))
	hi := d("105").Mul(d("1.01"))
	for i := 0; i < 20; i++ {
		orders, err := gen.Generate(snap, params, nil)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		for _, o := range orders {
			if o.Price.LessThan(lo) || o.Price.GreaterThan(hi) {
				t.Fatalf("cycle %d: price %s escaped band [%s, %s]", i, o.Price, lo, hi)
			}
		}
	}
}

func TestRandomWalkRequiresCenterOrReference(t *testing.T) {
	gen, _ := New(RandomWalkName, Params{Seed: 1})
	params, _ := ParseParams(nil)
	snap := snapshot(testPair(), "", "")

	if _, err := gen.Generate(snap, params, nil); err == nil {
		t.Fatal("expected error without center and reference")
	}

	ref := d("50000")
	snap.ReferencePrice = &ref
	orders, err := gen.Generate(snap, params, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders: got=%d want=2", len(orders))
	}
}

func TestOrderBookFillerQuotesAroundMidpoint(t *testing.T) {
	params, err := ParseParams(map[string]string{
		"quantity":          "0.1",
		"spread_percentage": "0.02",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gen, _ := New(OrderBookFillerName, params)
	snap := snapshot(testPair(), "50000", "50010")

	orders, err := gen.Generate(snap, params, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders: got=%d want=2", len(orders))
	}
	// mid 50005, 0.02% offset = 10.001, rounded to the pair's 2-digit prices.
	if !orders[0].Price.Equal(d("49995")) {
		t.Fatalf("buy price: got=%s want=49995", orders[0].Price)
	}
	if orders[0].Side != domain.SideBuy {
		t.Fatalf("first order side: got=%s want=buy", orders[0].Side)
	}
	if !orders[1].Price.Equal(d("50015")) {
		t.Fatalf("sell price: got=%s want=50015", orders[1].Price)
	}
	if !orders[0].Quantity.Equal(d("0.1")) {
		t.Fatalf("quantity: got=%s want=0.1", orders[0].Quantity)
	}
}

func TestOrderBookFillerSpreadsQuantityAcrossLevels(t *testing.T) {
	params, err := ParseParams(map[string]string{
		"quantity":          "0.4",
		"spread_percentage": "0.02",
		"num_orders":        "2",
		"min_order_size":    "0.1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gen, _ := New(OrderBookFillerName, params)
	snap := snapshot(testPair(), "50000", "50010")

	orders, err := gen.Generate(snap, params, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 4 {
		t.Fatalf("orders: got=%d want=4", len(orders))
	}
	// Levels step outward by one offset each: 49995/50015, then 49984.99(8)/50025.
	if !orders[0].Price.Equal(d("49995")) || !orders[1].Price.Equal(d("50015")) {
		t.Fatalf("first level: %s/%s", orders[0].Price, orders[1].Price)
	}
	if !orders[2].Price.LessThan(orders[0].Price) || !orders[3].Price.GreaterThan(orders[1].Price) {
		t.Fatalf("second level not outside the first: %s/%s", orders[2].Price, orders[3].Price)
	}
	for _, o := range orders {
		if !o.Quantity.Equal(d("0.2")) {
			t.Fatalf("quantity: got=%s want=0.2", o.Quantity)
		}
	}
}

func TestOrderBookFillerFallsBackToReference(t *testing.T) {
	params, _ := ParseParams(nil)
	gen, _ := New(OrderBookFillerName, params)

	snap := snapshot(testPair(), "50000", "") // one-sided book, no midpoint
	if _, err := gen.Generate(snap, params, nil); err == nil {
		t.Fatal("expected error with one-sided book and no reference")
	}

	ref := d("50000")
	snap.ReferencePrice = &ref
	orders, err := gen.Generate(snap, params, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders: got=%d want=2", len(orders))
	}
}

func TestMarketRateTracksReference(t *testing.T) {
	params, err := ParseParams(map[string]string{"spread_percentage": "0.02"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gen, _ := New(MarketRateName, params)
	if !gen.NeedsReference() {
		t.Fatal("MarketRate must require a reference price")
	}

	snap := snapshot(testPair(), "90", "110")
	if _, err := gen.Generate(snap, params, nil); err == nil {
		t.Fatal("expected error without reference price")
	}

	ref := d("100")
	snap.ReferencePrice = &ref
	orders, err := gen.Generate(snap, params, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !orders[0].Price.Equal(d("99")) || !orders[1].Price.Equal(d("101")) {
		t.Fatalf("quotes: got=%s/%s want=99/101", orders[0].Price, orders[1].Price)
	}
}

func TestMarketRateDropsSelfCrossingQuotes(t *testing.T) {
	params, _ := ParseParams(map[string]string{"spread_percentage": "0.02"})
	gen, _ := New(MarketRateName, params)
	snap := snapshot(testPair(), "90", "110")
	ref := d("100")
	snap.ReferencePrice = &ref

	// Own resting sell at 98: the new bid at 99 would match it.
	ledger := LedgerView{{
		Account: "alice", Pair: testPair(), Side: domain.SideSell,
		Price: d("98"), Quantity: d("1"), Status: domain.StatusOpen,
	}}
	orders, err := gen.Generate(snap, params, ledger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders: got=%d want=1 (bid dropped)", len(orders))
	}
	if orders[0].Side != domain.SideSell {
		t.Fatalf("surviving order side: got=%s want=sell", orders[0].Side)
	}
}
