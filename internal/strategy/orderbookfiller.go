package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/domain"
)

// OrderBookFillerName identifies the resting market-maker strategy.
const OrderBookFillerName = "OrderBookFiller"

func init() {
	Register(OrderBookFillerName, func(Params) Generator {
		return &OrderBookFiller{}
	})
}

// OrderBookFiller keeps NumOrders resting orders per side, stepped outward
// from the best bid/ask midpoint by multiples of the SpreadPercent offset
// (in percent of the midpoint). Quantity is split evenly across the levels so
// the desired set is the same every cycle while the market holds still; the
// ledger diff matches it against already-resting orders within
// PriceTolerance, so unchanged quotes produce no cancel/replace traffic.
type OrderBookFiller struct{}

func (s *OrderBookFiller) Name() string         { return OrderBookFillerName }
func (s *OrderBookFiller) NeedsReference() bool { return false }

func (s *OrderBookFiller) Generate(snap *domain.MarketSnapshot, params Params, _ LedgerView) ([]domain.DesiredOrder, error) {
	mid, ok := snap.Midpoint()
	if !ok {
		// Thin book: fall back to the external reference if we have one.
		if snap.ReferencePrice == nil {
			return nil, signalErrf(OrderBookFillerName, "order book empty on at least one side and no reference price")
		}
		mid = *snap.ReferencePrice
	}

	levels := params.NumOrders
	if levels < 1 {
		levels = 1
	}
	qty := params.Quantity.Div(decimal.NewFromInt(int64(levels)))
	qty = qty.RoundDown(snap.Pair.BasePrecision)
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, signalErrf(OrderBookFillerName, "quantity %s too small for %d levels at precision %d",
			params.Quantity, levels, snap.Pair.BasePrecision)
	}

	offset := mid.Mul(params.SpreadPercent).Div(decimal.NewFromInt(100))
	var desired []domain.DesiredOrder
	for i := 1; i <= levels; i++ {
		step := offset.Mul(decimal.NewFromInt(int64(i)))
		buyPrice := snap.Pair.RoundPrice(mid.Sub(step))
		if buyPrice.LessThanOrEqual(decimal.Zero) {
			return nil, signalErrf(OrderBookFillerName, "computed non-positive buy price %s", buyPrice)
		}
		desired = append(desired,
			domain.DesiredOrder{Pair: snap.Pair, Side: domain.SideBuy, Price: buyPrice, Quantity: qty},
			domain.DesiredOrder{Pair: snap.Pair, Side: domain.SideSell, Price: snap.Pair.RoundPrice(mid.Add(step)), Quantity: qty},
		)
	}
	return desired, nil
}
