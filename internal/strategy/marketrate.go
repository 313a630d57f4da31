package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/domain"
)

// MarketRateName identifies the external-price tracking strategy.
const MarketRateName = "MarketRate"

func init() {
	Register(MarketRateName, func(Params) Generator {
		return &MarketRate{}
	})
}

// MarketRate mirrors the external reference price with a configured spread.
// It ignores the on-chain book except for one check: a quote that would cross
// one of the account's own resting orders on the opposite side is dropped for
// the cycle, since matching against ourselves just burns fees.
type MarketRate struct{}

func (s *MarketRate) Name() string         { return MarketRateName }
func (s *MarketRate) NeedsReference() bool { return true }

func (s *MarketRate) Generate(snap *domain.MarketSnapshot, params Params, ledger LedgerView) ([]domain.DesiredOrder, error) {
	if snap.ReferencePrice == nil {
		return nil, signalErrf(MarketRateName, "reference price required but unset")
	}
	ref := *snap.ReferencePrice

	half := params.SpreadPercent.Div(decimal.NewFromInt(2))
	bid := snap.Pair.RoundPrice(ref.Mul(decimal.NewFromInt(1).Sub(half)))
	ask := snap.Pair.RoundPrice(ref.Mul(decimal.NewFromInt(1).Add(half)))
	if bid.LessThanOrEqual(decimal.Zero) {
		return nil, signalErrf(MarketRateName, "computed non-positive bid %s from reference %s", bid, ref)
	}

	var desired []domain.DesiredOrder
	if !wouldSelfCross(ledger, domain.SideBuy, bid) {
		desired = append(desired, domain.DesiredOrder{
			Pair: snap.Pair, Side: domain.SideBuy, Price: bid, Quantity: params.Quantity,
		})
	}
	if !wouldSelfCross(ledger, domain.SideSell, ask) {
		desired = append(desired, domain.DesiredOrder{
			Pair: snap.Pair, Side: domain.SideSell, Price: ask, Quantity: params.Quantity,
		})
	}
	return desired, nil
}

// wouldSelfCross reports whether placing an order at price on side would match
// one of the account's own live orders on the opposite side.
func wouldSelfCross(ledger LedgerView, side domain.Side, price decimal.Decimal) bool {
	for _, e := range ledger.LiveOnSide(side.Opposite()) {
		if side == domain.SideBuy && price.GreaterThanOrEqual(e.Price) {
			return true
		}
		if side == domain.SideSell && price.LessThanOrEqual(e.Price) {
			return true
		}
	}
	return false
}
