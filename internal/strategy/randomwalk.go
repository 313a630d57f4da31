package strategy

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/domain"
)

// RandomWalkName identifies the random-walk market simulation strategy.
const RandomWalkName = "RandomWalk"

func init() {
	Register(RandomWalkName, func(params Params) Generator {
		return &RandomWalk{rng: rand.New(rand.NewSource(params.Seed))}
	})
}

// RandomWalk quotes a single bid/ask around a price that wanders a bounded
// random step each cycle. The previous center comes in through
// Params.CurrentPrice and the caller stores the new center back, so the
// generator carries no price state of its own; the RNG is the only thing it
// owns, seeded once for reproducible runs.
type RandomWalk struct {
	rng *rand.Rand
}

func (s *RandomWalk) Name() string         { return RandomWalkName }
func (s *RandomWalk) NeedsReference() bool { return false }

func (s *RandomWalk) Generate(snap *domain.MarketSnapshot, params Params, _ LedgerView) ([]domain.DesiredOrder, error) {
	center := params.CurrentPrice
	if center.LessThanOrEqual(decimal.Zero) {
		if snap.ReferencePrice == nil {
			return nil, signalErrf(RandomWalkName, "no previous center and no reference price")
		}
		center = *snap.ReferencePrice
	}

	direction := decimal.NewFromInt(1)
	if s.rng.Intn(2) == 0 {
		direction = decimal.NewFromInt(-1)
	}
	span := params.MaxChangePercent.Sub(params.MinChangePercent)
	step := params.MinChangePercent.Add(span.Mul(decimal.NewFromFloat(s.rng.Float64())))
	next := center.Mul(decimal.NewFromInt(1).Add(direction.Mul(step)))

	// Clamp drift to the configured band around the anchor so the walk
	// cannot leave the range over successive cycles.
	if params.AnchorPrice.GreaterThan(decimal.Zero) && params.MaxDeviationPercent.GreaterThan(decimal.Zero) {
		lo := params.AnchorPrice.Mul(decimal.NewFromInt(1).Sub(params.MaxDeviationPercent))
		hi := params.AnchorPrice.Mul(decimal.NewFromInt(1).Add(params.MaxDeviationPercent))
		if next.LessThan(lo) {
			next = lo
		}
		if next.GreaterThan(hi) {
			next = hi
		}
	}
	if next.LessThanOrEqual(decimal.Zero) {
		return nil, signalErrf(RandomWalkName, "computed non-positive center %s", next)
	}

	half := params.SpreadPercent.Div(decimal.NewFromInt(2))
	bid := snap.Pair.RoundPrice(next.Mul(decimal.NewFromInt(1).Sub(half)))
	ask := snap.Pair.RoundPrice(next.Mul(decimal.NewFromInt(1).Add(half)))

	return []domain.DesiredOrder{
		{Pair: snap.Pair, Side: domain.SideBuy, Price: bid, Quantity: params.Quantity},
		{Pair: snap.Pair, Side: domain.SideSell, Price: ask, Quantity: params.Quantity},
	}, nil
}
