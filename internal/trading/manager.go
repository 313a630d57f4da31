// Package trading composes the bot: it authorizes configured tuples, builds
// runners over shared infrastructure, and owns the per-account submission
// locks that serialize all order traffic for an account across runners and
// cancel-all.
package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/dex"
	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/internal/executor"
	"github.com/bensig/golibre/internal/ledger"
	"github.com/bensig/golibre/internal/market"
	"github.com/bensig/golibre/internal/permission"
	"github.com/bensig/golibre/internal/pricefeed"
	"github.com/bensig/golibre/internal/runner"
	"github.com/bensig/golibre/internal/strategy"
	"github.com/bensig/golibre/pkg/config"
	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "trading")

// Manager wires and supervises the runner fleet.
type Manager struct {
	cfg   *config.Config
	gw    *dex.Gateway
	led   *ledger.Ledger
	exec  *executor.Executor
	guard *permission.Guard

	mu        sync.Mutex
	locks     map[string]*sync.Mutex // account -> submission lock
	providers map[string]*market.SnapshotProvider
	feeds     map[string]pricefeed.Source
	runners   map[string]*runner.Runner
}

func NewManager(cfg *config.Config, gw *dex.Gateway, led *ledger.Ledger, exec *executor.Executor) *Manager {
	return &Manager{
		cfg:       cfg,
		gw:        gw,
		led:       led,
		exec:      exec,
		guard:     permission.NewGuard(cfg.Accounts),
		locks:     make(map[string]*sync.Mutex),
		providers: make(map[string]*market.SnapshotProvider),
		feeds:     make(map[string]pricefeed.Source),
		runners:   make(map[string]*runner.Runner),
	}
}

// StartGroup starts every tuple of a configured strategy group. Denied or
// misconfigured tuples are logged and skipped; the rest start. It returns an
// error only when the group is unknown or nothing could be started.
func (m *Manager) StartGroup(ctx context.Context, name string) error {
	group, ok := m.cfg.Group(name)
	if !ok {
		return fmt.Errorf("unknown strategy group %q", name)
	}

	started := 0
	for _, t := range group.Tuples {
		if err := m.startTuple(ctx, t); err != nil {
			log.Warnf("skipping %s/%s/%s: %v", t.Account, t.Strategy, t.Pair, err)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("group %q: no runner could be started", name)
	}
	log.Infof("group %q: started %d of %d runners", name, started, len(group.Tuples))
	return nil
}

func (m *Manager) startTuple(ctx context.Context, t config.TupleConfig) error {
	if err := m.guard.Authorize(t.Account, t.Strategy, t.Pair); err != nil {
		return err
	}
	account, _ := m.cfg.Account(t.Account)
	pair, ok := m.cfg.Pair(t.Pair)
	if !ok {
		return fmt.Errorf("unknown pair %q", t.Pair)
	}

	params, err := strategy.ParseParams(account.ParametersFor(t.Strategy))
	if err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	gen, err := strategy.New(t.Strategy, params)
	if err != nil {
		return err
	}
	provider, err := m.providerFor(ctx, pair)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r := runner.New(account, pair, gen, params, provider, m.led, m.exec,
		m.cfg.Runner, m.lockForLocked(t.Account))
	if _, exists := m.runners[r.Name()]; exists {
		return fmt.Errorf("runner %s already running", r.Name())
	}
	m.runners[r.Name()] = r
	go r.Run(ctx)
	return nil
}

// providerFor returns the snapshot provider for a pair, building it and its
// configured price feed on first use. Feeds are started eagerly so streaming
// sources warm up before the first cycle.
func (m *Manager) providerFor(ctx context.Context, pair domain.TradingPair) (*market.SnapshotProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[pair.Symbol()]; ok {
		return p, nil
	}

	var feed pricefeed.Source
	if fc, ok := m.cfg.PriceFeeds[pair.Symbol()]; ok {
		var err error
		feed, err = pricefeed.New(pricefeed.Config{
			Kind:   fc.Source,
			Symbol: fc.ReferenceSymbol,
			Price:  fc.Price,
		})
		if err != nil {
			return nil, fmt.Errorf("price feed for %s: %w", pair.Symbol(), err)
		}
		if err := feed.Start(ctx); err != nil {
			return nil, fmt.Errorf("start price feed for %s: %w", pair.Symbol(), err)
		}
		m.feeds[pair.Symbol()] = feed
	}

	p := market.NewProvider(m.gw, feed)
	m.providers[pair.Symbol()] = p
	return p, nil
}

// lockForLocked returns the account's submission lock; m.mu must be held.
func (m *Manager) lockForLocked(account string) *sync.Mutex {
	l, ok := m.locks[account]
	if !ok {
		l = &sync.Mutex{}
		m.locks[account] = l
	}
	return l
}

// CancelAll cancels every resting order for an account, optionally limited to
// one pair symbol. It refreshes the ledger from the exchange first so orders
// placed outside this process are cancelled too, then submits an empty
// desired set under the account's submission lock.
func (m *Manager) CancelAll(ctx context.Context, accountName, pairSymbol string) error {
	if _, ok := m.cfg.Account(accountName); !ok {
		return fmt.Errorf("unknown account %q", accountName)
	}

	var pairs []domain.TradingPair
	if pairSymbol != "" {
		pair, ok := m.cfg.Pair(pairSymbol)
		if !ok {
			return fmt.Errorf("unknown pair %q", pairSymbol)
		}
		pairs = []domain.TradingPair{pair}
	} else {
		pairs = m.cfg.Pairs
	}

	m.mu.Lock()
	lock := m.lockForLocked(accountName)
	m.mu.Unlock()

	// Success means every submitted cancellation was acknowledged by the
	// exchange: an operation whose outcome is unknown is not acknowledged,
	// and each failure is reported per order.
	var opErrs []error
	for _, pair := range pairs {
		rows, _, err := m.gw.FetchOrderBook(ctx, pair)
		if err != nil {
			return fmt.Errorf("fetch order book for %s: %w", pair.Symbol(), err)
		}
		var observed []ledger.ObservedOrder
		for _, row := range rows {
			if row.Account != accountName {
				continue
			}
			obs, err := observedFromRow(row)
			if err != nil {
				log.Warnf("skipping unparseable order %d: %v", row.Identifier, err)
				continue
			}
			observed = append(observed, obs)
		}

		lock.Lock()
		m.led.Reconcile(accountName, pair, observed)
		diff := m.led.ComputeDiff(accountName, pair, nil, decimal.Zero)
		res := m.exec.Submit(ctx, accountName, diff)
		lock.Unlock()

		log.Infof("cancel-all %s %s: cancelled=%d unknown=%d errors=%d",
			accountName, pair.Symbol(), len(res.Cancelled), len(res.Unknown), len(res.Errors))
		for _, oe := range res.Errors {
			opErrs = append(opErrs, oe)
		}
		for _, e := range res.Unknown {
			opErrs = append(opErrs, fmt.Errorf("cancel order %d (%s %s @ %s): outcome unknown, not acknowledged",
				e.OrderID, e.Side, e.Quantity, e.Price))
		}
	}
	return errors.Join(opErrs...)
}

func observedFromRow(row dex.OrderBookRow) (ledger.ObservedOrder, error) {
	price, err := decimal.NewFromString(row.Price.String())
	if err != nil {
		return ledger.ObservedOrder{}, fmt.Errorf("price %q: %w", row.Price, err)
	}
	qty, err := decimal.NewFromString(row.Quantity.String())
	if err != nil {
		return ledger.ObservedOrder{}, fmt.Errorf("quantity %q: %w", row.Quantity, err)
	}
	side := domain.SideSell
	if row.OrderType == "bid" {
		side = domain.SideBuy
	}
	return ledger.ObservedOrder{OrderID: row.Identifier, Side: side, Price: price, Quantity: qty}, nil
}

// Stop stops all runners cooperatively, waits for them bounded by ctx, then
// shuts down price feeds.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	runners := make([]*runner.Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	feeds := make([]pricefeed.Source, 0, len(m.feeds))
	for _, f := range m.feeds {
		feeds = append(feeds, f)
	}
	m.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
	for _, r := range runners {
		select {
		case <-r.Done():
		case <-ctx.Done():
			log.Warnf("gave up waiting for runner %s", r.Name())
		}
	}
	for _, f := range feeds {
		if err := f.Stop(ctx); err != nil {
			log.Warnf("stopping price feed: %v", err)
		}
	}
	log.Infof("stopped %d runners", len(runners))
}

// Statuses returns a status snapshot for every runner.
func (m *Manager) Statuses() []runner.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]runner.Status, 0, len(m.runners))
	for _, r := range m.runners {
		out = append(out, r.Status())
	}
	return out
}

// RunnerStatus looks up one runner by its "account:pair:strategy" name.
func (m *Manager) RunnerStatus(name string) (runner.Status, bool) {
	m.mu.Lock()
	r, ok := m.runners[name]
	m.mu.Unlock()
	if !ok {
		return runner.Status{}, false
	}
	return r.Status(), true
}
