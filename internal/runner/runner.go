// Package runner drives one (account, pair, strategy) loop: poll a market
// snapshot, reconcile the ledger, compute desired orders, diff, submit. One
// cycle is in flight at a time; a tick that arrives mid-cycle is skipped.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/internal/executor"
	"github.com/bensig/golibre/internal/ledger"
	"github.com/bensig/golibre/internal/market"
	"github.com/bensig/golibre/internal/strategy"
	"github.com/bensig/golibre/pkg/config"
	"github.com/bensig/golibre/pkg/logger"
)

// State is the runner lifecycle state.
type State string

const (
	StateStarting  State = "starting"
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateComputing State = "computing"
	StateExecuting State = "executing"
	StateCooldown  State = "cooldown"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Status is a point-in-time view of a runner for the status surface.
type Status struct {
	Name              string    `json:"name"`
	Account           string    `json:"account"`
	Pair              string    `json:"pair"`
	Strategy          string    `json:"strategy"`
	State             State     `json:"state"`
	Cycles            uint64    `json:"cycles"`
	LastCycle         time.Time `json:"last_cycle,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

// Runner owns the loop for one tuple. Construction validates nothing beyond
// what it is given; the trading manager authorizes tuples before building
// runners.
type Runner struct {
	name     string
	account  domain.Account
	pair     domain.TradingPair
	gen      strategy.Generator
	params   strategy.Params
	provider *market.SnapshotProvider
	led      *ledger.Ledger
	exec     *executor.Executor
	cfg      config.RunnerConfig

	// submitMu is the per-account lock shared with every other runner (and
	// cancel-all) touching the same account. It serializes the whole
	// reconcile-diff-submit section, not just the chain call.
	submitMu *sync.Mutex

	log *logrus.Entry

	mu         sync.Mutex
	state      State
	cycles     uint64
	lastCycle  time.Time
	lastErr    error
	consecErrs int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(account domain.Account, pair domain.TradingPair, gen strategy.Generator, params strategy.Params,
	provider *market.SnapshotProvider, led *ledger.Ledger, exec *executor.Executor,
	cfg config.RunnerConfig, submitMu *sync.Mutex) *Runner {

	name := fmt.Sprintf("%s:%s:%s", account.Name, pair.Symbol(), gen.Name())
	return &Runner{
		name:     name,
		account:  account,
		pair:     pair,
		gen:      gen,
		params:   params,
		provider: provider,
		led:      led,
		exec:     exec,
		cfg:      cfg,
		submitMu: submitMu,
		log:      logger.WithField("runner", name),
		state:    StateStarting,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Name returns the runner's "account:pair:strategy" identifier.
func (r *Runner) Name() string { return r.name }

// Run executes the loop until Stop is called or ctx is cancelled. It runs one
// cycle immediately, then on every poll tick.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.doneCh)
	defer func() {
		// A runner that gave up stays Failed; everything else ends Stopped.
		r.mu.Lock()
		if r.state != StateFailed {
			r.state = StateStopped
		}
		r.mu.Unlock()
	}()

	r.log.Infof("starting: poll every %s", r.cfg.PollInterval.Duration)
	r.setState(StateIdle)

	ticker := time.NewTicker(r.cfg.PollInterval.Duration)
	defer ticker.Stop()

	r.cycle(ctx)
	for {
		if r.failed() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateFailed
}

// Stop requests a cooperative stop. The runner finishes the phase it is in
// and exits between phases; Done unblocks when the loop has exited.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Done is closed once the loop has fully exited.
func (r *Runner) Done() <-chan struct{} { return r.doneCh }

// Status returns a snapshot of the runner's state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Name:              r.name,
		Account:           r.account.Name,
		Pair:              r.pair.Symbol(),
		Strategy:          r.gen.Name(),
		State:             r.state,
		Cycles:            r.cycles,
		LastCycle:         r.lastCycle,
		ConsecutiveErrors: r.consecErrs,
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) stopping(ctx context.Context) bool {
	select {
	case <-r.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if r.stopping(ctx) {
		return
	}

	err := r.runCycle(ctx)

	r.mu.Lock()
	r.cycles++
	r.lastCycle = time.Now()
	r.lastErr = err
	if err != nil {
		r.consecErrs++
	} else {
		r.consecErrs = 0
	}
	consec := r.consecErrs
	r.mu.Unlock()

	if err != nil {
		r.log.Errorf("cycle failed (%d consecutive): %v", consec, err)
		// Past ten full cooldown rounds without a single good cycle the
		// runner gives up rather than hammer the chain forever.
		if consec >= r.cfg.CooldownAfter*10 {
			r.log.Errorf("giving up after %d consecutive failures", consec)
			r.setState(StateFailed)
			return
		}
		if consec >= r.cfg.CooldownAfter {
			r.cooldown(ctx, consec)
			return
		}
	}
	r.setState(StateIdle)
}

// cooldown pauses the loop after repeated failures, doubling with each error
// beyond the threshold. Stop and ctx cut it short.
func (r *Runner) cooldown(ctx context.Context, consec int) {
	d := r.cfg.CooldownBase.Duration
	for i := r.cfg.CooldownAfter; i < consec && d < 10*time.Minute; i++ {
		d *= 2
	}
	r.setState(StateCooldown)
	r.log.Warnf("cooling down for %s", d)
	select {
	case <-time.After(d):
	case <-r.stopCh:
	case <-ctx.Done():
	}
	r.setState(StateIdle)
}

func (r *Runner) runCycle(ctx context.Context) error {
	r.setState(StatePolling)
	snap, err := r.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	if r.stopping(ctx) {
		return nil
	}

	// Everything from reconcile to submit runs under the account lock so
	// concurrent runners on the same account cannot interleave ledger
	// mutations with chain submissions.
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	transitions := r.led.Reconcile(r.account.Name, r.pair, observedFrom(snap, r.account.Name))
	for _, t := range transitions {
		r.log.Debugf("ledger: order %d -> %s", t.OrderID, t.Status)
	}

	r.setState(StateComputing)
	view := strategy.LedgerView(r.led.Entries(r.account.Name, r.pair))
	desired, err := r.gen.Generate(snap, r.params, view)
	if err != nil {
		return err
	}
	r.advanceDriftCenter(desired)

	diff := r.led.ComputeDiff(r.account.Name, r.pair, desired, r.params.PriceTolerance)
	if diff.Empty() {
		r.log.Debugf("desired set already resting, nothing to do")
		return nil
	}
	if r.stopping(ctx) {
		return nil
	}

	r.setState(StateExecuting)
	subCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout.Duration)
	defer cancel()
	res := r.exec.Submit(subCtx, r.account.Name, diff)
	r.log.Infof("cycle: placed=%d cancelled=%d unknown=%d errors=%d",
		len(res.Placed), len(res.Cancelled), len(res.Unknown), len(res.Errors))
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d of %d operations failed, first: %v",
			len(res.Errors), len(diff.Place)+len(diff.Cancel), res.Errors[0])
	}
	return nil
}

// fetchSnapshot retries transient snapshot failures within the cycle with
// doubling backoff; other snapshot failures surface immediately.
func (r *Runner) fetchSnapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	delay := r.cfg.RetryBase.Duration
	if delay <= 0 {
		delay = time.Second
	}
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout.Duration)
		snap, err := r.provider.Fetch(fetchCtx, r.pair, r.gen.NeedsReference())
		cancel()
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if se, ok := market.AsSnapshotError(err); !ok || !se.IsTransient() {
			return nil, err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}
		r.log.Warnf("snapshot fetch failed (attempt %d/%d), retrying in %s: %v",
			attempt, r.cfg.MaxRetries, delay, err)
		select {
		case <-time.After(delay):
		case <-r.stopCh:
			return nil, lastErr
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

// advanceDriftCenter stores the midpoint of a two-sided desired set back into
// the parameters. RandomWalk reads it as the walk's previous center; the
// other strategies ignore it.
func (r *Runner) advanceDriftCenter(desired []domain.DesiredOrder) {
	var bid, ask decimal.Decimal
	for _, d := range desired {
		switch d.Side {
		case domain.SideBuy:
			bid = d.Price
		case domain.SideSell:
			ask = d.Price
		}
	}
	if bid.GreaterThan(decimal.Zero) && ask.GreaterThan(decimal.Zero) {
		r.params.CurrentPrice = bid.Add(ask).Div(decimal.NewFromInt(2))
	}
}

// observedFrom projects the account's own snapshot levels into the ledger's
// observed-order form, bids as buys and asks as sells.
func observedFrom(snap *domain.MarketSnapshot, account string) []ledger.ObservedOrder {
	var obs []ledger.ObservedOrder
	for _, lvl := range snap.Bids {
		if lvl.Account == account {
			obs = append(obs, ledger.ObservedOrder{
				OrderID: lvl.OrderID, Side: domain.SideBuy, Price: lvl.Price, Quantity: lvl.Quantity,
			})
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Account == account {
			obs = append(obs, ledger.ObservedOrder{
				OrderID: lvl.OrderID, Side: domain.SideSell, Price: lvl.Price, Quantity: lvl.Quantity,
			})
		}
	}
	return obs
}
