// Package strategy holds the signal generators. A generator is a pure
// function of a market snapshot, its parameters and a read-only ledger view;
// all randomness is seeded through parameters so cycles replay
// deterministically in tests.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bensig/golibre/internal/domain"
)

// LedgerView is a read-only copy of the account's live ledger entries for
// the pair under consideration. Generators never mutate ledger state.
type LedgerView []domain.LedgerEntry

// LiveOnSide returns the live entries on one side.
func (v LedgerView) LiveOnSide(side domain.Side) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range v {
		if e.Side == side && e.Status.IsLive() {
			out = append(out, e)
		}
	}
	return out
}

// Generator computes the desired order set for one cycle.
type Generator interface {
	Name() string
	// NeedsReference reports whether the generator cannot run without an
	// external reference price in the snapshot.
	NeedsReference() bool
	// Generate returns the orders the strategy wants resting. It must not
	// keep state across calls beyond its seeded RNG.
	Generate(snap *domain.MarketSnapshot, params Params, ledger LedgerView) ([]domain.DesiredOrder, error)
}

// SignalError makes the runner skip the cycle without submitting anything.
type SignalError struct {
	Strategy string
	Cause    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Cause)
}

func (e *SignalError) Unwrap() error { return e.Cause }

func signalErrf(strategy, format string, args ...interface{}) error {
	return &SignalError{Strategy: strategy, Cause: fmt.Errorf(format, args...)}
}

// Factory builds a generator from parsed parameters.
type Factory func(params Params) Generator

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a generator factory under name. Called from init().
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy %s registered twice", name))
	}
	registry[name] = factory
}

// New builds a registered generator.
func New(name string, params Params) (Generator, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", name, Names())
	}
	return factory(params), nil
}

// Names lists registered strategies, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
