// Package permission gates runner creation against per-account allow-lists.
// The check runs once when a runner is created, not per cycle: configuration
// changes take effect on restart.
package permission

import (
	"fmt"

	"github.com/bensig/golibre/internal/domain"
)

// DenialReason says why an (account, strategy, pair) tuple was refused.
type DenialReason string

const (
	ReasonUnknownAccount     DenialReason = "UnknownAccount"
	ReasonStrategyNotAllowed DenialReason = "StrategyNotAllowed"
	ReasonPairNotAllowed     DenialReason = "PairNotAllowed"
)

// DeniedError is returned when authorization fails. Fatal for that tuple
// only; other tuples keep starting.
type DeniedError struct {
	Account  string
	Strategy string
	Pair     string
	Reason   DenialReason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied for %s/%s/%s: %s", e.Account, e.Strategy, e.Pair, e.Reason)
}

// Guard validates tuples against the loaded account set.
type Guard struct {
	accounts map[string]domain.Account
}

// NewGuard builds a guard over the configured accounts.
func NewGuard(accounts []domain.Account) *Guard {
	m := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		m[a.Name] = a
	}
	return &Guard{accounts: m}
}

// Authorize returns nil when account may run strategy on pairSymbol, or a
// *DeniedError naming the first failed check. No side effects.
func (g *Guard) Authorize(account, strategy, pairSymbol string) error {
	acct, ok := g.accounts[account]
	if !ok {
		return &DeniedError{Account: account, Strategy: strategy, Pair: pairSymbol, Reason: ReasonUnknownAccount}
	}
	if !acct.StrategyAllowed(strategy) {
		return &DeniedError{Account: account, Strategy: strategy, Pair: pairSymbol, Reason: ReasonStrategyNotAllowed}
	}
	if !acct.PairAllowed(pairSymbol) {
		return &DeniedError{Account: account, Strategy: strategy, Pair: pairSymbol, Reason: ReasonPairNotAllowed}
	}
	return nil
}
