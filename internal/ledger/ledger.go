// Package ledger is the in-memory record of orders believed open per account.
// The exchange's own open-order view is the source of truth: each cycle the
// ledger is reconciled against it first, then diffed against the strategy's
// desired orders. Diffs are pure intent; only the executor's serialized
// submission path commits state changes, so the ledger always reflects what
// was actually submitted, never what was merely computed.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "ledger")

// ObservedOrder is one open order as reported by the exchange.
type ObservedOrder struct {
	OrderID  uint64
	Side     domain.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Diff is the intent produced by comparing desired orders with the ledger.
// It never touches ledger state; the executor commits each operation as it
// is actually submitted.
type Diff struct {
	// Place are fresh Pending entries to submit, not yet in the ledger.
	Place []domain.LedgerEntry
	// Cancel are copies of Open entries to cancel.
	Cancel []domain.LedgerEntry
}

// Empty reports whether the diff requires no operations.
func (d Diff) Empty() bool {
	return len(d.Place) == 0 && len(d.Cancel) == 0
}

// Ledger holds entries for all accounts. Mutating methods are only called
// from each account's serialized execution path; reads can come from
// anywhere.
type Ledger struct {
	mu sync.RWMutex
	// account -> localID -> entry
	entries map[string]map[string]*domain.LedgerEntry
}

func New() *Ledger {
	return &Ledger{entries: make(map[string]map[string]*domain.LedgerEntry)}
}

// Entries returns copies of the account's entries for one pair.
func (l *Ledger) Entries(account string, pair domain.TradingPair) []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range l.entries[account] {
		if e.Pair.Symbol() == pair.Symbol() {
			out = append(out, *e)
		}
	}
	return out
}

// Reconcile resolves the ledger against the exchange-observed open orders for
// one account/pair and returns the entries that changed status (terminal
// copies included; terminal entries leave the ledger).
//
// Rules:
//   - observed order matching a known OrderID keeps/returns that entry Open
//   - observed order matching a Pending entry by (side, price) adopts the
//     exchange id and becomes Open
//   - observed order with no local match is adopted as Open, flagged as
//     exchange-originated for observability
//   - Open entries no longer observed become Filled
//   - Cancelling entries no longer observed become Cancelled
//   - Unknown entries resolve to Open (observed) or Cancelled (gone)
//   - Pending entries not yet observed stay Pending; the executor owns their
//     failure path
//
// Reconciling twice against the same observed set is a fixed point.
func (l *Ledger) Reconcile(account string, pair domain.TradingPair, observed []ObservedOrder) []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.entries[account]
	if acct == nil {
		acct = make(map[string]*domain.LedgerEntry)
		l.entries[account] = acct
	}

	var transitions []domain.LedgerEntry
	now := time.Now()
	matched := make(map[string]bool) // localID -> seen in observed

	for _, obs := range observed {
		entry := l.findByOrderIDLocked(acct, pair, obs.OrderID)
		if entry == nil {
			entry = l.findPendingMatchLocked(acct, pair, obs)
		}
		if entry != nil {
			matched[entry.LocalID] = true
			if entry.OrderID == 0 {
				entry.OrderID = obs.OrderID
			}
			if entry.Status == domain.StatusPending || entry.Status == domain.StatusUnknown {
				entry.Status = domain.StatusOpen
				entry.UpdatedAt = now
				transitions = append(transitions, *entry)
			}
			// Open stays Open, Cancelling stays Cancelling until the
			// exchange stops reporting the order.
			continue
		}

		// Unknown locally: adopt so cancel-all and diffs can manage it.
		adopted := &domain.LedgerEntry{
			OrderID:             obs.OrderID,
			LocalID:             uuid.NewString(),
			Account:             account,
			Pair:                pair,
			Side:                obs.Side,
			Price:               obs.Price,
			Quantity:            obs.Quantity,
			Status:              domain.StatusOpen,
			AdoptedFromExchange: true,
			UpdatedAt:           now,
		}
		acct[adopted.LocalID] = adopted
		matched[adopted.LocalID] = true
		log.Warnf("adopted unknown exchange order %d for %s on %s (%s %s @ %s)",
			obs.OrderID, account, pair.Symbol(), obs.Side, obs.Quantity, obs.Price)
		transitions = append(transitions, *adopted)
	}

	for localID, entry := range acct {
		if entry.Pair.Symbol() != pair.Symbol() || matched[localID] {
			continue
		}
		switch entry.Status {
		case domain.StatusOpen:
			entry.Status = domain.StatusFilled
		case domain.StatusCancelling:
			entry.Status = domain.StatusCancelled
		case domain.StatusUnknown:
			entry.Status = domain.StatusCancelled
		default:
			// Pending: submission may not have landed yet.
			continue
		}
		entry.UpdatedAt = now
		transitions = append(transitions, *entry)
		delete(acct, localID)
	}

	return transitions
}

// ComputeDiff compares desired orders against the account's live entries for
// the pair. Desired orders are deduplicated by idempotency key first, so
// repeated computation of the same intent yields at most one placement per
// level. tolerance is a fraction applied to both price and quantity when
// deciding an existing order is "close enough" to keep.
func (l *Ledger) ComputeDiff(account string, pair domain.TradingPair, desired []domain.DesiredOrder, tolerance decimal.Decimal) Diff {
	l.mu.RLock()
	defer l.mu.RUnlock()

	deduped := make([]domain.DesiredOrder, 0, len(desired))
	seen := make(map[string]bool, len(desired))
	for _, d := range desired {
		key := d.Key(account)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, d)
	}

	consumed := make(map[string]bool) // localID of entries kept
	var diff Diff

	for _, d := range deduped {
		if entry := l.matchDesiredLocked(account, pair, d, tolerance, consumed); entry != nil {
			consumed[entry.LocalID] = true
			continue // keep: present in both within tolerance
		}
		if l.levelBusyLocked(account, pair, d.Side, d.Price) {
			// A Pending/Cancelling entry already occupies the level;
			// placing now would double-mutate it.
			continue
		}
		diff.Place = append(diff.Place, domain.LedgerEntry{
			LocalID:  uuid.NewString(),
			Account:  account,
			Pair:     pair,
			Side:     d.Side,
			Price:    d.Price,
			Quantity: d.Quantity,
			Status:   domain.StatusPending,
		})
	}

	for _, entry := range l.entries[account] {
		if entry.Pair.Symbol() != pair.Symbol() || consumed[entry.LocalID] {
			continue
		}
		if entry.Status == domain.StatusOpen {
			diff.Cancel = append(diff.Cancel, *entry)
		}
	}

	return diff
}

// AddPending inserts a fresh Pending entry at submission time. It enforces
// the single-mutation invariant: one Pending/Cancelling entry per
// (pair, side, price) level.
func (l *Ledger) AddPending(entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.Status != domain.StatusPending {
		return fmt.Errorf("entry %s must be Pending, got %s", entry.LocalID, entry.Status)
	}
	if l.levelBusyLocked(entry.Account, entry.Pair, entry.Side, entry.Price) {
		return fmt.Errorf("level %s already has an in-flight mutation", entry.LevelKey())
	}
	acct := l.entries[entry.Account]
	if acct == nil {
		acct = make(map[string]*domain.LedgerEntry)
		l.entries[entry.Account] = acct
	}
	entry.UpdatedAt = time.Now()
	e := entry
	acct[entry.LocalID] = &e
	return nil
}

// RemovePending drops a Pending entry whose placement failed.
func (l *Ledger) RemovePending(account, localID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[account][localID]; ok && e.Status == domain.StatusPending {
		delete(l.entries[account], localID)
	}
}

// MarkCancelling flags an Open entry at cancellation-submission time,
// enforcing the single-mutation invariant for its level.
func (l *Ledger) MarkCancelling(account, localID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[account][localID]
	if !ok {
		return fmt.Errorf("entry %s not found for %s", localID, account)
	}
	if e.Status != domain.StatusOpen {
		return fmt.Errorf("entry %s is %s, only Open entries can be cancelled", localID, e.Status)
	}
	e.Status = domain.StatusCancelling
	e.UpdatedAt = time.Now()
	return nil
}

// RevertCancelling restores an entry whose cancel submission failed.
func (l *Ledger) RevertCancelling(account, localID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[account][localID]; ok && e.Status == domain.StatusCancelling {
		e.Status = domain.StatusOpen
		e.UpdatedAt = time.Now()
	}
}

// MarkUnknown records an entry whose submission outcome could not be
// determined (timeout mid-flight). The next reconciliation resolves it.
func (l *Ledger) MarkUnknown(account, localID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[account][localID]; ok {
		e.Status = domain.StatusUnknown
		e.UpdatedAt = time.Now()
	}
}

func (l *Ledger) findByOrderIDLocked(acct map[string]*domain.LedgerEntry, pair domain.TradingPair, orderID uint64) *domain.LedgerEntry {
	if orderID == 0 {
		return nil
	}
	for _, e := range acct {
		if e.OrderID == orderID && e.Pair.Symbol() == pair.Symbol() {
			return e
		}
	}
	return nil
}

func (l *Ledger) findPendingMatchLocked(acct map[string]*domain.LedgerEntry, pair domain.TradingPair, obs ObservedOrder) *domain.LedgerEntry {
	for _, e := range acct {
		if e.OrderID == 0 && e.Status == domain.StatusPending &&
			e.Pair.Symbol() == pair.Symbol() && e.Side == obs.Side && e.Price.Equal(obs.Price) {
			return e
		}
	}
	return nil
}

func (l *Ledger) matchDesiredLocked(account string, pair domain.TradingPair, d domain.DesiredOrder, tolerance decimal.Decimal, consumed map[string]bool) *domain.LedgerEntry {
	priceBand := d.Price.Mul(tolerance)
	qtyBand := d.Quantity.Mul(tolerance)
	for _, e := range l.entries[account] {
		if consumed[e.LocalID] || e.Pair.Symbol() != pair.Symbol() || e.Side != d.Side {
			continue
		}
		if e.Status != domain.StatusOpen && e.Status != domain.StatusPending {
			continue
		}
		if e.Price.Sub(d.Price).Abs().LessThanOrEqual(priceBand) &&
			e.Quantity.Sub(d.Quantity).Abs().LessThanOrEqual(qtyBand) {
			return e
		}
	}
	return nil
}

func (l *Ledger) levelBusyLocked(account string, pair domain.TradingPair, side domain.Side, price decimal.Decimal) bool {
	for _, e := range l.entries[account] {
		if e.Pair.Symbol() != pair.Symbol() || e.Side != side || !e.Price.Equal(price) {
			continue
		}
		if e.Status == domain.StatusPending || e.Status == domain.StatusCancelling {
			return true
		}
	}
	return false
}
