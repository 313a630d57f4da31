package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// EntryStatus is the lifecycle status of a ledger entry.
type EntryStatus string

const (
	// StatusPending: placement submitted (or about to be), no exchange ack yet.
	StatusPending EntryStatus = "pending"
	// StatusOpen: the exchange reports the order as resting.
	StatusOpen EntryStatus = "open"
	// StatusCancelling: cancellation submitted, no exchange ack yet.
	StatusCancelling EntryStatus = "cancelling"
	StatusCancelled  EntryStatus = "cancelled"
	StatusFilled     EntryStatus = "filled"
	// StatusUnknown: the submission outcome could not be determined;
	// resolved by the next reconciliation against the exchange.
	StatusUnknown EntryStatus = "unknown"
)

// IsLive reports whether the entry still occupies (or is about to occupy)
// a price level on the book.
func (s EntryStatus) IsLive() bool {
	switch s {
	case StatusPending, StatusOpen, StatusCancelling, StatusUnknown:
		return true
	}
	return false
}

// DesiredOrder is the order state a strategy wants to exist, before
// reconciliation against the exchange.
type DesiredOrder struct {
	Pair     TradingPair
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Key is a stable idempotency key: two desired orders for the same
// (account, pair, side, price) collapse to one submission per cycle.
func (d DesiredOrder) Key(account string) string {
	return fmt.Sprintf("%s|%s|%s|%s", account, d.Pair.Symbol(), d.Side, d.Price.String())
}

// LedgerEntry is the ledger's record of one believed-open order. Entries are
// owned by the Order Ledger; everything else reads copies.
type LedgerEntry struct {
	// OrderID is the exchange-assigned identifier once confirmed, zero before.
	OrderID uint64
	// LocalID identifies the entry before the exchange assigns an ID.
	LocalID  string
	Account  string
	Pair     TradingPair
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Status   EntryStatus
	// AdoptedFromExchange marks entries first seen in the exchange's open
	// order view rather than placed through this process.
	AdoptedFromExchange bool
	UpdatedAt           time.Time
}

// LevelKey identifies the price level an entry occupies on one side of the
// book. The ledger enforces at most one Pending/Cancelling entry per level.
func (e LedgerEntry) LevelKey() string {
	return fmt.Sprintf("%s|%s|%s", e.Pair.Symbol(), e.Side, e.Price.String())
}
