// Package executor turns a ledger diff into on-chain submissions.
// Cancellations always go out before placements so capital is freed before it
// is re-committed. Each operation commits its ledger transition at submission
// time and reverts it if submission fails, keeping the ledger aligned with
// what was actually sent.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bensig/golibre/internal/chain"
	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/internal/ledger"
	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "executor")

// OpKind distinguishes the two submission operations.
type OpKind string

const (
	OpPlace  OpKind = "place"
	OpCancel OpKind = "cancel"
)

// OrderError is one failed operation within a batch. The batch continues past
// rejections; only the offending order is reported.
type OrderError struct {
	Op    OpKind
	Entry domain.LedgerEntry
	Cause error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%s %s %s @ %s for %s: %v",
		e.Op, e.Entry.Side, e.Entry.Quantity, e.Entry.Price, e.Entry.Account, e.Cause)
}

func (e *OrderError) Unwrap() error { return e.Cause }

// Result summarizes one submitted batch.
type Result struct {
	Placed    []domain.LedgerEntry
	Cancelled []domain.LedgerEntry
	// Unknown are entries whose submission outcome could not be determined;
	// they stay in the ledger as Unknown until the next reconciliation.
	Unknown []domain.LedgerEntry
	Errors  []*OrderError
}

// OK reports whether every operation in the batch succeeded.
func (r *Result) OK() bool { return len(r.Errors) == 0 && len(r.Unknown) == 0 }

// Gateway is the slice of the DEX gateway the executor uses.
type Gateway interface {
	PlaceOrder(ctx context.Context, account string, pair domain.TradingPair, side domain.Side, quantity, price decimal.Decimal) (string, error)
	CancelOrder(ctx context.Context, account string, orderID uint64) (string, error)
}

// Executor submits diffs for any account; callers serialize per account.
type Executor struct {
	gw         Gateway
	ledger     *ledger.Ledger
	maxRetries int
	// retryBase is the first retry delay; it doubles per attempt.
	retryBase time.Duration
}

func New(gw Gateway, led *ledger.Ledger, maxRetries int, retryBase time.Duration) *Executor {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	return &Executor{gw: gw, ledger: led, maxRetries: maxRetries, retryBase: retryBase}
}

// Submit executes a diff for one account: cancels first, then placements.
// A rejected operation is recorded, its ledger transition reverted, and the
// batch continues. An empty diff returns an empty successful result without
// touching the chain.
func (x *Executor) Submit(ctx context.Context, account string, diff ledger.Diff) *Result {
	res := &Result{}
	if diff.Empty() {
		return res
	}

	for _, entry := range diff.Cancel {
		if err := x.ledger.MarkCancelling(account, entry.LocalID); err != nil {
			// Entry changed under us since the diff was computed (filled,
			// already cancelling). Skip rather than double-mutate.
			log.Debugf("skipping cancel of %s: %v", entry.LocalID, err)
			continue
		}
		err := x.withRetry(ctx, func() error {
			_, err := x.gw.CancelOrder(ctx, account, entry.OrderID)
			return err
		})
		switch {
		case err == nil:
			res.Cancelled = append(res.Cancelled, entry)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			// Submission may have landed; let reconciliation decide.
			x.ledger.MarkUnknown(account, entry.LocalID)
			res.Unknown = append(res.Unknown, entry)
			log.Warnf("cancel of order %d for %s outcome unknown: %v", entry.OrderID, account, err)
		default:
			x.ledger.RevertCancelling(account, entry.LocalID)
			oe := &OrderError{Op: OpCancel, Entry: entry, Cause: err}
			res.Errors = append(res.Errors, oe)
			log.Errorf("%v", oe)
		}
	}

	for _, entry := range diff.Place {
		if err := x.ledger.AddPending(entry); err != nil {
			log.Debugf("skipping placement at %s: %v", entry.LevelKey(), err)
			continue
		}
		err := x.withRetry(ctx, func() error {
			_, err := x.gw.PlaceOrder(ctx, account, entry.Pair, entry.Side, entry.Quantity, entry.Price)
			return err
		})
		switch {
		case err == nil:
			res.Placed = append(res.Placed, entry)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			x.ledger.MarkUnknown(account, entry.LocalID)
			res.Unknown = append(res.Unknown, entry)
			log.Warnf("placement %s %s @ %s for %s outcome unknown: %v",
				entry.Side, entry.Quantity, entry.Price, account, err)
		default:
			x.ledger.RemovePending(account, entry.LocalID)
			oe := &OrderError{Op: OpPlace, Entry: entry, Cause: err}
			res.Errors = append(res.Errors, oe)
			log.Errorf("%v", oe)
		}
	}

	return res
}

// withRetry retries transient chain failures with doubling backoff up to
// maxRetries attempts. Rejections and context errors return immediately.
func (x *Executor) withRetry(ctx context.Context, op func() error) error {
	var err error
	delay := x.retryBase
	for attempt := 1; attempt <= x.maxRetries; attempt++ {
		err = op()
		if err == nil || chain.IsRejection(err) ||
			errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		// A signing subprocess killed by ctx expiry surfaces as a transient
		// error; the submission may still have landed. Report the context
		// error so the caller records the outcome as unknown.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == x.maxRetries {
			break
		}
		log.Warnf("transient failure (attempt %d/%d), retrying in %s: %v", attempt, x.maxRetries, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
