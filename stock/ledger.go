/*
ledger.go - Append-only ledger over a LedgerStore

PURPOSE:
  The Ledger is the single write path for stock movements. It checks the
  shape of every entry, keeps transfer pairs together, and makes sure a
  multi-entry write is either fully committed or not at all.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete.
  2. PAIRS STAY TOGETHER: a transfer leg can only be appended in the same
     batch as its counterpart, and the two quantities must cancel out.
  3. ALL OR NOTHING: batches go through AtomicLedgerStore.AppendAtomic. A
     store without that capability gets ErrAtomicityUnavailable and no writes.
  4. ONE FAILURE: if the store fails mid-batch, the caller sees a single
     *AtomicWriteError for the whole unit. No retry happens here.

EXAMPLE FLOW (transfer 40 from W1 to W2):
  entries, _ := composer.Compose(intent)      // [-40 @W1, +40 @W2]
  err := ledger.Append(ctx, entries...)       // one AppendAtomic call
*/
package stock

import (
	"context"
	"fmt"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger interface {
	// Append writes one entry directly, or several as one atomic unit.
	Append(ctx context.Context, entries ...Entry) error

	// Entries returns the full ledger. Read-only.
	Entries(ctx context.Context) ([]Entry, error)
}

type DefaultLedger struct {
	Store LedgerStore
}

func NewLedger(store LedgerStore) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if err := checkBatch(entries); err != nil {
		return err
	}

	if len(entries) == 1 {
		if err := l.Store.AppendOne(ctx, entries[0]); err != nil {
			return fmt.Errorf("append entry %s: %w", entries[0].ID, err)
		}
		return nil
	}

	atomic, ok := l.Store.(AtomicLedgerStore)
	if !ok {
		return ErrAtomicityUnavailable
	}
	if err := atomic.AppendAtomic(ctx, entries); err != nil {
		return &AtomicWriteError{Reference: entries[0].ReferenceDoc, Entries: len(entries), Err: err}
	}
	return nil
}

func (l *DefaultLedger) Entries(ctx context.Context) ([]Entry, error) {
	return l.Store.FetchAll(ctx)
}

// checkBatch rejects duplicate ids and transfer legs whose counterpart is
// missing from the batch or does not cancel them out.
func checkBatch(entries []Entry) error {
	byID := make(map[EntryID]Entry, len(entries))
	for _, e := range entries {
		if _, dup := byID[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
		byID[e.ID] = e
	}

	var v validator
	for _, e := range entries {
		if !e.Type.IsTransfer() {
			continue
		}
		other, ok := byID[e.CounterpartID]
		if !ok {
			v.check(false, "counterpart_id", fmt.Sprintf("transfer leg %s must be appended with its counterpart", e.ID))
			continue
		}
		v.check(other.CounterpartID == e.ID, "counterpart_id", fmt.Sprintf("legs %s and %s are not paired", e.ID, other.ID))
		v.check(other.Type.IsTransfer() && other.Type != e.Type, "type", fmt.Sprintf("leg %s needs an opposite transfer leg", e.ID))
		v.check(other.ProductID == e.ProductID, "product_id", "transfer legs must move the same product")
		v.check(other.Quantity.Add(e.Quantity).IsZero(), "quantity", "transfer legs must sum to zero")
		v.check(other.Status == e.Status, "status", "transfer legs must share a status")
	}
	return v.err("unbalanced transfer")
}
