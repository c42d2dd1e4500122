/*
store.go - Contracts for the external stores

PURPOSE:
  The engine does not persist anything itself. It relies on collaborators
  that hold the catalog and the ledger. These interfaces are all it needs.

KEY INTERFACES:
  LedgerStore:       fetch the whole ledger, append one entry
  AtomicLedgerStore: + append several entries as one all-or-nothing unit
  Subscriber:        push a complete ledger snapshot on every change
  CatalogStore:      list/append products and warehouses; a product with
                     its opening entries in one unit
  Snapshotter:       read catalog and ledger under one consistent view

APPEND-ONLY CONTRACT:
  There is no Update and no Delete. Entries are corrected by appending
  compensating entries (usually an Adjustment).

IDENTIFIERS:
  Stores must reject an entry whose id already exists (ErrDuplicateEntry).
  Concurrent appends are otherwise safe: the balance fold is commutative.

IMPLEMENTATIONS:
  - stock/store/memory.go:  in-memory (tests, demo)
  - store/sqlite:           SQLite, atomic via sql.Tx
  - store/postgres:         PostgreSQL via pgx, atomic via pgx.Tx
  - store/firestore:        Firestore, atomic via RunTransaction
  Stores without a change feed get Subscriber from inventory.Poller.
*/
package stock

import (
	"context"
	"time"
)

type LedgerStore interface {
	// FetchAll returns every entry. Order is not significant.
	FetchAll(ctx context.Context) ([]Entry, error)

	AppendOne(ctx context.Context, e Entry) error
}

// AtomicLedgerStore can commit several entries as one unit: either all of
// them become visible or none do.
type AtomicLedgerStore interface {
	LedgerStore

	AppendAtomic(ctx context.Context, entries []Entry) error
}

// Subscriber delivers the full ledger to onChange after every change, and
// once immediately. The returned func stops delivery.
type Subscriber interface {
	Subscribe(ctx context.Context, onChange func([]Entry)) (unsubscribe func(), err error)
}

type CatalogStore interface {
	ListProducts(ctx context.Context) ([]Product, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	AppendProduct(ctx context.Context, p Product) error
	AppendWarehouse(ctx context.Context, w Warehouse) error

	// AppendProductWithEntries stores a product and its opening ledger
	// entries as one unit: on failure neither is visible.
	AppendProductWithEntries(ctx context.Context, p Product, entries []Entry) error
}

// Snapshot is one consistent read of catalog and ledger.
type Snapshot struct {
	Products   []Product
	Warehouses []Warehouse
	Entries    []Entry
	TakenAt    time.Time
}

// Snapshotter is implemented by stores that can read everything at once.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}
