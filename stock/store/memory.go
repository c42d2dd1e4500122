// Package store provides in-memory store implementations.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// MEMORY STORE - In-memory catalog + ledger (for testing/dev)
// =============================================================================

// Memory implements stock.AtomicLedgerStore, stock.CatalogStore,
// stock.Subscriber and stock.Snapshotter.
type Memory struct {
	mu         sync.RWMutex
	entries    []stock.Entry
	entryIDs   map[stock.EntryID]bool
	products   []stock.Product
	warehouses []stock.Warehouse

	// notifyMu serialises deliveries so subscribers never see an older
	// snapshot after a newer one.
	notifyMu    sync.Mutex
	subscribers map[int]func([]stock.Entry)
	nextSub     int
}

var (
	_ stock.AtomicLedgerStore = (*Memory)(nil)
	_ stock.CatalogStore      = (*Memory)(nil)
	_ stock.Subscriber        = (*Memory)(nil)
	_ stock.Snapshotter       = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		entryIDs:    make(map[stock.EntryID]bool),
		subscribers: make(map[int]func([]stock.Entry)),
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) FetchAll(_ context.Context) ([]stock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]stock.Entry(nil), m.entries...), nil
}

// AppendOne adds a single entry. Append-only.
func (m *Memory) AppendOne(_ context.Context, e stock.Entry) error {
	m.mu.Lock()
	if m.entryIDs[e.ID] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", stock.ErrDuplicateEntry, e.ID)
	}
	m.appendLocked(e)
	m.mu.Unlock()

	m.notify()
	return nil
}

// AppendAtomic adds all entries or none.
func (m *Memory) AppendAtomic(_ context.Context, entries []stock.Entry) error {
	m.mu.Lock()

	if err := m.checkEntriesLocked(entries); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, e := range entries {
		m.appendLocked(e)
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// checkEntriesLocked rejects ids already in the ledger or repeated in the batch.
func (m *Memory) checkEntriesLocked(entries []stock.Entry) error {
	seen := make(map[stock.EntryID]bool, len(entries))
	for _, e := range entries {
		if m.entryIDs[e.ID] || seen[e.ID] {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

func (m *Memory) appendLocked(e stock.Entry) {
	m.entries = append(m.entries, e)
	m.entryIDs[e.ID] = true
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) ListProducts(_ context.Context) ([]stock.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]stock.Product(nil), m.products...), nil
}

func (m *Memory) ListWarehouses(_ context.Context) ([]stock.Warehouse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]stock.Warehouse(nil), m.warehouses...), nil
}

func (m *Memory) AppendProduct(ctx context.Context, p stock.Product) error {
	return m.AppendProductWithEntries(ctx, p, nil)
}

// AppendProductWithEntries adds the product and its opening entries, or
// nothing.
func (m *Memory) AppendProductWithEntries(_ context.Context, p stock.Product, entries []stock.Entry) error {
	m.mu.Lock()
	for _, existing := range m.products {
		if existing.ID == p.ID {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", stock.ErrDuplicateProduct, p.ID)
		}
		if existing.SKU == p.SKU {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", stock.ErrDuplicateSKU, p.SKU)
		}
	}
	if err := m.checkEntriesLocked(entries); err != nil {
		m.mu.Unlock()
		return err
	}

	m.products = append(m.products, p)
	for _, e := range entries {
		m.appendLocked(e)
	}
	m.mu.Unlock()

	if len(entries) > 0 {
		m.notify()
	}
	return nil
}

func (m *Memory) AppendWarehouse(_ context.Context, w stock.Warehouse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.warehouses {
		if existing.ID == w.ID {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateWarehouse, w.ID)
		}
	}
	m.warehouses = append(m.warehouses, w)
	return nil
}

// =============================================================================
// SNAPSHOT + SUBSCRIPTIONS
// =============================================================================

// Snapshot reads catalog and ledger under one lock.
func (m *Memory) Snapshot(_ context.Context) (stock.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stock.Snapshot{
		Products:   append([]stock.Product(nil), m.products...),
		Warehouses: append([]stock.Warehouse(nil), m.warehouses...),
		Entries:    append([]stock.Entry(nil), m.entries...),
		TakenAt:    time.Now().UTC(),
	}, nil
}

// Subscribe delivers the current ledger immediately and again after every
// append. Delivery stops when unsubscribe is called or ctx is done.
func (m *Memory) Subscribe(ctx context.Context, onChange func([]stock.Entry)) (func(), error) {
	m.notifyMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = onChange
	entries, _ := m.FetchAll(ctx)
	onChange(entries)
	m.notifyMu.Unlock()

	var once sync.Once
	stopped := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			m.notifyMu.Lock()
			delete(m.subscribers, id)
			m.notifyMu.Unlock()
			close(stopped)
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsubscribe()
			case <-stopped:
			}
		}()
	}
	return unsubscribe, nil
}

func (m *Memory) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if len(m.subscribers) == 0 {
		return
	}
	entries, _ := m.FetchAll(context.Background())
	for _, cb := range m.subscribers {
		cb(entries)
	}
}

// Reset clears everything. Subscribers are told about the empty ledger.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.entryIDs = make(map[stock.EntryID]bool)
	m.products = nil
	m.warehouses = nil
	m.mu.Unlock()

	m.notify()
	return nil
}
