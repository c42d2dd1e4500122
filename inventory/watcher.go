package inventory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/stock-engine/stock"
)

// Watcher keeps a View current by recomputing it from every complete ledger
// snapshot a Subscriber delivers. It logs products that cross into or out of
// LowStock, including products that are added already below their minimum.
type Watcher struct {
	sub     stock.Subscriber
	catalog stock.CatalogStore
	log     *zap.Logger

	// OnUpdate, when set, is called with each new view.
	OnUpdate func(View)

	// applyMu orders recomputations so a refresh never publishes a view
	// built from an older ledger than the one already shown.
	applyMu sync.Mutex

	mu      sync.RWMutex
	view    View
	ready   bool
	entries []stock.Entry
}

func NewWatcher(sub stock.Subscriber, catalog stock.CatalogStore, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{sub: sub, catalog: catalog, log: log}
}

// Start subscribes and returns the function that stops watching.
func (w *Watcher) Start(ctx context.Context) (func(), error) {
	unsubscribe, err := w.sub.Subscribe(ctx, func(entries []stock.Entry) {
		if err := w.apply(ctx, entries); err != nil {
			w.log.Error("recompute balances", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to ledger: %w", err)
	}
	return unsubscribe, nil
}

// Refresh recomputes from the last delivered ledger, picking up catalog
// changes that did not touch the ledger. It is a no-op before the first
// delivery.
func (w *Watcher) Refresh(ctx context.Context) error {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	w.mu.RLock()
	entries, ready := w.entries, w.ready
	w.mu.RUnlock()
	if !ready {
		return nil
	}
	return w.recompute(ctx, entries)
}

// Latest returns the most recent view; ok is false until the first delivery.
func (w *Watcher) Latest() (View, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.view, w.ready
}

func (w *Watcher) apply(ctx context.Context, entries []stock.Entry) error {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()
	return w.recompute(ctx, entries)
}

func (w *Watcher) recompute(ctx context.Context, entries []stock.Entry) error {
	products, err := w.catalog.ListProducts(ctx)
	if err != nil {
		return err
	}
	warehouses, err := w.catalog.ListWarehouses(ctx)
	if err != nil {
		return err
	}
	next := BuildView(stock.Snapshot{Products: products, Warehouses: warehouses, Entries: entries})

	w.mu.Lock()
	prev, hadPrev := w.view, w.ready
	w.view, w.ready, w.entries = next, true, entries
	w.mu.Unlock()

	if hadPrev {
		w.logTransitions(prev, next)
	}
	if w.OnUpdate != nil {
		w.OnUpdate(next)
	}
	return nil
}

func (w *Watcher) logTransitions(prev, next View) {
	before := make(map[stock.ProductID]stock.Health, len(prev.Reports))
	for _, r := range prev.Reports {
		before[r.Product.ID] = r.Health
	}
	for _, r := range next.Reports {
		was, known := before[r.Product.ID]
		if known && was == r.Health {
			continue
		}
		if !known && r.Health != stock.HealthLowStock {
			continue
		}
		fields := []zap.Field{
			zap.String("product_id", string(r.Product.ID)),
			zap.String("sku", r.Product.SKU),
			zap.String("total", r.Balance.Total.String()),
			zap.String("min_stock_level", r.Product.MinStockLevel.String()),
		}
		switch {
		case !known:
			w.log.Warn("new product below minimum stock", fields...)
		case r.Health == stock.HealthLowStock:
			w.log.Warn("product fell below minimum stock", fields...)
		default:
			w.log.Info("product back above minimum stock", fields...)
		}
	}
}
