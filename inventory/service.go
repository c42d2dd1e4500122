/*
service.go - Stock application service

PURPOSE:
  Ties the catalog, the ledger and the composer together for callers that
  speak in operations ("receive 100 kg into West Coast Depot") rather than
  ledger entries. Handlers and the demo loader go through here.

WRITE PATH (RecordMovement):
  1. Load catalog, build an Index
  2. Compose the intent into entries (rejects unknown ids and bad shapes)
  3. Append through the Ledger: one entry directly, a transfer pair atomically
  Nothing is written when any step fails.

READ PATH (View):
  Snapshot -> ComputeBalances -> BuildReports + ComputeDashboard
  Everything is recomputed per call; there is no cache to invalidate.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/stock-engine/stock"
)

// Store is what the service needs from persistence.
type Store interface {
	stock.LedgerStore
	stock.CatalogStore
}

type Service struct {
	store  Store
	ledger stock.Ledger
	log    *zap.Logger

	newID func() string
	now   func() time.Time

	catalogHooks []func(context.Context)
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		ledger: stock.NewLedger(store),
		log:    log,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// RecordMovement composes the intent against the current catalog and
// appends the resulting entries. A transfer is appended as one atomic unit.
func (s *Service) RecordMovement(ctx context.Context, in stock.Intent) ([]stock.Entry, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}

	composer := stock.NewComposer(ix)
	composer.Now = s.now
	entries, err := composer.Compose(in)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Append(ctx, entries...); err != nil {
		s.log.Error("append movement failed",
			zap.String("kind", string(in.Kind)),
			zap.String("product_id", string(in.ProductID)),
			zap.String("reference", in.ReferenceDoc),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("movement recorded",
		zap.String("kind", string(in.Kind)),
		zap.String("product_id", string(in.ProductID)),
		zap.String("warehouse_id", string(in.WarehouseID)),
		zap.String("quantity", in.Quantity.String()),
		zap.String("status", string(entries[0].Status)),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

func (s *Service) index(ctx context.Context) (*stock.Index, error) {
	products, warehouses, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return stock.NewIndex(products, warehouses), nil
}

func (s *Service) catalog(ctx context.Context) (products []stock.Product, warehouses []stock.Warehouse, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.store.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		warehouses, err = s.store.ListWarehouses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	return products, warehouses, nil
}

// OnCatalogChange registers fn to run after a product or warehouse is
// added. Register before serving; hooks are not guarded by a lock.
func (s *Service) OnCatalogChange(fn func(context.Context)) {
	s.catalogHooks = append(s.catalogHooks, fn)
}

func (s *Service) catalogChanged(ctx context.Context) {
	for _, fn := range s.catalogHooks {
		fn(ctx)
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// NewProduct registers a product, optionally with opening stock.
type NewProduct struct {
	ID            stock.ProductID // generated when empty
	Name          string
	SKU           string
	Category      string
	UoM           string
	MinStockLevel decimal.Decimal
	ReorderPoint  decimal.Decimal
	Price         decimal.Decimal

	// When both are set, a Done Initial entry referenced INIT-<SKU> is
	// written together with the product.
	InitialStock     decimal.Decimal
	InitialWarehouse stock.WarehouseID
}

func (np NewProduct) validate() error {
	var details []stock.FieldError
	check := func(ok bool, field, msg string) {
		if !ok {
			details = append(details, stock.FieldError{Field: field, Message: msg})
		}
	}
	check(strings.TrimSpace(np.Name) != "", "name", "required")
	check(strings.TrimSpace(np.SKU) != "", "sku", "required")
	check(!np.MinStockLevel.IsNegative(), "min_stock_level", "must not be negative")
	check(!np.ReorderPoint.IsNegative(), "reorder_point", "must not be negative")
	check(!np.Price.IsNegative(), "price", "must not be negative")
	check(!np.InitialStock.IsNegative(), "initial_stock", "must not be negative")

	if len(details) > 0 {
		return &stock.ValidationError{Message: "invalid product", Details: details}
	}
	return nil
}

// AddProduct stores the product and, when requested, its opening stock.
// Both are written as one unit, so a failure leaves neither behind and the
// same SKU can be retried.
func (s *Service) AddProduct(ctx context.Context, np NewProduct) (stock.Product, []stock.Entry, error) {
	if err := np.validate(); err != nil {
		return stock.Product{}, nil, err
	}

	p := stock.Product{
		ID:            np.ID,
		Name:          strings.TrimSpace(np.Name),
		SKU:           strings.TrimSpace(np.SKU),
		Category:      strings.TrimSpace(np.Category),
		UoM:           np.UoM,
		MinStockLevel: np.MinStockLevel,
		ReorderPoint:  np.ReorderPoint,
		Price:         np.Price,
		CreatedAt:     s.now(),
	}
	if p.ID == "" {
		p.ID = stock.ProductID(s.newID())
	}
	if p.UoM == "" {
		p.UoM = "units"
	}

	var opening []stock.Entry
	if np.InitialStock.IsPositive() && np.InitialWarehouse != "" {
		products, warehouses, err := s.catalog(ctx)
		if err != nil {
			return stock.Product{}, nil, err
		}
		ix := stock.NewIndex(append(products, p), warehouses)
		if !ix.HasWarehouse(np.InitialWarehouse) {
			return stock.Product{}, nil, &stock.ReferenceError{
				Field: "initial_warehouse", ID: string(np.InitialWarehouse), Err: stock.ErrUnknownWarehouse,
			}
		}

		composer := stock.NewComposer(ix)
		composer.Now = s.now
		opening, err = composer.Compose(stock.Intent{
			Kind:         stock.IntentInitial,
			ProductID:    p.ID,
			Quantity:     np.InitialStock,
			WarehouseID:  np.InitialWarehouse,
			Status:       stock.StatusDone,
			ReferenceDoc: "INIT-" + p.SKU,
		})
		if err != nil {
			return stock.Product{}, nil, err
		}
	}

	if err := s.store.AppendProductWithEntries(ctx, p, opening); err != nil {
		s.log.Warn("add product failed", zap.String("sku", p.SKU), zap.Error(err))
		return stock.Product{}, nil, err
	}
	s.log.Info("product added",
		zap.String("product_id", string(p.ID)),
		zap.String("sku", p.SKU),
		zap.String("opening_stock", np.InitialStock.String()),
	)
	s.catalogChanged(ctx)
	return p, opening, nil
}

// AddWarehouse registers a storage location.
func (s *Service) AddWarehouse(ctx context.Context, w stock.Warehouse) (stock.Warehouse, error) {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return stock.Warehouse{}, &stock.ValidationError{
			Message: "invalid warehouse",
			Details: []stock.FieldError{{Field: "name", Message: "required"}},
		}
	}
	if w.ID == "" {
		w.ID = stock.WarehouseID(s.newID())
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}

	if err := s.store.AppendWarehouse(ctx, w); err != nil {
		return stock.Warehouse{}, err
	}
	s.log.Info("warehouse added", zap.String("warehouse_id", string(w.ID)), zap.String("name", w.Name))
	s.catalogChanged(ctx)
	return w, nil
}

// =============================================================================
// READS
// =============================================================================

// Snapshot is one read of catalog and ledger. Stores that can read
// everything at once are asked to; otherwise the catalog is read
// concurrently and the ledger last, so every entry written by a completed
// AddProduct finds its product.
func (s *Service) Snapshot(ctx context.Context) (stock.Snapshot, error) {
	if snapper, ok := s.store.(stock.Snapshotter); ok {
		return snapper.Snapshot(ctx)
	}

	var snap stock.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Products, err = s.store.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Warehouses, err = s.store.ListWarehouses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return stock.Snapshot{}, fmt.Errorf("load catalog: %w", err)
	}

	entries, err := s.ledger.Entries(ctx)
	if err != nil {
		return stock.Snapshot{}, fmt.Errorf("load ledger: %w", err)
	}
	snap.Entries = entries
	snap.TakenAt = s.now()
	return snap, nil
}

// View is everything the stock screens show, derived from one snapshot.
type View struct {
	Snapshot  stock.Snapshot
	Index     *stock.Index
	Balances  stock.Balances
	Reports   []stock.ProductReport
	Dashboard stock.Dashboard
}

// BuildView derives balances, reports and KPIs from a snapshot.
func BuildView(snap stock.Snapshot) View {
	balances := stock.ComputeBalances(snap.Products, snap.Entries)
	return View{
		Snapshot:  snap,
		Index:     stock.NewIndex(snap.Products, snap.Warehouses),
		Balances:  balances,
		Reports:   stock.BuildReports(snap.Products, balances),
		Dashboard: stock.ComputeDashboard(snap.Products, balances, snap.Entries),
	}
}

func (s *Service) View(ctx context.Context) (View, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return View{}, err
	}
	v := BuildView(snap)
	if dangling := v.Balances.Dangling(); len(dangling) > 0 {
		s.log.Warn("ledger references unknown products", zap.Int("count", len(dangling)))
	}
	return v, nil
}

// ProductReport returns one product's balance. A product that only appears
// in the ledger is reported with Known=false; an id that appears nowhere
// is not found.
func (s *Service) ProductReport(ctx context.Context, id stock.ProductID) (stock.ProductReport, error) {
	v, err := s.View(ctx)
	if err != nil {
		return stock.ProductReport{}, err
	}
	for _, r := range v.Reports {
		if r.Product.ID == id {
			return r, nil
		}
	}
	if b, ok := v.Balances[id]; ok {
		return stock.ProductReport{Product: stock.Product{ID: id}, Balance: b, Health: stock.HealthOK, Value: decimal.Zero}, nil
	}
	return stock.ProductReport{}, &stock.ReferenceError{Field: "product_id", ID: string(id), Err: stock.ErrUnknownProduct}
}

// Movement is a ledger entry with its catalog names resolved.
type Movement struct {
	stock.Entry
	ProductName   string
	WarehouseName string
}

// History returns filtered movements, newest first.
func (s *Service) History(ctx context.Context, f stock.HistoryFilter) ([]Movement, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ix := stock.NewIndex(snap.Products, snap.Warehouses)

	entries := stock.History(snap.Entries, ix, f)
	out := make([]Movement, len(entries))
	for i, e := range entries {
		m := Movement{Entry: e}
		if p, ok := ix.Product(e.ProductID); ok {
			m.ProductName = p.Name
		}
		if w, ok := ix.Warehouse(e.WarehouseID); ok {
			m.WarehouseName = w.Name
		}
		out[i] = m
	}
	return out, nil
}
