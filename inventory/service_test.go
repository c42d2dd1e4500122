package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/stock/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*inventory.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return inventory.NewService(mem, zap.NewNop()), mem
}

func seedDemo(t *testing.T) (*inventory.Service, *store.Memory) {
	t.Helper()
	svc, mem := newService(t)
	require.NoError(t, svc.LoadDemo(context.Background()))
	return svc, mem
}

func reportFor(t *testing.T, v inventory.View, id stock.ProductID) stock.ProductReport {
	t.Helper()
	for _, r := range v.Reports {
		if r.Product.ID == id {
			return r
		}
	}
	t.Fatalf("no report for %s", id)
	return stock.ProductReport{}
}

// =============================================================================
// DEMO + VIEW
// =============================================================================

func TestLoadDemo_Balances(t *testing.T) {
	svc, _ := seedDemo(t)

	v, err := svc.View(context.Background())
	require.NoError(t, err)

	macbook := reportFor(t, v, "1")
	assert.True(t, d("45").Equal(macbook.Balance.Total), "50 initial - 5 delivered")
	assert.Equal(t, stock.HealthOK, macbook.Health)

	coffee := reportFor(t, v, "3")
	assert.True(t, d("100").Equal(coffee.Balance.At("2")))
	assert.True(t, d("2500").Equal(coffee.Value))

	mouse := reportFor(t, v, "4")
	assert.True(t, mouse.Balance.Total.IsZero())
	assert.Equal(t, stock.HealthLowStock, mouse.Health)

	assert.Equal(t, 5, v.Dashboard.TotalProducts)
	assert.Equal(t, 2, v.Dashboard.LowStockItems, "mouse and monitor have no stock")
	assert.Zero(t, v.Dashboard.PendingReceipts)
}

func TestLoadDemo_ReloadResetsMemoryStore(t *testing.T) {
	svc, mem := seedDemo(t)
	require.NoError(t, svc.LoadDemo(context.Background()))

	entries, err := mem.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func TestRecordMovement_Transfer(t *testing.T) {
	ctx := context.Background()
	svc, mem := seedDemo(t)

	entries, err := svc.RecordMovement(ctx, stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "1", Quantity: d("40"),
		WarehouseID: "1", TargetWarehouseID: "2", ReferenceDoc: "INT-001",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	all, _ := mem.FetchAll(ctx)
	assert.Len(t, all, 6)

	report, err := svc.ProductReport(ctx, "1")
	require.NoError(t, err)
	assert.True(t, d("45").Equal(report.Balance.Total))
	assert.True(t, d("5").Equal(report.Balance.At("1")))
	assert.True(t, d("40").Equal(report.Balance.At("2")))
	assert.Equal(t, stock.HealthOK, report.Health)
}

func TestRecordMovement_RejectsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	svc, mem := seedDemo(t)

	tests := []struct {
		name   string
		intent stock.Intent
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unknown warehouse",
			intent: stock.Intent{Kind: stock.IntentReceipt, ProductID: "1", Quantity: d("1"), WarehouseID: "99"},
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, stock.ErrUnknownWarehouse) },
		},
		{
			name:   "unknown product",
			intent: stock.Intent{Kind: stock.IntentDelivery, ProductID: "42", Quantity: d("1"), WarehouseID: "1"},
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, stock.ErrUnknownProduct) },
		},
		{
			name: "same source and target",
			intent: stock.Intent{Kind: stock.IntentTransfer, ProductID: "1", Quantity: d("1"),
				WarehouseID: "1", TargetWarehouseID: "1"},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, stock.ErrInvalid) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordMovement(ctx, tt.intent)
			tt.check(t, err)

			all, _ := mem.FetchAll(ctx)
			assert.Len(t, all, 4)
		})
	}
}

func TestRecordMovement_PendingDoesNotMoveStock(t *testing.T) {
	ctx := context.Background()
	svc, _ := seedDemo(t)

	_, err := svc.RecordMovement(ctx, stock.Intent{
		Kind: stock.IntentReceipt, ProductID: "4", Quantity: d("30"), WarehouseID: "3",
		Status: stock.StatusWaiting, ReferenceDoc: "PO-2024-002",
	})
	require.NoError(t, err)

	v, err := svc.View(ctx)
	require.NoError(t, err)
	assert.True(t, reportFor(t, v, "4").Balance.Total.IsZero())
	assert.Equal(t, 1, v.Dashboard.PendingReceipts)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAddProduct_WithOpeningStock(t *testing.T) {
	ctx := context.Background()
	svc, _ := seedDemo(t)

	p, entries, err := svc.AddProduct(ctx, inventory.NewProduct{
		Name: "USB-C Hub", SKU: "ACC-HUB-C", Category: "Accessories",
		MinStockLevel: d("5"), ReorderPoint: d("8"), Price: d("39.90"),
		InitialStock: d("12"), InitialWarehouse: "3",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "units", p.UoM)
	require.Len(t, entries, 1)
	assert.Equal(t, stock.MoveInitial, entries[0].Type)
	assert.Equal(t, "INIT-ACC-HUB-C", entries[0].ReferenceDoc)

	report, err := svc.ProductReport(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, d("12").Equal(report.Balance.At("3")))
}

func TestAddProduct_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := seedDemo(t)

	_, _, err := svc.AddProduct(ctx, inventory.NewProduct{Name: "Clone", SKU: "APP-MBP-M3"})
	assert.ErrorIs(t, err, stock.ErrDuplicateSKU)

	_, _, err = svc.AddProduct(ctx, inventory.NewProduct{Name: "", SKU: "", Price: d("-1")})
	var ve *stock.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Details, 3)

	_, _, err = svc.AddProduct(ctx, inventory.NewProduct{
		Name: "Desk Lamp", SKU: "FUR-LAMP-01", InitialStock: d("3"), InitialWarehouse: "nowhere",
	})
	assert.ErrorIs(t, err, stock.ErrUnknownWarehouse)

	v, _ := svc.View(ctx)
	assert.Len(t, v.Snapshot.Products, 5, "no product is created when its opening stock cannot be placed")
}

// ledgerDown refuses any write that carries ledger entries.
type ledgerDown struct {
	*store.Memory
}

func (l ledgerDown) AppendProductWithEntries(ctx context.Context, p stock.Product, entries []stock.Entry) error {
	if len(entries) > 0 {
		return errors.New("ledger unavailable")
	}
	return l.Memory.AppendProductWithEntries(ctx, p, nil)
}

func TestAddProduct_OpeningStockFailureLeavesNoProduct(t *testing.T) {
	ctx := context.Background()
	_, mem := seedDemo(t)
	np := inventory.NewProduct{
		Name: "USB-C Hub", SKU: "ACC-HUB-C", InitialStock: d("12"), InitialWarehouse: "3",
	}

	// GIVEN: a store whose ledger write fails
	// WHEN: adding a product with opening stock
	_, _, err := inventory.NewService(ledgerDown{mem}, nil).AddProduct(ctx, np)

	// THEN: nothing is stored
	require.ErrorContains(t, err, "ledger unavailable")
	products, err := mem.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 5)

	// AND: the same SKU can be retried once the ledger is back
	p, entries, err := inventory.NewService(mem, nil).AddProduct(ctx, np)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.ID, entries[0].ProductID)
	all, err := mem.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestAddWarehouse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	w, err := svc.AddWarehouse(ctx, stock.Warehouse{Name: "  Tokyo Annex ", Location: "Tokyo"})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "Tokyo Annex", w.Name)

	_, err = svc.AddWarehouse(ctx, stock.Warehouse{})
	assert.True(t, stock.IsClientError(err))
}

// =============================================================================
// READS
// =============================================================================

func TestProductReport_UnknownAndDangling(t *testing.T) {
	ctx := context.Background()
	svc, mem := seedDemo(t)

	_, err := svc.ProductReport(ctx, "nope")
	assert.True(t, stock.IsNotFound(err))

	require.NoError(t, mem.AppendOne(ctx, stock.Entry{
		ID: "orphan", Type: stock.MoveReceipt, ProductID: "ghost", WarehouseID: "1",
		Quantity: d("2"), Status: stock.StatusDone,
	}))
	r, err := svc.ProductReport(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, r.Balance.Known)
	assert.True(t, d("2").Equal(r.Balance.Total))
}

func TestHistory_ResolvesNames(t *testing.T) {
	svc, _ := seedDemo(t)

	moves, err := svc.History(context.Background(), stock.HistoryFilter{Search: "macbook"})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	for _, m := range moves {
		assert.Equal(t, "MacBook Pro M3", m.ProductName)
		assert.Equal(t, "Central Hub", m.WarehouseName)
	}
}

// catalogOnly hides the memory store's Snapshot so the concurrent read path runs.
type catalogOnly struct {
	*store.Memory
}

func (catalogOnly) Snapshot() {}

type failingCatalog struct {
	catalogOnly
}

func (failingCatalog) ListWarehouses(context.Context) ([]stock.Warehouse, error) {
	return nil, errors.New("connection refused")
}

func TestSnapshot_WithoutSnapshotter(t *testing.T) {
	ctx := context.Background()
	_, mem := seedDemo(t)

	svc := inventory.NewService(catalogOnly{mem}, nil)
	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Products, 5)
	assert.Len(t, snap.Warehouses, 3)
	assert.Len(t, snap.Entries, 4)

	_, err = inventory.NewService(failingCatalog{catalogOnly{mem}}, nil).Snapshot(ctx)
	assert.ErrorContains(t, err, "connection refused")
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcher_RecomputesAndLogsTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, mem := seedDemo(t)

	core, logs := observer.New(zapcore.InfoLevel)
	w := inventory.NewWatcher(mem, mem, zap.New(core))

	var (
		mu    sync.Mutex
		views []inventory.View
	)
	w.OnUpdate = func(v inventory.View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	}
	stop, err := w.Start(ctx)
	require.NoError(t, err)
	defer stop()

	first, ok := w.Latest()
	require.True(t, ok, "subscription delivers the current ledger immediately")
	assert.True(t, d("45").Equal(first.Balances.For("1").Total))

	_, err = svc.RecordMovement(ctx, stock.Intent{
		Kind: stock.IntentDelivery, ProductID: "1", Quantity: d("40"), WarehouseID: "1", ReferenceDoc: "SO-2024-006",
	})
	require.NoError(t, err)

	latest, _ := w.Latest()
	assert.True(t, d("5").Equal(latest.Balances.For("1").Total))
	assert.Equal(t, 1, logs.FilterMessage("product fell below minimum stock").Len())

	mu.Lock()
	assert.Len(t, views, 2)
	mu.Unlock()
}

func TestWatcher_PicksUpCatalogChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, mem := seedDemo(t)

	core, logs := observer.New(zapcore.InfoLevel)
	w := inventory.NewWatcher(mem, mem, zap.New(core))
	require.NoError(t, w.Refresh(ctx), "refresh before the first delivery is a no-op")

	stop, err := w.Start(ctx)
	require.NoError(t, err)
	defer stop()
	svc.OnCatalogChange(func(ctx context.Context) {
		require.NoError(t, w.Refresh(ctx))
	})

	// GIVEN: a product added with a minimum but no stock
	p, _, err := svc.AddProduct(ctx, inventory.NewProduct{
		Name: "Desk Lamp", SKU: "FUR-LAMP-01", MinStockLevel: d("10"),
	})
	require.NoError(t, err)

	// THEN: the watcher's view already includes it as LowStock
	v, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, 6, v.Dashboard.TotalProducts)
	assert.Equal(t, stock.HealthLowStock, reportFor(t, v, p.ID).Health)
	assert.Equal(t, 1, logs.FilterMessage("new product below minimum stock").Len())

	// AND: a new warehouse shows up without a ledger write
	_, err = svc.AddWarehouse(ctx, stock.Warehouse{Name: "Tokyo Annex"})
	require.NoError(t, err)
	v, _ = w.Latest()
	assert.Len(t, v.Snapshot.Warehouses, 4)
	assert.Equal(t, 1, logs.FilterMessage("new product below minimum stock").Len(), "a known product is not reported again")
}
