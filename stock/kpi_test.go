package stock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
)

func TestComputeDashboard(t *testing.T) {
	laptop := product("p1", 10)
	laptop.Category = "Electronics"
	chair := product("p2", 5)
	chair.Category = "Furniture"
	monitor := product("p3", 8)
	monitor.Category = "Electronics"
	products := []stock.Product{laptop, chair, monitor}

	entries := []stock.Entry{
		mv("e1", stock.MoveInitial, "p1", "w1", "50", stock.StatusDone),
		mv("e2", stock.MoveInitial, "p2", "w1", "2", stock.StatusDone),
		mv("e3", stock.MoveReceipt, "p3", "w2", "20", stock.StatusDone),
		mv("e4", stock.MoveReceipt, "p1", "w1", "5", stock.StatusWaiting),
		mv("e5", stock.MoveReceipt, "p2", "w1", "5", stock.StatusCanceled),
		mv("e6", stock.MoveDelivery, "p3", "w2", "-1", stock.StatusReady),
		mv("e7", stock.MoveDelivery, "p3", "w2", "-1", stock.StatusDraft),
	}
	pair, err := fixedComposer(nil).Compose(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "p1", Quantity: qty("3"),
		WarehouseID: "w1", TargetWarehouseID: "w2", Status: stock.StatusReady,
	})
	require.NoError(t, err)
	entries = append(entries, pair...)

	d := stock.ComputeDashboard(products, stock.ComputeBalances(products, entries), entries)

	assert.Equal(t, 3, d.TotalProducts)
	assert.Equal(t, 1, d.LowStockItems, "only the chair is below its minimum")
	assert.Equal(t, 1, d.PendingReceipts, "canceled receipts are not pending")
	assert.Equal(t, 2, d.PendingDeliveries)
	assert.Equal(t, 1, d.ScheduledTransfers, "a pair counts once")

	require.Len(t, d.StockByCategory, 2)
	assert.Equal(t, "Electronics", d.StockByCategory[0].Category)
	assertQty(t, "70", d.StockByCategory[0].Quantity)
	assert.Equal(t, "Furniture", d.StockByCategory[1].Category)
	assertQty(t, "2", d.StockByCategory[1].Quantity)
}

func TestBuildReports(t *testing.T) {
	a := product("a", 10)
	a.SKU = "ZZZ-1"
	a.Price = qty("2.50")
	b := product("b", 10)
	b.SKU = "AAA-1"
	products := []stock.Product{a, b}

	bs := stock.ComputeBalances(products, []stock.Entry{
		mv("e1", stock.MoveReceipt, "a", "w1", "12", stock.StatusDone),
	})
	reports := stock.BuildReports(products, bs)

	require.Len(t, reports, 2)
	assert.Equal(t, "AAA-1", reports[0].Product.SKU, "ordered by SKU")
	assert.Equal(t, stock.HealthLowStock, reports[0].Health)

	assert.Equal(t, stock.HealthOK, reports[1].Health)
	assert.True(t, reports[1].AtOrBelowReorder)
	assertQty(t, "30", reports[1].Value)
}

func TestFilterReports(t *testing.T) {
	mouse := product("p1", 0)
	mouse.Name, mouse.SKU, mouse.Category = "Wireless Mouse", "ACC-MSE-WL", "Accessories"
	laptop := product("p2", 0)
	laptop.Name, laptop.SKU, laptop.Category = "MacBook Pro M3", "APP-MBP-M3", "Electronics"
	chair := product("p3", 0)
	chair.Name, chair.SKU, chair.Category = "Ergonomic Chair", "FUR-ERGO-01", "Furniture"
	products := []stock.Product{chair, laptop, mouse}

	reports := stock.BuildReports(products, stock.ComputeBalances(products, []stock.Entry{
		mv("e1", stock.MoveReceipt, "p1", "w1", "10", stock.StatusDone),
		mv("e2", stock.MoveReceipt, "p2", "w2", "5", stock.StatusDone),
		mv("e3", stock.MoveReceipt, "p3", "w1", "3", stock.StatusDone),
		mv("e4", stock.MoveDelivery, "p3", "w1", "-3", stock.StatusDone),
		mv("e5", stock.MoveReceipt, "p2", "w1", "7", stock.StatusWaiting),
	}))

	ids := func(rs []stock.ProductReport) []stock.ProductID {
		out := []stock.ProductID{}
		for _, r := range rs {
			out = append(out, r.Product.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter stock.ProductFilter
		want   []stock.ProductID
	}{
		{"no filter keeps SKU order", stock.ProductFilter{}, []stock.ProductID{"p1", "p2", "p3"}},
		{"search by SKU ignores case", stock.ProductFilter{Search: "mbp"}, []stock.ProductID{"p2"}},
		{"search by name", stock.ProductFilter{Search: " Mouse "}, []stock.ProductID{"p1"}},
		{"category is exact", stock.ProductFilter{Category: "Electronics"}, []stock.ProductID{"p2"}},
		{"category differing in case", stock.ProductFilter{Category: "electronics"}, []stock.ProductID{}},
		{"warehouse needs positive Done stock", stock.ProductFilter{Warehouse: "w1"}, []stock.ProductID{"p1"}},
		{"filters combine", stock.ProductFilter{Search: "pro", Warehouse: "w2"}, []stock.ProductID{"p2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(stock.FilterReports(reports, tt.filter)))
		})
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_FilterAndSearch(t *testing.T) {
	mouse := product("p1", 0)
	mouse.Name = "Wireless Mouse"
	ix := stock.NewIndex([]stock.Product{mouse}, nil)

	at := func(e stock.Entry, day int, ref string) stock.Entry {
		e.CreatedAt = time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
		e.ReferenceDoc = ref
		return e
	}
	entries := []stock.Entry{
		at(mv("e1", stock.MoveReceipt, "p1", "w1", "10", stock.StatusDone), 1, "PO-2024-001"),
		at(mv("e2", stock.MoveDelivery, "p1", "w1", "-2", stock.StatusDone), 3, "SO-2024-005"),
		at(mv("e3", stock.MoveTransferOut, "p1", "w1", "-1", stock.StatusDone), 2, "INT-9"),
		at(mv("e4", stock.MoveTransferIn, "p1", "w2", "1", stock.StatusDone), 2, "INT-9"),
		at(mv("e5", stock.MoveReceipt, "ghost", "w1", "1", stock.StatusDone), 4, "PO-X"),
	}
	entries[2].CounterpartID, entries[3].CounterpartID = "e4", "e3"
	entries[0].Partner = "Logitech Distribution"

	t.Run("all newest first", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{})
		require.Len(t, got, 5)
		assert.Equal(t, []stock.EntryID{"e5", "e2", "e3", "e4", "e1"}, ids(got))
	})

	t.Run("transfer family matches both legs", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{Family: "Transfer"})
		assert.Equal(t, []stock.EntryID{"e3", "e4"}, ids(got))
	})

	t.Run("exact type", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{Family: "Receipt"})
		assert.Equal(t, []stock.EntryID{"e5", "e1"}, ids(got))
	})

	t.Run("search by product name", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{Search: "  wireless "})
		assert.Len(t, got, 4)
	})

	t.Run("search by reference", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{Family: "Delivery", Search: "so-2024"})
		assert.Equal(t, []stock.EntryID{"e2"}, ids(got))
	})

	t.Run("unknown product searched by id", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{Search: "ghost"})
		assert.Equal(t, []stock.EntryID{"e5"}, ids(got))
	})

	t.Run("search by partner", func(t *testing.T) {
		got := stock.History(entries, ix, stock.HistoryFilter{Search: "logitech"})
		assert.Equal(t, []stock.EntryID{"e1"}, ids(got))
	})
}

func TestHistory_TransferLegsOutBeforeIn(t *testing.T) {
	// GIVEN: a pair whose In leg sorts after its Out leg by id, and an
	// unrelated receipt written at the same instant
	c := fixedComposer(nil)
	receipt, err := c.Compose(stock.Intent{Kind: stock.IntentReceipt, ProductID: "p2", Quantity: qty("3"), WarehouseID: "w1"})
	require.NoError(t, err)
	pair, err := c.Compose(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "p1", Quantity: qty("4"), WarehouseID: "w1", TargetWarehouseID: "w2",
	})
	require.NoError(t, err)

	for _, order := range [][]stock.Entry{
		{pair[1], receipt[0], pair[0]},
		{pair[0], pair[1], receipt[0]},
		{receipt[0], pair[1], pair[0]},
	} {
		// WHEN: building the history
		got := stock.History(order, nil, stock.HistoryFilter{})

		// THEN: the legs are adjacent and Out comes first, whatever the input order
		assert.Equal(t, []stock.EntryID{"e-2", "e-3", "e-1"}, ids(got))
	}
}

func ids(entries []stock.Entry) []stock.EntryID {
	out := make([]stock.EntryID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
