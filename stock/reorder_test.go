package stock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
)

func TestClassify_Boundaries(t *testing.T) {
	p := product("p1", 10)

	tests := []struct {
		total string
		want  stock.Health
	}{
		{"0", stock.HealthLowStock},
		{"9.99", stock.HealthLowStock},
		{"10", stock.HealthOK},
		{"10.01", stock.HealthOK},
		{"-3", stock.HealthLowStock},
	}
	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			b := stock.StockBalance{ProductID: p.ID, Total: qty(tt.total)}
			assert.Equal(t, tt.want, stock.Classify(p, b))
		})
	}
}

func TestClassify_UsesGrandTotalNotPerWarehouse(t *testing.T) {
	// GIVEN: min 10, and 6 + 6 spread across two warehouses
	// THEN: no single warehouse reaches the minimum but the product is OK
	p := product("p1", 10)
	bs := stock.ComputeBalances([]stock.Product{p}, []stock.Entry{
		mv("e1", stock.MoveReceipt, "p1", "w1", "6", stock.StatusDone),
		mv("e2", stock.MoveReceipt, "p1", "w2", "6", stock.StatusDone),
	})

	assert.Equal(t, stock.HealthOK, stock.Classify(p, bs.For("p1")))
}

func TestClassify_ReorderPointIsInformational(t *testing.T) {
	p := product("p1", 10) // reorder point 15
	b := stock.StockBalance{ProductID: p.ID, Total: qty("12")}

	assert.Equal(t, stock.HealthOK, stock.Classify(p, b))
	assert.True(t, stock.AtOrBelowReorder(p, b))

	p.ReorderPoint = qty("0")
	assert.False(t, stock.AtOrBelowReorder(p, b), "a zero reorder point disables the warning")
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestScenario_DeliveryThenTransfer(t *testing.T) {
	// GIVEN: P (min 10) with an Initial +50 in W1
	p := product("P", 10)
	products := []stock.Product{p}
	ledger := []stock.Entry{mv("init", stock.MoveInitial, "P", "W1", "50", stock.StatusDone)}
	c := fixedComposer(stock.NewIndex(products, []stock.Warehouse{{ID: "W1"}, {ID: "W2"}}))

	// WHEN: a Done delivery of 5 from W1
	delivery, err := c.Compose(stock.Intent{
		Kind: stock.IntentDelivery, ProductID: "P", Quantity: qty("5"), WarehouseID: "W1",
	})
	require.NoError(t, err)
	ledger = append(ledger, delivery...)

	// THEN: total 45, all in W1, OK
	b := stock.ComputeBalances(products, ledger).For("P")
	assertQty(t, "45", b.Total)
	assertQty(t, "45", b.At("W1"))
	assert.Equal(t, stock.HealthOK, stock.Classify(p, b))

	// WHEN: a Done transfer of 40 from W1 to W2
	transfer, err := c.Compose(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "P", Quantity: qty("40"),
		WarehouseID: "W1", TargetWarehouseID: "W2",
	})
	require.NoError(t, err)
	ledger = append(ledger, transfer...)

	// THEN: total unchanged, W1 5, W2 40, still OK
	b = stock.ComputeBalances(products, ledger).For("P")
	assertQty(t, "45", b.Total)
	assertQty(t, "5", b.At("W1"))
	assertQty(t, "40", b.At("W2"))
	assert.Equal(t, stock.HealthOK, stock.Classify(p, b))
}
