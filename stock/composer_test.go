package stock_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
)

// fixedComposer returns deterministic ids and a fixed clock.
func fixedComposer(refs stock.References) *stock.Composer {
	n := 0
	c := stock.NewComposer(refs)
	c.NewID = func() stock.EntryID {
		n++
		return stock.EntryID(fmt.Sprintf("e-%d", n))
	}
	c.Now = func() time.Time { return time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func catalogIndex() *stock.Index {
	return stock.NewIndex(
		[]stock.Product{product("p1", 10)},
		[]stock.Warehouse{{ID: "w1", Name: "Central Hub"}, {ID: "w2", Name: "West Coast Depot"}},
	)
}

// =============================================================================
// SIGNING
// =============================================================================

func TestCompose_SignsByKind(t *testing.T) {
	tests := []struct {
		kind     stock.IntentKind
		quantity string
		wantType stock.MovementType
		wantQty  string
	}{
		{stock.IntentReceipt, "100", stock.MoveReceipt, "100"},
		{stock.IntentInitial, "50", stock.MoveInitial, "50"},
		{stock.IntentDelivery, "5", stock.MoveDelivery, "-5"},
		{stock.IntentAdjustment, "3", stock.MoveAdjustment, "3"},
		{stock.IntentAdjustment, "-3", stock.MoveAdjustment, "-3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.quantity, func(t *testing.T) {
			entries, err := fixedComposer(catalogIndex()).Compose(stock.Intent{
				Kind: tt.kind, ProductID: "p1", Quantity: qty(tt.quantity),
				WarehouseID: "w1", ReferenceDoc: "DOC-1",
			})
			require.NoError(t, err)
			require.Len(t, entries, 1)

			e := entries[0]
			assert.Equal(t, tt.wantType, e.Type)
			assertQty(t, tt.wantQty, e.Quantity)
			assert.Equal(t, stock.StatusDone, e.Status, "empty status defaults to Done")
			assert.Equal(t, stock.WarehouseID("w1"), e.WarehouseID)
			assert.Equal(t, "DOC-1", e.ReferenceDoc)
			assert.Empty(t, e.CounterpartID)
		})
	}
}

func TestCompose_TransferProducesBalancedPair(t *testing.T) {
	entries, err := fixedComposer(catalogIndex()).Compose(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "p1", Quantity: qty("20"),
		WarehouseID: "w1", TargetWarehouseID: "w2",
		Status: stock.StatusReady, ReferenceDoc: "INT-7",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	out, in := entries[0], entries[1]
	assert.Equal(t, stock.MoveTransferOut, out.Type)
	assert.Equal(t, stock.WarehouseID("w1"), out.WarehouseID)
	assertQty(t, "-20", out.Quantity)

	assert.Equal(t, stock.MoveTransferIn, in.Type)
	assert.Equal(t, stock.WarehouseID("w2"), in.WarehouseID)
	assertQty(t, "20", in.Quantity)

	assert.True(t, out.Quantity.Add(in.Quantity).IsZero(), "legs must sum to zero")
	assert.True(t, out.Quantity.Abs().Equal(in.Quantity.Abs()))
	assert.NotEqual(t, out.ID, in.ID, "legs get independent ids")
	assert.Equal(t, in.ID, out.CounterpartID)
	assert.Equal(t, out.ID, in.CounterpartID)
	assert.Equal(t, "INT-7", out.ReferenceDoc)
	assert.Equal(t, out.ReferenceDoc, in.ReferenceDoc)
	assert.Equal(t, stock.StatusReady, in.Status)
}

func TestCompose_CarriesPartner(t *testing.T) {
	c := fixedComposer(catalogIndex())

	receipt, err := c.Compose(stock.Intent{
		Kind: stock.IntentReceipt, ProductID: "p1", Quantity: qty("50"),
		WarehouseID: "w1", ReferenceDoc: "PO-2024-001", Partner: "  Apple Inc. ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", receipt[0].Partner)

	delivery, err := c.Compose(stock.Intent{
		Kind: stock.IntentDelivery, ProductID: "p1", Quantity: qty("2"),
		WarehouseID: "w1", ReferenceDoc: "SO-2024-001", Partner: "Acme Corp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", delivery[0].Partner)
}

func TestCompose_DefaultComposerUsesUniqueIDs(t *testing.T) {
	entries, err := stock.ComposeEntries(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "p1", Quantity: qty("1"),
		WarehouseID: "w1", TargetWarehouseID: "w2",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

// =============================================================================
// REJECTIONS
// =============================================================================

func TestCompose_RejectsDegenerateTransfer(t *testing.T) {
	entries, err := fixedComposer(catalogIndex()).Compose(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "p1", Quantity: qty("5"),
		WarehouseID: "w1", TargetWarehouseID: "w1",
	})

	require.Error(t, err)
	assert.Nil(t, entries, "no entries for a rejected intent")
	var ve *stock.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "target_warehouse_id", ve.Details[0].Field)
	assert.ErrorIs(t, err, stock.ErrInvalid)
}

func TestCompose_RejectsMalformedIntents(t *testing.T) {
	base := stock.Intent{Kind: stock.IntentReceipt, ProductID: "p1", Quantity: qty("1"), WarehouseID: "w1"}

	tests := []struct {
		name   string
		mutate func(*stock.Intent)
		field  string
	}{
		{"zero quantity", func(i *stock.Intent) { i.Quantity = qty("0") }, "quantity"},
		{"negative delivery", func(i *stock.Intent) { i.Kind = stock.IntentDelivery; i.Quantity = qty("-2") }, "quantity"},
		{"negative transfer", func(i *stock.Intent) {
			i.Kind = stock.IntentTransfer
			i.TargetWarehouseID = "w2"
			i.Quantity = qty("-2")
		}, "quantity"},
		{"zero adjustment", func(i *stock.Intent) { i.Kind = stock.IntentAdjustment; i.Quantity = qty("0") }, "quantity"},
		{"missing product", func(i *stock.Intent) { i.ProductID = "" }, "product_id"},
		{"missing warehouse", func(i *stock.Intent) { i.WarehouseID = "" }, "warehouse_id"},
		{"missing target", func(i *stock.Intent) { i.Kind = stock.IntentTransfer }, "target_warehouse_id"},
		{"target on receipt", func(i *stock.Intent) { i.TargetWarehouseID = "w2" }, "target_warehouse_id"},
		{"unknown kind", func(i *stock.Intent) { i.Kind = "Teleport" }, "kind"},
		{"unknown status", func(i *stock.Intent) { i.Status = "Shipped" }, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)

			entries, err := fixedComposer(nil).Compose(in)
			assert.Nil(t, entries)
			var ve *stock.ValidationError
			require.ErrorAs(t, err, &ve)

			fields := make([]string, len(ve.Details))
			for i, d := range ve.Details {
				fields[i] = d.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestCompose_RejectsUnknownReferences(t *testing.T) {
	c := fixedComposer(catalogIndex())

	_, err := c.Compose(stock.Intent{Kind: stock.IntentReceipt, ProductID: "nope", Quantity: qty("1"), WarehouseID: "w1"})
	assert.ErrorIs(t, err, stock.ErrUnknownProduct)

	_, err = c.Compose(stock.Intent{Kind: stock.IntentReceipt, ProductID: "p1", Quantity: qty("1"), WarehouseID: "w9"})
	assert.ErrorIs(t, err, stock.ErrUnknownWarehouse)

	entries, err := c.Compose(stock.Intent{
		Kind: stock.IntentTransfer, ProductID: "p1", Quantity: qty("1"),
		WarehouseID: "w1", TargetWarehouseID: "w9",
	})
	assert.Nil(t, entries)
	var re *stock.ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "target_warehouse_id", re.Field)
	assert.True(t, stock.IsNotFound(err))
}

func TestCompose_WithoutReferencesChecksShapeOnly(t *testing.T) {
	entries, err := fixedComposer(nil).Compose(stock.Intent{
		Kind: stock.IntentReceipt, ProductID: "anything", Quantity: qty("1"), WarehouseID: "anywhere",
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
