package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/stock-engine/stock"
)

// Resetter is implemented by stores that can be wiped before a demo reload.
type Resetter interface {
	Reset(ctx context.Context) error
}

var demoWarehouses = []stock.Warehouse{
	{ID: "1", Name: "Central Hub", Location: "New York, NY"},
	{ID: "2", Name: "West Coast Depot", Location: "San Francisco, CA"},
	{ID: "3", Name: "Euro Distribution", Location: "Berlin, Germany"},
}

var demoProducts = []NewProduct{
	{ID: "1", Name: "MacBook Pro M3", SKU: "APP-MBP-M3", Category: "Electronics", UoM: "units",
		MinStockLevel: decimal.NewFromInt(10), ReorderPoint: decimal.NewFromInt(15), Price: decimal.NewFromInt(1999)},
	{ID: "2", Name: "Ergonomic Chair", SKU: "FUR-ERGO-01", Category: "Furniture", UoM: "units",
		MinStockLevel: decimal.NewFromInt(5), ReorderPoint: decimal.NewFromInt(10), Price: decimal.NewFromInt(350)},
	{ID: "3", Name: "Arabica Coffee Beans", SKU: "PAN-COF-001", Category: "Pantry", UoM: "kg",
		MinStockLevel: decimal.NewFromInt(20), ReorderPoint: decimal.NewFromInt(50), Price: decimal.NewFromInt(25)},
	{ID: "4", Name: "Wireless Mouse", SKU: "ACC-MSE-WL", Category: "Accessories", UoM: "units",
		MinStockLevel: decimal.NewFromInt(15), ReorderPoint: decimal.NewFromInt(25), Price: decimal.NewFromInt(49)},
	{ID: "5", Name: "4K Monitor", SKU: "ELC-MON-4K", Category: "Electronics", UoM: "units",
		MinStockLevel: decimal.NewFromInt(8), ReorderPoint: decimal.NewFromInt(12), Price: decimal.NewFromInt(499)},
}

var demoMovements = []stock.Intent{
	{Kind: stock.IntentInitial, ProductID: "1", WarehouseID: "1", Quantity: decimal.NewFromInt(50), ReferenceDoc: "INIT-001"},
	{Kind: stock.IntentInitial, ProductID: "2", WarehouseID: "1", Quantity: decimal.NewFromInt(20), ReferenceDoc: "INIT-001"},
	{Kind: stock.IntentReceipt, ProductID: "3", WarehouseID: "2", Quantity: decimal.NewFromInt(100), ReferenceDoc: "PO-2024-001"},
	{Kind: stock.IntentDelivery, ProductID: "1", WarehouseID: "1", Quantity: decimal.NewFromInt(5), ReferenceDoc: "SO-2024-005"},
}

// LoadDemo seeds the sample catalog and ledger through the normal service
// paths. Stores implementing Resetter are cleared first; on other stores a
// second load fails with a duplicate error.
func (s *Service) LoadDemo(ctx context.Context) error {
	if r, ok := s.store.(Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
	}

	for _, w := range demoWarehouses {
		if _, err := s.AddWarehouse(ctx, w); err != nil {
			return fmt.Errorf("demo warehouse %s: %w", w.ID, err)
		}
	}
	for _, p := range demoProducts {
		if _, _, err := s.AddProduct(ctx, p); err != nil {
			return fmt.Errorf("demo product %s: %w", p.SKU, err)
		}
	}
	for _, in := range demoMovements {
		if _, err := s.RecordMovement(ctx, in); err != nil {
			return fmt.Errorf("demo movement %s: %w", in.ReferenceDoc, err)
		}
	}

	s.log.Info("demo data loaded",
		zap.Int("warehouses", len(demoWarehouses)),
		zap.Int("products", len(demoProducts)),
		zap.Int("movements", len(demoMovements)),
	)
	return nil
}
