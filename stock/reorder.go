package stock

// Health classifies a product's stock level.
type Health string

const (
	HealthOK       Health = "OK"
	HealthLowStock Health = "LowStock"
)

// Classify reports LowStock when the product's grand total (across all
// warehouses) is strictly below MinStockLevel. A total equal to the minimum
// is OK. ReorderPoint plays no part here.
func Classify(p Product, b StockBalance) Health {
	if b.Total.LessThan(p.MinStockLevel) {
		return HealthLowStock
	}
	return HealthOK
}

// AtOrBelowReorder is the informational early-warning signal shown next to
// the classification. It never changes the Health value.
func AtOrBelowReorder(p Product, b StockBalance) bool {
	return p.ReorderPoint.IsPositive() && b.Total.LessThanOrEqual(p.ReorderPoint)
}
