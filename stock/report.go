package stock

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductReport is one row of the stock screen.
type ProductReport struct {
	Product          Product
	Balance          StockBalance
	Health           Health
	AtOrBelowReorder bool

	// Value is Total * Price in the catalog's single currency.
	Value decimal.Decimal
}

// BuildReports returns one report per catalog product, ordered by SKU.
func BuildReports(products []Product, balances Balances) []ProductReport {
	out := make([]ProductReport, 0, len(products))
	for _, p := range products {
		b := balances.For(p.ID)
		out = append(out, ProductReport{
			Product:          p,
			Balance:          b,
			Health:           Classify(p, b),
			AtOrBelowReorder: AtOrBelowReorder(p, b),
			Value:            b.Total.Mul(p.Price),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product.SKU < out[j].Product.SKU })
	return out
}

// ProductFilter narrows the stock screen. Search matches name or SKU
// ignoring case; Category must match exactly; Warehouse keeps products with
// positive stock there. Empty fields match everything.
type ProductFilter struct {
	Search    string
	Category  string
	Warehouse WarehouseID
}

// FilterReports returns the reports matching f, in their original order.
func FilterReports(reports []ProductReport, f ProductFilter) []ProductReport {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]ProductReport, 0, len(reports))
	for _, r := range reports {
		if search != "" && !containsFold(r.Product.Name, search) && !containsFold(r.Product.SKU, search) {
			continue
		}
		if f.Category != "" && r.Product.Category != f.Category {
			continue
		}
		if f.Warehouse != "" && !r.Balance.At(f.Warehouse).IsPositive() {
			continue
		}
		out = append(out, r)
	}
	return out
}
