/*
kpi.go - Dashboard figures derived from a snapshot

FIGURES:
  TotalProducts       catalog size
  LowStockItems       products classified LowStock
  PendingReceipts     Receipt entries not yet effective (Draft/Waiting/Ready)
  PendingDeliveries   Delivery entries not yet effective
  ScheduledTransfers  transfer pairs not yet effective, counted once per pair
  StockByCategory     sum of product totals per category

  Canceled entries are never pending. Everything here is recomputed from
  the same balances the stock screens use.
*/
package stock

import (
	"sort"

	"github.com/shopspring/decimal"
)

type CategoryStock struct {
	Category string
	Quantity decimal.Decimal
}

type Dashboard struct {
	TotalProducts      int
	LowStockItems      int
	PendingReceipts    int
	PendingDeliveries  int
	ScheduledTransfers int
	StockByCategory    []CategoryStock
}

// ComputeDashboard derives the KPIs from products, balances and the ledger.
func ComputeDashboard(products []Product, balances Balances, entries []Entry) Dashboard {
	d := Dashboard{TotalProducts: len(products)}

	byCategory := make(map[string]decimal.Decimal)
	for _, p := range products {
		b := balances.For(p.ID)
		if Classify(p, b) == HealthLowStock {
			d.LowStockItems++
		}
		byCategory[p.Category] = b.Total.Add(byCategory[p.Category])
	}

	for _, e := range entries {
		if !e.Status.Pending() {
			continue
		}
		switch e.Type {
		case MoveReceipt:
			d.PendingReceipts++
		case MoveDelivery:
			d.PendingDeliveries++
		case MoveTransferOut:
			d.ScheduledTransfers++
		}
	}

	d.StockByCategory = make([]CategoryStock, 0, len(byCategory))
	for c, q := range byCategory {
		d.StockByCategory = append(d.StockByCategory, CategoryStock{Category: c, Quantity: q})
	}
	sort.Slice(d.StockByCategory, func(i, j int) bool {
		return d.StockByCategory[i].Category < d.StockByCategory[j].Category
	})
	return d
}
