/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Request and response shapes for the JSON API. Quantities, thresholds and
  prices travel as decimal strings ("12.5") so nothing is lost to float64;
  requests also accept plain JSON numbers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// CATALOG DTOs
// =============================================================================

type ProductDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Category      string          `json:"category"`
	UoM           string          `json:"uom"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	ReorderPoint  decimal.Decimal `json:"reorder_point"`
	Price         decimal.Decimal `json:"price"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

type CreateProductRequest struct {
	ID               string          `json:"id,omitempty"`
	Name             string          `json:"name"`
	SKU              string          `json:"sku"`
	Category         string          `json:"category"`
	UoM              string          `json:"uom"`
	MinStockLevel    decimal.Decimal `json:"min_stock_level"`
	ReorderPoint     decimal.Decimal `json:"reorder_point"`
	Price            decimal.Decimal `json:"price"`
	InitialStock     decimal.Decimal `json:"initial_stock"`
	InitialWarehouse string          `json:"initial_warehouse,omitempty"`
}

type CreateProductResponse struct {
	Product ProductDTO `json:"product"`
	Entries []EntryDTO `json:"entries"`
}

type WarehouseDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateWarehouseRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// =============================================================================
// STOCK DTOs
// =============================================================================

type BalanceDTO struct {
	ProductID    string                     `json:"product_id"`
	Known        bool                       `json:"known"`
	Total        decimal.Decimal            `json:"total"`
	PerWarehouse map[string]decimal.Decimal `json:"per_warehouse"`
}

// ProductStockDTO is one row of the stock screen.
type ProductStockDTO struct {
	Product          ProductDTO      `json:"product"`
	Balance          BalanceDTO      `json:"balance"`
	Health           string          `json:"health"`
	AtOrBelowReorder bool            `json:"at_or_below_reorder"`
	Value            decimal.Decimal `json:"value"`
}

type CategoryStockDTO struct {
	Category string          `json:"category"`
	Quantity decimal.Decimal `json:"quantity"`
}

type DashboardDTO struct {
	TotalProducts      int                `json:"total_products"`
	LowStockItems      int                `json:"low_stock_items"`
	PendingReceipts    int                `json:"pending_receipts"`
	PendingDeliveries  int                `json:"pending_deliveries"`
	ScheduledTransfers int                `json:"scheduled_transfers"`
	StockByCategory    []CategoryStockDTO `json:"stock_by_category"`
	InventoryValue     decimal.Decimal    `json:"inventory_value"`
}

// =============================================================================
// LEDGER DTOs
// =============================================================================

type EntryDTO struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	WarehouseID   string          `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Status        string          `json:"status"`
	ReferenceDoc  string          `json:"reference_doc,omitempty"`
	Partner       string          `json:"partner,omitempty"`
	CounterpartID string          `json:"counterpart_id,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

// OperationRequest describes one stock movement. Quantity is a positive
// magnitude except for Adjustment, where its sign is the direction.
type OperationRequest struct {
	Kind              string          `json:"kind"`
	ProductID         string          `json:"product_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	WarehouseID       string          `json:"warehouse_id"`
	TargetWarehouseID string          `json:"target_warehouse_id,omitempty"`
	Status            string          `json:"status,omitempty"`
	ReferenceDoc      string          `json:"reference_doc,omitempty"`
	Partner           string          `json:"partner,omitempty"` // supplier or customer
}

func (r OperationRequest) intent() stock.Intent {
	return stock.Intent{
		Kind:              stock.IntentKind(r.Kind),
		ProductID:         stock.ProductID(r.ProductID),
		Quantity:          r.Quantity,
		WarehouseID:       stock.WarehouseID(r.WarehouseID),
		TargetWarehouseID: stock.WarehouseID(r.TargetWarehouseID),
		Status:            stock.Status(r.Status),
		ReferenceDoc:      r.ReferenceDoc,
		Partner:           r.Partner,
	}
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toProductDTO(p stock.Product) ProductDTO {
	return ProductDTO{
		ID:            string(p.ID),
		Name:          p.Name,
		SKU:           p.SKU,
		Category:      p.Category,
		UoM:           p.UoM,
		MinStockLevel: p.MinStockLevel,
		ReorderPoint:  p.ReorderPoint,
		Price:         p.Price,
		CreatedAt:     formatTime(p.CreatedAt),
	}
}

func toWarehouseDTO(w stock.Warehouse) WarehouseDTO {
	return WarehouseDTO{ID: string(w.ID), Name: w.Name, Location: w.Location, CreatedAt: formatTime(w.CreatedAt)}
}

func toBalanceDTO(b stock.StockBalance) BalanceDTO {
	per := make(map[string]decimal.Decimal, len(b.PerWarehouse))
	for w, q := range b.PerWarehouse {
		per[string(w)] = q
	}
	return BalanceDTO{ProductID: string(b.ProductID), Known: b.Known, Total: b.Total, PerWarehouse: per}
}

func toProductStockDTO(r stock.ProductReport) ProductStockDTO {
	return ProductStockDTO{
		Product:          toProductDTO(r.Product),
		Balance:          toBalanceDTO(r.Balance),
		Health:           string(r.Health),
		AtOrBelowReorder: r.AtOrBelowReorder,
		Value:            r.Value,
	}
}

func toEntryDTO(e stock.Entry) EntryDTO {
	return EntryDTO{
		ID:            string(e.ID),
		Type:          string(e.Type),
		ProductID:     string(e.ProductID),
		WarehouseID:   string(e.WarehouseID),
		Quantity:      e.Quantity,
		Status:        string(e.Status),
		ReferenceDoc:  e.ReferenceDoc,
		Partner:       e.Partner,
		CounterpartID: string(e.CounterpartID),
		CreatedAt:     formatTime(e.CreatedAt),
	}
}

func toEntryDTOs(entries []stock.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	return out
}

func toMovementDTO(m inventory.Movement) EntryDTO {
	dto := toEntryDTO(m.Entry)
	dto.ProductName = m.ProductName
	dto.WarehouseName = m.WarehouseName
	return dto
}

func toDashboardDTO(v inventory.View) DashboardDTO {
	d := v.Dashboard
	dto := DashboardDTO{
		TotalProducts:      d.TotalProducts,
		LowStockItems:      d.LowStockItems,
		PendingReceipts:    d.PendingReceipts,
		PendingDeliveries:  d.PendingDeliveries,
		ScheduledTransfers: d.ScheduledTransfers,
		StockByCategory:    make([]CategoryStockDTO, len(d.StockByCategory)),
		InventoryValue:     decimal.Zero,
	}
	for i, c := range d.StockByCategory {
		dto.StockByCategory[i] = CategoryStockDTO{Category: c.Category, Quantity: c.Quantity}
	}
	for _, r := range v.Reports {
		dto.InventoryValue = dto.InventoryValue.Add(r.Value)
	}
	return dto
}
