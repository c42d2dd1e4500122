/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the stock ledger over a JSON API. Handles HTTP request/response,
  JSON serialization, and delegates to the inventory service.

ENDPOINTS:
  Catalog:
    GET    /api/products?q=&category=&warehouse=
                                        List products with balance and health;
                                        q matches name or SKU, warehouse keeps
                                        products stocked there
    POST   /api/products                Create product (optional opening stock)
    GET    /api/products/{id}/balance   One product's balance and health
    GET    /api/warehouses              List warehouses
    POST   /api/warehouses              Create warehouse

  Ledger:
    GET    /api/ledger?type=&q=         Move history, newest first
    POST   /api/operations              Record a receipt, delivery, transfer,
                                        adjustment or opening stock

  Reporting:
    GET    /api/balances                Balances for every product in the ledger
    GET    /api/dashboard               KPIs

  Demo:
    POST   /api/demo/load               Replace store contents with sample data

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the inventory service (validation lives there and in stock)
  3. Serialize response
  4. Map errors to statuses

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input (details list the fields)
  - 404: Product not found (balance lookup)
  - 409: Duplicate id or SKU
  - 422: Operation names an unknown product or warehouse
  - 503: Store cannot append atomically, or is unreachable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service *inventory.Service
	Log     *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *inventory.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: svc, Log: log}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns catalog products with their stock and health.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.View(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	reports := stock.FilterReports(view.Reports, stock.ProductFilter{
		Search:    q.Get("q"),
		Category:  q.Get("category"),
		Warehouse: stock.WarehouseID(q.Get("warehouse")),
	})
	out := make([]ProductStockDTO, len(reports))
	for i, rep := range reports {
		out[i] = toProductStockDTO(rep)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateProduct registers a product; initial_stock with initial_warehouse
// also books its opening stock.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, entries, err := h.Service.AddProduct(r.Context(), inventory.NewProduct{
		ID:               stock.ProductID(req.ID),
		Name:             req.Name,
		SKU:              req.SKU,
		Category:         req.Category,
		UoM:              req.UoM,
		MinStockLevel:    req.MinStockLevel,
		ReorderPoint:     req.ReorderPoint,
		Price:            req.Price,
		InitialStock:     req.InitialStock,
		InitialWarehouse: stock.WarehouseID(req.InitialWarehouse),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateProductResponse{
		Product: toProductDTO(p),
		Entries: toEntryDTOs(entries),
	})
}

// GetProductBalance returns one product's balance. Products that only
// exist in the ledger come back with known=false.
func (h *Handler) GetProductBalance(w http.ResponseWriter, r *http.Request) {
	id := stock.ProductID(chi.URLParam(r, "id"))

	rep, err := h.Service.ProductReport(r.Context(), id)
	if err != nil {
		if stock.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "product not found", err)
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductStockDTO(rep))
}

// =============================================================================
// WAREHOUSE HANDLERS
// =============================================================================

func (h *Handler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Snapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]WarehouseDTO, len(snap.Warehouses))
	for i, wh := range snap.Warehouses {
		out[i] = toWarehouseDTO(wh)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req CreateWarehouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	wh, err := h.Service.AddWarehouse(r.Context(), stock.Warehouse{
		ID:       stock.WarehouseID(req.ID),
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWarehouseDTO(wh))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListLedger returns the move history. ?type= takes a movement type or
// "Transfer" for both legs; ?q= searches product name and reference.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	filter := stock.HistoryFilter{
		Family: r.URL.Query().Get("type"),
		Search: r.URL.Query().Get("q"),
	}

	moves, err := h.Service.History(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]EntryDTO, len(moves))
	for i, m := range moves {
		out[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// RecordOperation turns one operation into ledger entries. A transfer
// answers with both legs.
func (h *Handler) RecordOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entries, err := h.Service.RecordMovement(r.Context(), req.intent())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs(entries))
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// ListBalances returns a balance for every product that appears in the
// catalog or the ledger, sorted by product id.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.View(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]BalanceDTO, 0, len(view.Balances))
	for _, b := range view.Balances {
		out = append(out, toBalanceDTO(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.View(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(view))
}

// =============================================================================
// DEMO + HEALTH
// =============================================================================

// LoadDemo replaces the store contents with the sample catalog and ledger.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.LoadDemo(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Code = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error to its status. Server-side
// failures are logged; caller mistakes are not.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *stock.ValidationError
		re *stock.ReferenceError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Message, Code: "invalid", Details: ve.Details})
	case stock.IsConflict(err):
		writeError(w, http.StatusConflict, "already exists", err)
	case errors.As(err, &re):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   re.Err.Error(),
			Code:    "unknown_reference",
			Details: []stock.FieldError{{Field: re.Field, Message: re.ID + " does not exist"}},
		})
	case stock.IsNotFound(err):
		writeError(w, http.StatusUnprocessableEntity, "unknown reference", err)
	case errors.Is(err, stock.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, stock.ErrAtomicityUnavailable),
		errors.Is(err, stock.ErrAtomicWriteFailed),
		errors.Is(err, stock.ErrStoreUnavailable):
		h.logError(r, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
	default:
		h.logError(r, err)
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func (h *Handler) logError(r *http.Request, err error) {
	h.Log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
}
