/*
composer.go - User-level intents to signed ledger entries

PURPOSE:
  Translates "receive 100", "deliver 5", "transfer 20 from A to B" into one or
  two ledger entries with correctly signed quantities. This is the ONLY place
  where a magnitude gets its sign, so no caller can forget to negate.

INTENT -> ENTRIES:
  Receipt     qty > 0   -> [Receipt    +qty @src]
  Initial     qty > 0   -> [Initial    +qty @src]
  Delivery    qty > 0   -> [Delivery   -qty @src]
  Adjustment  qty != 0  -> [Adjustment  qty @src]          (caller-signed)
  Transfer    qty > 0   -> [Transfer Out -qty @src, Transfer In +qty @dst]

TRANSFER PAIRS:
  Both legs share ReferenceDoc, Status and CreatedAt, get independent ids and
  name each other through CounterpartID. Their quantities sum to exactly zero.
  The pair must be appended as one unit (Ledger.Append routes it through the
  store's atomic append).

REJECTIONS (no entries are produced):
  - quantity not a positive magnitude (non-zero for Adjustment)
  - missing product or warehouse id, missing transfer target
  - transfer with source == target
  - product/warehouse unknown to the Composer's References (if set)
*/
package stock

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INTENT
// =============================================================================

type IntentKind string

const (
	IntentReceipt    IntentKind = "Receipt"
	IntentDelivery   IntentKind = "Delivery"
	IntentTransfer   IntentKind = "Transfer"
	IntentAdjustment IntentKind = "Adjustment"
	IntentInitial    IntentKind = "Initial"
)

func (k IntentKind) Valid() bool {
	switch k {
	case IntentReceipt, IntentDelivery, IntentTransfer, IntentAdjustment, IntentInitial:
		return true
	}
	return false
}

// Intent is what a user asks for. Quantity is a magnitude, except for
// Adjustment where the caller supplies the sign.
type Intent struct {
	Kind              IntentKind
	ProductID         ProductID
	Quantity          decimal.Decimal
	WarehouseID       WarehouseID // source
	TargetWarehouseID WarehouseID // Transfer only
	Status            Status      // empty means Done
	ReferenceDoc      string
	Partner           string // supplier or customer
}

// =============================================================================
// REFERENCES - Catalog lookups used to reject dangling ids
// =============================================================================

type References interface {
	HasProduct(id ProductID) bool
	HasWarehouse(id WarehouseID) bool
}

// Index is an in-memory lookup over a catalog snapshot.
type Index struct {
	products   map[ProductID]Product
	warehouses map[WarehouseID]Warehouse
}

func NewIndex(products []Product, warehouses []Warehouse) *Index {
	ix := &Index{
		products:   make(map[ProductID]Product, len(products)),
		warehouses: make(map[WarehouseID]Warehouse, len(warehouses)),
	}
	for _, p := range products {
		ix.products[p.ID] = p
	}
	for _, w := range warehouses {
		ix.warehouses[w.ID] = w
	}
	return ix
}

func (ix *Index) HasProduct(id ProductID) bool     { _, ok := ix.products[id]; return ok }
func (ix *Index) HasWarehouse(id WarehouseID) bool { _, ok := ix.warehouses[id]; return ok }

func (ix *Index) Product(id ProductID) (Product, bool) {
	p, ok := ix.products[id]
	return p, ok
}

func (ix *Index) Warehouse(id WarehouseID) (Warehouse, bool) {
	w, ok := ix.warehouses[id]
	return w, ok
}

// =============================================================================
// COMPOSER
// =============================================================================

// Composer builds ledger entries from intents.
type Composer struct {
	// NewID must never return the same id twice.
	NewID func() EntryID
	Now   func() time.Time

	// Refs, when set, rejects intents naming unknown products or warehouses.
	Refs References
}

// NewComposer returns a Composer using random UUIDs and the UTC wall clock.
func NewComposer(refs References) *Composer {
	return &Composer{
		NewID: func() EntryID { return EntryID(uuid.NewString()) },
		Now:   func() time.Time { return time.Now().UTC() },
		Refs:  refs,
	}
}

// ComposeEntries composes an intent without catalog checks.
func ComposeEntries(in Intent) ([]Entry, error) {
	return NewComposer(nil).Compose(in)
}

// Compose validates the intent and returns its entries.
func (c *Composer) Compose(in Intent) ([]Entry, error) {
	if in.Status == "" {
		in.Status = StatusDone
	}
	if err := c.validate(in); err != nil {
		return nil, err
	}
	if err := c.checkRefs(in); err != nil {
		return nil, err
	}

	base := Entry{
		ProductID:    in.ProductID,
		WarehouseID:  in.WarehouseID,
		Status:       in.Status,
		ReferenceDoc: in.ReferenceDoc,
		Partner:      strings.TrimSpace(in.Partner),
		CreatedAt:    c.Now(),
	}

	var entries []Entry
	switch in.Kind {
	case IntentReceipt:
		entries = []Entry{c.leg(base, MoveReceipt, in.Quantity)}
	case IntentInitial:
		entries = []Entry{c.leg(base, MoveInitial, in.Quantity)}
	case IntentAdjustment:
		entries = []Entry{c.leg(base, MoveAdjustment, in.Quantity)}
	case IntentDelivery:
		entries = []Entry{c.leg(base, MoveDelivery, in.Quantity.Neg())}
	case IntentTransfer:
		out := c.leg(base, MoveTransferOut, in.Quantity.Neg())
		dst := base
		dst.WarehouseID = in.TargetWarehouseID
		inbound := c.leg(dst, MoveTransferIn, in.Quantity)
		out.CounterpartID, inbound.CounterpartID = inbound.ID, out.ID
		entries = []Entry{out, inbound}
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (c *Composer) leg(base Entry, t MovementType, qty decimal.Decimal) Entry {
	base.ID = c.NewID()
	base.Type = t
	base.Quantity = qty
	return base
}

func (c *Composer) validate(in Intent) error {
	var v validator
	v.check(in.Kind.Valid(), "kind", "unknown operation "+string(in.Kind))
	v.check(in.ProductID != "", "product_id", "required")
	v.check(in.WarehouseID != "", "warehouse_id", "required")
	v.check(in.Status.Valid(), "status", "unknown status "+string(in.Status))

	if in.Kind == IntentAdjustment {
		v.check(!in.Quantity.IsZero(), "quantity", "must be non-zero")
	} else {
		v.check(in.Quantity.IsPositive(), "quantity", "must be a positive magnitude")
	}

	if in.Kind == IntentTransfer {
		v.check(in.TargetWarehouseID != "", "target_warehouse_id", "required for transfers")
		v.check(in.WarehouseID == "" || in.WarehouseID != in.TargetWarehouseID,
			"target_warehouse_id", "must differ from the source warehouse")
	} else {
		v.check(in.TargetWarehouseID == "", "target_warehouse_id", "only valid for transfers")
	}
	return v.err("invalid operation")
}

func (c *Composer) checkRefs(in Intent) error {
	if c.Refs == nil {
		return nil
	}
	if !c.Refs.HasProduct(in.ProductID) {
		return &ReferenceError{Field: "product_id", ID: string(in.ProductID), Err: ErrUnknownProduct}
	}
	if !c.Refs.HasWarehouse(in.WarehouseID) {
		return &ReferenceError{Field: "warehouse_id", ID: string(in.WarehouseID), Err: ErrUnknownWarehouse}
	}
	if in.Kind == IntentTransfer && !c.Refs.HasWarehouse(in.TargetWarehouseID) {
		return &ReferenceError{Field: "target_warehouse_id", ID: string(in.TargetWarehouseID), Err: ErrUnknownWarehouse}
	}
	return nil
}
