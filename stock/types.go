/*
Package stock provides the stock accounting engine.

PURPOSE:
  Derives quantity-on-hand per product and per warehouse from an append-only
  log of signed stock movements, and turns user-level intents ("receive 100",
  "transfer 20 from A to B") into correctly signed ledger entries.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product / Warehouse: catalog records referenced by entries
  - Entry: one immutable, signed stock movement
  - MovementType: what kind of movement an entry records
  - Status: whether the movement is effective yet (only Done counts)

SIGN CONVENTION:
  Every entry stores its quantity already signed for its effect on the
  warehouse it names: inbound positive, outbound negative.

    Receipt, Initial, Transfer In   +q
    Delivery, Transfer Out          -q
    Adjustment                      either sign (caller decides)

  Callers never negate quantities themselves. The Composer (composer.go) is
  the single place where an unsigned magnitude becomes a signed quantity.

SEE ALSO:
  - balance.go: folds entries into balances
  - composer.go: intent -> entries
  - reorder.go: low-stock classification
  - ledger.go: append-only ledger over a store
*/
package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string
type WarehouseID string
type EntryID string

// =============================================================================
// CATALOG
// =============================================================================

// Product is a catalog item. MinStockLevel drives low-stock classification;
// ReorderPoint is informational and may exceed the minimum.
type Product struct {
	ID            ProductID
	Name          string
	SKU           string
	Category      string
	UoM           string
	MinStockLevel decimal.Decimal
	ReorderPoint  decimal.Decimal
	Price         decimal.Decimal
	CreatedAt     time.Time
}

type Warehouse struct {
	ID        WarehouseID
	Name      string
	Location  string
	CreatedAt time.Time
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementType string

const (
	MoveReceipt     MovementType = "Receipt"
	MoveDelivery    MovementType = "Delivery"
	MoveTransferOut MovementType = "Transfer Out"
	MoveTransferIn  MovementType = "Transfer In"
	MoveAdjustment  MovementType = "Adjustment"
	MoveInitial     MovementType = "Initial"
)

// MovementTypes lists every valid movement type.
var MovementTypes = []MovementType{
	MoveReceipt, MoveDelivery, MoveTransferOut, MoveTransferIn, MoveAdjustment, MoveInitial,
}

func (t MovementType) Valid() bool {
	for _, v := range MovementTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsTransfer reports whether t is either leg of a transfer pair.
func (t MovementType) IsTransfer() bool {
	return t == MoveTransferOut || t == MoveTransferIn
}

// direction returns +1 for inbound types, -1 for outbound types and 0 when
// the caller chooses the sign (Adjustment).
func (t MovementType) direction() int {
	switch t {
	case MoveReceipt, MoveInitial, MoveTransferIn:
		return 1
	case MoveDelivery, MoveTransferOut:
		return -1
	default:
		return 0
	}
}

type Status string

const (
	StatusDraft    Status = "Draft"
	StatusWaiting  Status = "Waiting"
	StatusReady    Status = "Ready"
	StatusDone     Status = "Done"
	StatusCanceled Status = "Canceled"
)

var Statuses = []Status{StatusDraft, StatusWaiting, StatusReady, StatusDone, StatusCanceled}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Effective reports whether entries with this status count toward balances.
func (s Status) Effective() bool { return s == StatusDone }

// Pending reports whether the movement is scheduled but not yet effective.
func (s Status) Pending() bool {
	return s == StatusDraft || s == StatusWaiting || s == StatusReady
}

// =============================================================================
// ENTRY - One immutable, signed stock movement
// =============================================================================

// Entry is a ledger record. Quantity is already signed for its effect on
// WarehouseID. CounterpartID links the two legs of a transfer pair.
// Partner is the supplier of a receipt or the customer of a delivery.
type Entry struct {
	ID            EntryID
	Type          MovementType
	ProductID     ProductID
	WarehouseID   WarehouseID
	Quantity      decimal.Decimal
	Status        Status
	ReferenceDoc  string
	Partner       string
	CounterpartID EntryID
	CreatedAt     time.Time
}
