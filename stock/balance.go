/*
balance.go - Quantity-on-hand derived from the ledger

PURPOSE:
  Folds the full ledger into a per-product, per-warehouse balance table.
  This answers "how much of P is on hand, and where?"

RULES:
  1. Every known product appears in the result, even with no movements.
  2. Only Done entries count. Draft/Waiting/Ready/Canceled contribute zero.
  3. Quantities are already signed, so the fold is a plain sum.
  4. Summation is commutative: any permutation of the ledger yields the
     same result. No ordering or locking is needed inside the fold.
  5. An entry naming an unknown product still gets a bucket (Known=false)
     instead of failing; the fold is total over whatever ledger it is given.
  6. Total always equals the sum of PerWarehouse.

NO CACHING:
  Balances are recomputed from a full snapshot on every query. There is no
  incremental update path, so there is nothing that can drift. A balance
  is stale as soon as a new entry is appended.

EXAMPLE:
  Ledger for P: Initial +50 @W1 (Done), Delivery -5 @W1 (Done),
                Transfer Out -40 @W1 (Done), Transfer In +40 @W2 (Done),
                Receipt +10 @W1 (Draft)

  Balance(P) = {Total: 45, W1: 5, W2: 40}
*/
package stock

import "github.com/shopspring/decimal"

// =============================================================================
// STOCK BALANCE
// =============================================================================

// StockBalance is the derived quantity-on-hand for one product.
type StockBalance struct {
	ProductID    ProductID
	Total        decimal.Decimal
	PerWarehouse map[WarehouseID]decimal.Decimal

	// Known is false when the product only appears through ledger entries.
	Known bool
}

func newBalance(id ProductID, known bool) *StockBalance {
	return &StockBalance{
		ProductID:    id,
		Total:        decimal.Zero,
		PerWarehouse: make(map[WarehouseID]decimal.Decimal),
		Known:        known,
	}
}

// At returns the quantity held in one warehouse (zero if none).
func (b StockBalance) At(id WarehouseID) decimal.Decimal {
	if q, ok := b.PerWarehouse[id]; ok {
		return q
	}
	return decimal.Zero
}

// Balances maps each product to its balance.
type Balances map[ProductID]StockBalance

// For returns the balance of a product, or an empty balance if absent.
func (bs Balances) For(id ProductID) StockBalance {
	if b, ok := bs[id]; ok {
		return b
	}
	return *newBalance(id, false)
}

// Dangling returns the ids of products that appear only in the ledger.
func (bs Balances) Dangling() []ProductID {
	var out []ProductID
	for id, b := range bs {
		if !b.Known {
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// AGGREGATION
// =============================================================================

// ComputeBalances folds entries into balances for every product.
func ComputeBalances(products []Product, entries []Entry) Balances {
	acc := make(map[ProductID]*StockBalance, len(products))
	for _, p := range products {
		acc[p.ID] = newBalance(p.ID, true)
	}

	for _, e := range entries {
		if !e.Effective() {
			continue
		}
		b, ok := acc[e.ProductID]
		if !ok {
			b = newBalance(e.ProductID, false)
			acc[e.ProductID] = b
		}
		b.PerWarehouse[e.WarehouseID] = b.At(e.WarehouseID).Add(e.Quantity)
		b.Total = b.Total.Add(e.Quantity)
	}

	out := make(Balances, len(acc))
	for id, b := range acc {
		out[id] = *b
	}
	return out
}
