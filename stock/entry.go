package stock

// Validate checks the entry's shape: required fields, a known type and
// status, and a quantity whose sign matches the movement type. It does not
// check that the product or warehouse exist.
func (e Entry) Validate() error {
	var v validator
	v.check(e.ID != "", "id", "required")
	v.check(e.ProductID != "", "product_id", "required")
	v.check(e.WarehouseID != "", "warehouse_id", "required")
	v.check(e.Type.Valid(), "type", "unknown movement type "+string(e.Type))
	v.check(e.Status.Valid(), "status", "unknown status "+string(e.Status))
	v.check(!e.Quantity.IsZero(), "quantity", "must be non-zero")

	switch e.Type.direction() {
	case 1:
		v.check(!e.Quantity.IsNegative(), "quantity", "must be positive for "+string(e.Type))
	case -1:
		v.check(!e.Quantity.IsPositive(), "quantity", "must be negative for "+string(e.Type))
	}
	v.check(e.CounterpartID == "" || e.Type.IsTransfer(), "counterpart_id", "only transfer legs are paired")

	return v.err("invalid ledger entry")
}

// Effective reports whether the entry contributes to balances.
func (e Entry) Effective() bool { return e.Status.Effective() }
