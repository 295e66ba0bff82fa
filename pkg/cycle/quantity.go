package cycle

// UnitQuantity tracks the seat count of a tiered subscription.
// Committed is the highest quantity ever paid for in the current cycle.
type UnitQuantity struct {
	Committed uint64 `json:"committed"`
	Current   uint64 `json:"current"`
}

// NewUnitQuantity returns the quantity state after an initial purchase
func NewUnitQuantity(q uint64) UnitQuantity {
	return UnitQuantity{Committed: q, Current: q}
}

// Apply sets the current quantity and raises the high-water mark if needed
func (u UnitQuantity) Apply(q uint64) UnitQuantity {
	next := UnitQuantity{Committed: u.Committed, Current: q}
	if q > next.Committed {
		next.Committed = q
	}
	return next
}

// Covered reports whether q was already paid for in this cycle
func (u UnitQuantity) Covered(q uint64) bool {
	return q <= u.Committed
}

// Reset starts a new cycle at the current quantity
func (u UnitQuantity) Reset() UnitQuantity {
	return UnitQuantity{Committed: u.Current, Current: u.Current}
}
