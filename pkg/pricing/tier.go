package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one band of a tiered price table
type Tier struct {
	LowerBound    uint64          `json:"lower_bound" yaml:"lower_bound"`
	UpperBound    Bound           `json:"upper_bound" yaml:"upper_bound"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit" yaml:"price_per_unit"`
	PriceFlatRate decimal.Decimal `json:"price_flat_rate" yaml:"price_flat_rate"`
}

// TierTable is an ascending list of tiers. The first tier's LowerBound is a
// sentinel (0 or 1) and the band it opens always starts at unit 1.
type TierTable []Tier

// effectiveStart is the first unit covered by tier i
func (t TierTable) effectiveStart(i int) uint64 {
	if i == 0 {
		return 1
	}
	return t[i].LowerBound
}

// Validate checks the table shape. Cost functions never call it.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}

	for i, tier := range t {
		if tier.PricePerUnit.IsNegative() || tier.PriceFlatRate.IsNegative() {
			return fmt.Errorf("%w: tier %d has a negative price", ErrInvalidTierTable, i)
		}

		last := i == len(t)-1
		if tier.UpperBound.IsUnbounded() != last {
			if last {
				return fmt.Errorf("%w: last tier must be unbounded", ErrInvalidTierTable)
			}
			return fmt.Errorf("%w: tier %d is unbounded but not last", ErrInvalidTierTable, i)
		}

		if i == 0 {
			if tier.LowerBound > 1 {
				return fmt.Errorf("%w: first tier must start at 0 or 1, got %d", ErrInvalidTierTable, tier.LowerBound)
			}
		} else {
			prev, _ := t[i-1].UpperBound.Value()
			if tier.LowerBound != prev+1 {
				return fmt.Errorf("%w: tier %d starts at %d, expected %d", ErrInvalidTierTable, i, tier.LowerBound, prev+1)
			}
		}

		if upper, ok := tier.UpperBound.Value(); ok && upper < t.effectiveStart(i) {
			return fmt.Errorf("%w: tier %d upper bound %d is below its start %d", ErrInvalidTierTable, i, upper, t.effectiveStart(i))
		}
	}

	return nil
}

// VolumeCost prices the whole quantity at the rate of the first tier whose
// upper bound covers it. A table without a covering tier falls back to its
// last tier; an empty table costs nothing.
func VolumeCost(tiers TierTable, q uint64) decimal.Decimal {
	if len(tiers) == 0 {
		return decimal.Zero
	}

	selected := tiers[len(tiers)-1]
	for _, tier := range tiers {
		if tier.UpperBound.Covers(q) {
			selected = tier
			break
		}
	}

	return selected.PriceFlatRate.Add(selected.PricePerUnit.Mul(Units(q)))
}

// GraduatedCost splits the quantity into bands and prices each band at its
// own tier. A tier that receives at least one unit adds its flat rate once.
// The last tier absorbs whatever remains.
func GraduatedCost(tiers TierTable, q uint64) decimal.Decimal {
	total := decimal.Zero
	remaining := q

	for i, tier := range tiers {
		if remaining == 0 {
			break
		}

		units := remaining
		if upper, ok := tier.UpperBound.Value(); ok && i < len(tiers)-1 {
			width := bandWidth(tiers.effectiveStart(i), upper)
			if width < units {
				units = width
			}
		}
		if units == 0 {
			continue
		}

		total = total.Add(tier.PriceFlatRate).Add(tier.PricePerUnit.Mul(Units(units)))
		remaining -= units
	}

	return total
}

func bandWidth(start, upper uint64) uint64 {
	if upper < start {
		return 0
	}
	return upper - start + 1
}
