package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TotalCost returns the token and the full-cycle amount of buying q under r
func TotalCost(r *Record, q uint64) (string, decimal.Decimal, error) {
	if r == nil {
		return "", decimal.Zero, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}

	switch r.ChargeStyle {
	case ChargeStyleOneTime, ChargeStyleFlatRate:
		return r.Token, r.FlatPrice, nil
	case ChargeStyleTieredVolume, ChargeStyleUsageVolume:
		return r.Token, VolumeCost(r.Tiers, q), nil
	case ChargeStyleTieredGraduated, ChargeStyleUsageGraduated:
		return r.Token, GraduatedCost(r.Tiers, q), nil
	default:
		return "", decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidChargeStyle, r.ChargeStyle)
	}
}
