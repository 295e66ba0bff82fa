package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/passbill/pkg/cycle"
)

var (
	ErrInvalidTierTable   = errors.New("invalid tier table")
	ErrInvalidRecord      = errors.New("invalid pricing record")
	ErrInvalidChargeStyle = errors.New("invalid charge style")
)

// ChargeStyle determines how a pricing record turns a quantity into an amount
type ChargeStyle string

const (
	ChargeStyleOneTime         ChargeStyle = "one_time"
	ChargeStyleFlatRate        ChargeStyle = "flat_rate"
	ChargeStyleTieredVolume    ChargeStyle = "tiered_volume"
	ChargeStyleTieredGraduated ChargeStyle = "tiered_graduated"
	ChargeStyleUsageVolume     ChargeStyle = "usage_volume"
	ChargeStyleUsageGraduated  ChargeStyle = "usage_graduated"
)

// ParseChargeStyle parses a charge style name (case-insensitive)
func ParseChargeStyle(s string) (ChargeStyle, error) {
	style := ChargeStyle(strings.ToLower(strings.TrimSpace(s)))
	if !style.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChargeStyle, s)
	}
	return style, nil
}

// Valid reports whether s is a known charge style
func (s ChargeStyle) Valid() bool {
	switch s {
	case ChargeStyleOneTime, ChargeStyleFlatRate,
		ChargeStyleTieredVolume, ChargeStyleTieredGraduated,
		ChargeStyleUsageVolume, ChargeStyleUsageGraduated:
		return true
	}
	return false
}

// IsTiered reports whether the quantity is a purchased unit count
func (s ChargeStyle) IsTiered() bool {
	return s == ChargeStyleTieredVolume || s == ChargeStyleTieredGraduated
}

// IsUsage reports whether the quantity is a metered usage reading
func (s ChargeStyle) IsUsage() bool {
	return s == ChargeStyleUsageVolume || s == ChargeStyleUsageGraduated
}

// HasTiers reports whether the style is priced from a tier table
func (s ChargeStyle) HasTiers() bool {
	return s.IsTiered() || s.IsUsage()
}

// IsRecurring reports whether the style bills per cycle
func (s ChargeStyle) IsRecurring() bool {
	return s != ChargeStyleOneTime
}

func (s ChargeStyle) String() string {
	return string(s)
}

// Record is a pricing definition owned by an organization
type Record struct {
	ID            int64           `json:"id" yaml:"id"`
	OrgID         int64           `json:"org_id" yaml:"org_id"`
	ProductID     int64           `json:"product_id,omitempty" yaml:"product_id,omitempty"`
	ChargeStyle   ChargeStyle     `json:"charge_style" yaml:"charge_style"`
	Token         string          `json:"token" yaml:"token"`
	FlatPrice     decimal.Decimal `json:"flat_price" yaml:"flat_price"`
	CycleDuration cycle.Duration  `json:"cycle_duration,omitempty" yaml:"cycle_duration,omitempty"`
	Tiers         TierTable       `json:"tiers,omitempty" yaml:"tiers,omitempty"`
	UsageMeterID  string          `json:"usage_meter_id,omitempty" yaml:"usage_meter_id,omitempty"`
	Active        bool            `json:"active" yaml:"active"`
	Restricted    bool            `json:"restricted" yaml:"restricted"`
}

// Validate checks the record fields, including the tier table when present
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if !r.ChargeStyle.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChargeStyle, r.ChargeStyle)
	}
	if r.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidRecord)
	}
	if r.FlatPrice.IsNegative() {
		return fmt.Errorf("%w: flat price is negative", ErrInvalidRecord)
	}
	if r.ChargeStyle.IsRecurring() && !r.CycleDuration.Valid() {
		return fmt.Errorf("%w: cycle duration %q", ErrInvalidRecord, r.CycleDuration)
	}

	hasTiers := len(r.Tiers) > 0
	if r.ChargeStyle.HasTiers() != hasTiers {
		if hasTiers {
			return fmt.Errorf("%w: %s pricing cannot carry tiers", ErrInvalidRecord, r.ChargeStyle)
		}
		return fmt.Errorf("%w: %s pricing requires tiers", ErrInvalidRecord, r.ChargeStyle)
	}
	if r.ChargeStyle.IsUsage() != (r.UsageMeterID != "") {
		if r.ChargeStyle.IsUsage() {
			return fmt.Errorf("%w: %s pricing requires a usage meter", ErrInvalidRecord, r.ChargeStyle)
		}
		return fmt.Errorf("%w: %s pricing cannot reference a usage meter", ErrInvalidRecord, r.ChargeStyle)
	}

	if hasTiers {
		if err := r.Tiers.Validate(); err != nil {
			return fmt.Errorf("pricing %d: %w", r.ID, err)
		}
	}
	return nil
}

// Units converts a quantity to a decimal without going through int64
func Units(q uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(q), 0)
}

// ParseAmount parses a non-negative integer amount in the token's smallest unit
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must be a non-negative integer", s)
	}
	return d, nil
}
