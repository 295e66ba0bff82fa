package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/passbill/pkg/cycle"
)

func TestTotalCost(t *testing.T) {
	tiers := twoTier(1)

	tests := []struct {
		name  string
		style ChargeStyle
		q     uint64
		want  decimal.Decimal
	}{
		{"one time ignores quantity", ChargeStyleOneTime, 99, amt(100)},
		{"flat rate ignores quantity", ChargeStyleFlatRate, 99, amt(100)},
		{"tiered volume", ChargeStyleTieredVolume, 20, amt(110_000000)},
		{"usage volume", ChargeStyleUsageVolume, 20, amt(110_000000)},
		{"tiered graduated", ChargeStyleTieredGraduated, 20, amt(130_000000)},
		{"usage graduated", ChargeStyleUsageGraduated, 20, amt(130_000000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{ChargeStyle: tt.style, Token: "USDC", FlatPrice: amt(100), Tiers: tiers}
			token, got, err := TotalCost(r, tt.q)
			require.NoError(t, err)
			assert.Equal(t, "USDC", token)
			assert.Truef(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestTotalCostInvalidStyle(t *testing.T) {
	_, _, err := TotalCost(&Record{ChargeStyle: "rental"}, 1)
	assert.ErrorIs(t, err, ErrInvalidChargeStyle)

	_, _, err = TotalCost(nil, 1)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestChargeStylePredicates(t *testing.T) {
	assert.True(t, ChargeStyleTieredVolume.IsTiered())
	assert.False(t, ChargeStyleUsageVolume.IsTiered())
	assert.True(t, ChargeStyleUsageGraduated.IsUsage())
	assert.True(t, ChargeStyleUsageGraduated.HasTiers())
	assert.False(t, ChargeStyleFlatRate.HasTiers())
	assert.False(t, ChargeStyleOneTime.IsRecurring())
	assert.True(t, ChargeStyleFlatRate.IsRecurring())

	style, err := ParseChargeStyle("TIERED_GRADUATED")
	require.NoError(t, err)
	assert.Equal(t, ChargeStyleTieredGraduated, style)

	_, err = ParseChargeStyle("barter")
	assert.ErrorIs(t, err, ErrInvalidChargeStyle)
}

func TestRecordValidate(t *testing.T) {
	valid := func() *Record {
		return &Record{
			ID:            1,
			OrgID:         1,
			ChargeStyle:   ChargeStyleTieredGraduated,
			Token:         "USDC",
			CycleDuration: cycle.Monthly,
			Tiers:         twoTier(0),
			Active:        true,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *Record)
		wantErr error
	}{
		{"valid tiered", func(r *Record) {}, nil},
		{"valid flat", func(r *Record) {
			r.ChargeStyle = ChargeStyleFlatRate
			r.Tiers = nil
			r.FlatPrice = amt(10)
		}, nil},
		{"valid one time without cycle", func(r *Record) {
			r.ChargeStyle = ChargeStyleOneTime
			r.Tiers = nil
			r.CycleDuration = ""
		}, nil},
		{"valid usage", func(r *Record) {
			r.ChargeStyle = ChargeStyleUsageVolume
			r.UsageMeterID = "api-calls"
		}, nil},
		{"unknown style", func(r *Record) { r.ChargeStyle = "x" }, ErrInvalidChargeStyle},
		{"missing token", func(r *Record) { r.Token = "" }, ErrInvalidRecord},
		{"negative flat price", func(r *Record) { r.FlatPrice = amt(-1) }, ErrInvalidRecord},
		{"missing cycle", func(r *Record) { r.CycleDuration = "" }, ErrInvalidRecord},
		{"tiered without tiers", func(r *Record) { r.Tiers = nil }, ErrInvalidRecord},
		{"flat with tiers", func(r *Record) { r.ChargeStyle = ChargeStyleFlatRate }, ErrInvalidRecord},
		{"usage without meter", func(r *Record) { r.ChargeStyle = ChargeStyleUsageGraduated }, ErrInvalidRecord},
		{"tiered with meter", func(r *Record) { r.UsageMeterID = "m" }, ErrInvalidRecord},
		{"bad tier table", func(r *Record) { r.Tiers = TierTable{tier(1, 10, 1, 0)} }, ErrInvalidTierTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("150000000")
	require.NoError(t, err)
	assert.True(t, amt(150_000000).Equal(d))

	huge, err := ParseAmount("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", huge.String())

	for _, bad := range []string{"-1", "1.5", "abc", ""} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "18446744073709551615", Units(^uint64(0)).String())
}
