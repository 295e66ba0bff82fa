package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the validated content of a catalog document
type Catalog struct {
	Pricings      []*pricing.Record
	Coupons       []discount.Coupon
	PassDiscounts []discount.PassDiscount
}

// document is the YAML layout. Amounts are strings so that large values
// survive YAML number parsing.
type document struct {
	Pricings      []pricingDoc      `yaml:"pricings"`
	Coupons       []couponDoc       `yaml:"coupons"`
	PassDiscounts []passDiscountDoc `yaml:"pass_discounts"`
}

type pricingDoc struct {
	ID            int64     `yaml:"id"`
	OrgID         int64     `yaml:"org_id"`
	ProductID     int64     `yaml:"product_id"`
	ChargeStyle   string    `yaml:"charge_style"`
	Token         string    `yaml:"token"`
	FlatPrice     string    `yaml:"flat_price"`
	CycleDuration string    `yaml:"cycle_duration"`
	UsageMeterID  string    `yaml:"usage_meter_id"`
	Active        *bool     `yaml:"active"`
	Restricted    bool      `yaml:"restricted"`
	Tiers         []tierDoc `yaml:"tiers"`
}

type tierDoc struct {
	LowerBound    uint64 `yaml:"lower_bound"`
	UpperBound    uint64 `yaml:"upper_bound"`
	PricePerUnit  string `yaml:"price_per_unit"`
	PriceFlatRate string `yaml:"price_flat_rate"`
}

type discountDoc struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

type couponDoc struct {
	OrgID       int64     `yaml:"org_id"`
	Code        string    `yaml:"code"`
	ExpiresAt   time.Time `yaml:"expires_at"`
	discountDoc `yaml:",inline"`
}

type passDiscountDoc struct {
	OrgID       int64  `yaml:"org_id"`
	Holder      string `yaml:"holder"`
	discountDoc `yaml:",inline"`
}

// Load decodes and validates a catalog document. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	cat := &Catalog{}
	seen := make(map[int64]bool, len(doc.Pricings))
	for i, pd := range doc.Pricings {
		rec, err := pd.record()
		if err != nil {
			return nil, fmt.Errorf("%w: pricings[%d]: %v", ErrInvalidCatalog, i, err)
		}
		if rec.ID <= 0 {
			return nil, fmt.Errorf("%w: pricings[%d]: id must be positive", ErrInvalidCatalog, i)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("%w: duplicate pricing id %d", ErrInvalidCatalog, rec.ID)
		}
		seen[rec.ID] = true
		cat.Pricings = append(cat.Pricings, rec)
	}

	for i, cd := range doc.Coupons {
		d, err := cd.discount()
		if err != nil {
			return nil, fmt.Errorf("%w: coupons[%d]: %v", ErrInvalidCatalog, i, err)
		}
		cat.Coupons = append(cat.Coupons, discount.Coupon{
			OrgID:     cd.OrgID,
			Code:      cd.Code,
			Discount:  d,
			ExpiresAt: cd.ExpiresAt,
		})
	}

	for i, pd := range doc.PassDiscounts {
		d, err := pd.discount()
		if err != nil {
			return nil, fmt.Errorf("%w: pass_discounts[%d]: %v", ErrInvalidCatalog, i, err)
		}
		cat.PassDiscounts = append(cat.PassDiscounts, discount.PassDiscount{
			OrgID:    pd.OrgID,
			Holder:   pd.Holder,
			Discount: d,
		})
	}

	return cat, nil
}

func (pd pricingDoc) record() (*pricing.Record, error) {
	style, err := pricing.ParseChargeStyle(pd.ChargeStyle)
	if err != nil {
		return nil, err
	}

	rec := &pricing.Record{
		ID:           pd.ID,
		OrgID:        pd.OrgID,
		ProductID:    pd.ProductID,
		ChargeStyle:  style,
		Token:        pd.Token,
		UsageMeterID: pd.UsageMeterID,
		Active:       pd.Active == nil || *pd.Active,
		Restricted:   pd.Restricted,
	}

	if pd.FlatPrice != "" {
		if rec.FlatPrice, err = pricing.ParseAmount(pd.FlatPrice); err != nil {
			return nil, err
		}
	}
	if pd.CycleDuration != "" {
		if rec.CycleDuration, err = cycle.ParseDuration(pd.CycleDuration); err != nil {
			return nil, err
		}
	}

	for _, td := range pd.Tiers {
		tier := pricing.Tier{
			LowerBound: td.LowerBound,
			UpperBound: pricing.BoundFromWire(td.UpperBound),
		}
		if td.PricePerUnit != "" {
			if tier.PricePerUnit, err = pricing.ParseAmount(td.PricePerUnit); err != nil {
				return nil, err
			}
		}
		if td.PriceFlatRate != "" {
			if tier.PriceFlatRate, err = pricing.ParseAmount(td.PriceFlatRate); err != nil {
				return nil, err
			}
		}
		rec.Tiers = append(rec.Tiers, tier)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (dd discountDoc) discount() (proration.Discount, error) {
	d := proration.Discount{Kind: proration.DiscountKind(dd.Kind)}
	if dd.Value != "" {
		v, err := decimal.NewFromString(dd.Value)
		if err != nil {
			return proration.Discount{}, fmt.Errorf("invalid discount value %q: %w", dd.Value, err)
		}
		d.Value = v
	}
	if err := d.Validate(); err != nil {
		return proration.Discount{}, err
	}
	return d, nil
}

// Apply writes every pricing of the catalog to the store and replaces the
// discount table. Pricings are written first so that a failing write leaves
// the previous discounts in place.
func Apply(ctx context.Context, cat *Catalog, store storage.PricingWriter, provider *discount.StaticProvider) error {
	for _, rec := range cat.Pricings {
		if err := store.PutPricing(ctx, rec); err != nil {
			return fmt.Errorf("failed to put pricing %d: %w", rec.ID, err)
		}
	}
	if provider != nil {
		if err := provider.Replace(cat.Coupons, cat.PassDiscounts); err != nil {
			return fmt.Errorf("failed to replace discounts: %w", err)
		}
	}
	return nil
}
