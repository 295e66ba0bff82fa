package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/passbill/pkg/proration"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrCouponExpired  = errors.New("coupon expired")
)

// Provider supplies the discounts a checkout is entitled to. It decides
// entitlement only; the billing engine applies the discounts.
type Provider interface {
	// Coupon returns the one-time discount for a coupon code. An empty code
	// returns no discount.
	Coupon(ctx context.Context, orgID int64, code string) (proration.Discount, error)
	// PassDiscount returns the permanent discount of a pass holder
	PassDiscount(ctx context.Context, orgID int64, holder string) (proration.Discount, error)
}

// Coupon is a one-time discount code of an organization
type Coupon struct {
	OrgID     int64              `json:"org_id" yaml:"org_id"`
	Code      string             `json:"code" yaml:"code"`
	Discount  proration.Discount `json:"discount" yaml:"-"`
	ExpiresAt time.Time          `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// PassDiscount is a permanent discount for pass holders of an organization.
// An empty Holder applies to every holder without a specific entry.
type PassDiscount struct {
	OrgID    int64              `json:"org_id" yaml:"org_id"`
	Holder   string             `json:"holder,omitempty" yaml:"holder,omitempty"`
	Discount proration.Discount `json:"discount" yaml:"-"`
}

type couponKey struct {
	orgID int64
	code  string
}

type passKey struct {
	orgID  int64
	holder string
}

// StaticProvider serves discounts from an in-memory table that can be
// replaced atomically, typically from the catalog
type StaticProvider struct {
	mu      sync.RWMutex
	coupons map[couponKey]Coupon
	passes  map[passKey]proration.Discount
	now     func() time.Time
}

// NewStaticProvider creates an empty provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		coupons: make(map[couponKey]Coupon),
		passes:  make(map[passKey]proration.Discount),
		now:     time.Now,
	}
}

var _ Provider = (*StaticProvider)(nil)

// Replace swaps the whole discount table. Invalid discounts are rejected and
// the previous table is kept.
func (p *StaticProvider) Replace(coupons []Coupon, passes []PassDiscount) error {
	nextCoupons := make(map[couponKey]Coupon, len(coupons))
	for _, c := range coupons {
		if c.Code == "" {
			return fmt.Errorf("coupon for org %d has no code", c.OrgID)
		}
		if err := c.Discount.Validate(); err != nil {
			return fmt.Errorf("coupon %s: %w", c.Code, err)
		}
		nextCoupons[couponKey{c.OrgID, normalizeCode(c.Code)}] = c
	}

	nextPasses := make(map[passKey]proration.Discount, len(passes))
	for _, pd := range passes {
		if err := pd.Discount.Validate(); err != nil {
			return fmt.Errorf("pass discount for org %d: %w", pd.OrgID, err)
		}
		nextPasses[passKey{pd.OrgID, pd.Holder}] = pd.Discount
	}

	p.mu.Lock()
	p.coupons = nextCoupons
	p.passes = nextPasses
	p.mu.Unlock()
	return nil
}

func (p *StaticProvider) Coupon(ctx context.Context, orgID int64, code string) (proration.Discount, error) {
	if code == "" {
		return proration.Discount{}, nil
	}

	p.mu.RLock()
	c, ok := p.coupons[couponKey{orgID, normalizeCode(code)}]
	p.mu.RUnlock()

	if !ok {
		return proration.Discount{}, fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	}
	if !c.ExpiresAt.IsZero() && !p.now().Before(c.ExpiresAt) {
		return proration.Discount{}, fmt.Errorf("%w: %s", ErrCouponExpired, code)
	}
	return c.Discount, nil
}

func (p *StaticProvider) PassDiscount(ctx context.Context, orgID int64, holder string) (proration.Discount, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if d, ok := p.passes[passKey{orgID, holder}]; ok {
		return d, nil
	}
	return p.passes[passKey{orgID, ""}], nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
