package catalog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/passbill/pkg/cycle"
	"github.com/platinummonkey/passbill/pkg/discount"
	"github.com/platinummonkey/passbill/pkg/pricing"
	"github.com/platinummonkey/passbill/pkg/proration"
	"github.com/platinummonkey/passbill/pkg/storage/memory"
)

const sample = `
pricings:
  - id: 1
    org_id: 7
    charge_style: tiered_graduated
    token: USDC
    cycle_duration: monthly
    tiers:
      - {lower_bound: 1, upper_bound: 10, price_per_unit: "100"}
      - {lower_bound: 11, upper_bound: 0, price_per_unit: "50", price_flat_rate: "5"}
  - id: 2
    org_id: 7
    charge_style: one_time
    token: USDC
    flat_price: "999"
    active: false
coupons:
  - org_id: 7
    code: LAUNCH
    kind: percent
    value: "10"
    expires_at: 2030-01-01T00:00:00Z
pass_discounts:
  - {org_id: 7, kind: fixed, value: "3"}
`

func TestLoad(t *testing.T) {
	cat, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, cat.Pricings, 2)

	graduated := cat.Pricings[0]
	assert.Equal(t, pricing.ChargeStyleTieredGraduated, graduated.ChargeStyle)
	assert.Equal(t, cycle.Monthly, graduated.CycleDuration)
	assert.True(t, graduated.Active)
	require.Len(t, graduated.Tiers, 2)
	assert.True(t, graduated.Tiers[1].UpperBound.IsUnbounded())
	assert.True(t, decimal.NewFromInt(5).Equal(graduated.Tiers[1].PriceFlatRate))

	oneTime := cat.Pricings[1]
	assert.False(t, oneTime.Active)
	assert.True(t, decimal.NewFromInt(999).Equal(oneTime.FlatPrice))

	require.Len(t, cat.Coupons, 1)
	assert.Equal(t, proration.DiscountPercent, cat.Coupons[0].Discount.Kind)
	assert.Equal(t, 2030, cat.Coupons[0].ExpiresAt.Year())

	require.Len(t, cat.PassDiscounts, 1)
	assert.Equal(t, proration.DiscountFixed, cat.PassDiscounts[0].Discount.Kind)
}

func TestLoadEmpty(t *testing.T) {
	cat, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cat.Pricings)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "pricings:\n  - {id: 1, org_id: 1, charge_style: one_time, token: X, colour: red}\n"},
		{"duplicate id", "pricings:\n  - {id: 1, org_id: 1, charge_style: one_time, token: X}\n  - {id: 1, org_id: 1, charge_style: one_time, token: X}\n"},
		{"missing id", "pricings:\n  - {org_id: 1, charge_style: one_time, token: X}\n"},
		{"bad style", "pricings:\n  - {id: 1, org_id: 1, charge_style: metered, token: X}\n"},
		{"negative amount", "pricings:\n  - {id: 1, org_id: 1, charge_style: one_time, token: X, flat_price: \"-1\"}\n"},
		{"fractional amount", "pricings:\n  - {id: 1, org_id: 1, charge_style: one_time, token: X, flat_price: \"1.5\"}\n"},
		{"missing tiers", "pricings:\n  - {id: 1, org_id: 1, charge_style: tiered_volume, token: X, cycle_duration: monthly}\n"},
		{"unsorted tiers", `pricings:
  - id: 1
    org_id: 1
    charge_style: tiered_volume
    token: X
    cycle_duration: monthly
    tiers:
      - {lower_bound: 11, upper_bound: 0, price_per_unit: "1"}
      - {lower_bound: 1, upper_bound: 10, price_per_unit: "2"}
`},
		{"bad discount kind", "coupons:\n  - {org_id: 1, code: A, kind: bogo, value: \"1\"}\n"},
		{"negative discount", "pass_discounts:\n  - {org_id: 1, kind: fixed, value: \"-2\"}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	cat, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	store := memory.New()
	provider := discount.NewStaticProvider()
	require.NoError(t, Apply(ctx, cat, store, provider))

	rec, err := store.GetPricing(ctx, 2)
	require.NoError(t, err)
	assert.False(t, rec.Active)

	list, err := store.ListPricings(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	coupon, err := provider.Coupon(ctx, 7, "launch")
	require.NoError(t, err)
	assert.Equal(t, proration.DiscountPercent, coupon.Kind)

	pass, err := provider.PassDiscount(ctx, 7, "0xabc")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(pass.Value))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	src := FileSource{Path: path}
	cat, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat.Pricings, 2)
	assert.Equal(t, "file://"+path, src.String())

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Fetch(context.Background())
	assert.Error(t, err)
}

type fakeS3 struct {
	body  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Source(t *testing.T) {
	fake := &fakeS3{body: sample}
	src := &S3Source{client: fake, bucket: "billing", key: "catalog.yaml"}

	cat, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat.Pricings, 2)
	assert.Equal(t, "billing", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "catalog.yaml", aws.ToString(fake.input.Key))
	assert.Equal(t, "s3://billing/catalog.yaml", src.String())

	fake.err = errors.New("access denied")
	_, err = src.Fetch(context.Background())
	assert.ErrorContains(t, err, "access denied")

	fake.err = nil
	fake.body = "pricings: [{id: 0}]"
	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestNewS3SourceRequiresLocation(t *testing.T) {
	_, err := NewS3Source(context.Background(), S3Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pricings: []\n"), 0o644))

	var mu sync.Mutex
	var loaded []*Catalog
	w := NewWatcher(path, func(ctx context.Context, cat *Catalog) error {
		mu.Lock()
		loaded = append(loaded, cat)
		mu.Unlock()
		return nil
	}, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	// an invalid file is skipped
	require.NoError(t, os.WriteFile(path, []byte("pricings: [{id: 0}]\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	// unrelated files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loaded) > 0 && len(loaded[len(loaded)-1].Pricings) == 2
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
