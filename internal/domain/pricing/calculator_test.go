package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func price(v int64) *int64 { return &v }

func scenarioLines() []Line {
	return []Line{
		{BasePrice: 10000, Quantity: 2},
		{BasePrice: 5000, DiscountPrice: price(4000), Quantity: 1},
	}
}

func TestCalculatePercentageCouponCapped(t *testing.T) {
	coupon := &CouponTerms{Type: DiscountPercentage, Value: decimal.NewFromInt(10), MaxDiscountAmount: price(1500)}

	b := Calculate(scenarioLines(), coupon, Options{})

	assert.Equal(t, int64(25000), b.TotalAmount)
	assert.Equal(t, int64(1000), b.Discount)
	assert.Equal(t, int64(1500), b.CouponDiscount)
	assert.Equal(t, int64(0), b.DeliveryCharge)
	assert.Equal(t, int64(22500), b.PayableAmount)
}

func TestCalculatePercentageCouponUnderCap(t *testing.T) {
	coupon := &CouponTerms{Type: DiscountPercentage, Value: decimal.NewFromInt(10), MaxDiscountAmount: price(3000)}

	b := Calculate(scenarioLines(), coupon, Options{})

	assert.Equal(t, int64(2400), b.CouponDiscount)
	assert.Equal(t, int64(21600), b.PayableAmount)
}

func TestCalculateDelivery(t *testing.T) {
	opts := Options{DeliveryCharge: 4000, FreeDeliveryThreshold: 50000}

	b := Calculate(scenarioLines(), nil, opts)
	assert.Equal(t, int64(4000), b.DeliveryCharge)
	assert.Equal(t, int64(25000-1000+4000), b.PayableAmount)

	big := []Line{{BasePrice: 60000, Quantity: 1}}
	b = Calculate(big, nil, opts)
	assert.Equal(t, int64(0), b.DeliveryCharge)
	assert.Equal(t, int64(60000), b.PayableAmount)

	b = Calculate(scenarioLines(), &CouponTerms{Type: DiscountFreeShipping}, opts)
	assert.Equal(t, int64(0), b.DeliveryCharge)
	assert.Equal(t, int64(0), b.CouponDiscount)
	assert.Equal(t, int64(24000), b.PayableAmount)
}

func TestCalculateFixedAmountNeverExceedsSubtotal(t *testing.T) {
	lines := []Line{{BasePrice: 500, Quantity: 1}}
	coupon := &CouponTerms{Type: DiscountFixedAmount, Value: decimal.NewFromInt(2000)}

	b := Calculate(lines, coupon, Options{DeliveryCharge: 300})

	assert.Equal(t, int64(500), b.CouponDiscount)
	assert.Equal(t, int64(300), b.PayableAmount)
}

func TestCalculateEmpty(t *testing.T) {
	b := Calculate(nil, nil, Options{DeliveryCharge: 4000})
	assert.Equal(t, Breakdown{}, b)
}

func TestPercentRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(13), Percent(125, decimal.NewFromInt(10)))
	assert.Equal(t, int64(12), Percent(124, decimal.NewFromInt(10)))
	assert.Equal(t, int64(3), Percent(100, decimal.RequireFromString("2.5")))
}

func TestProrate(t *testing.T) {
	assert.Equal(t, int64(500), Prorate(1500, 8000, 24000))
	assert.Equal(t, int64(1500), Prorate(1500, 24000, 24000))
	assert.Equal(t, int64(0), Prorate(1500, 100, 0))
}

func TestPayableFloorsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), Payable(100, 50, 80, 0))
	assert.Equal(t, int64(70), Payable(100, 50, 0, 20))
}
