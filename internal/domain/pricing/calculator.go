// Package pricing computes order billing from line snapshots. It has no storage
// and no side effects so the same numbers back cart previews, coupon previews
// and the checkout itself.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DiscountType is the way a coupon reduces the bill
type DiscountType string

const (
	DiscountPercentage   DiscountType = "PERCENTAGE"
	DiscountFixedAmount  DiscountType = "FIXED_AMOUNT"
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced line of a cart or order. Prices are in cents.
type Line struct {
	BasePrice     int64
	DiscountPrice *int64
	Quantity      int
}

// UnitPrice returns the price actually charged per unit
func (l Line) UnitPrice() int64 {
	if l.DiscountPrice != nil && *l.DiscountPrice < l.BasePrice {
		return *l.DiscountPrice
	}
	return l.BasePrice
}

// CouponTerms is the subset of a coupon the calculator needs.
// Value is a percentage for PERCENTAGE and cents for FIXED_AMOUNT.
type CouponTerms struct {
	Type              DiscountType
	Value             decimal.Decimal
	MaxDiscountAmount *int64
}

// Options carries the delivery rules from configuration
type Options struct {
	DeliveryCharge        int64
	FreeDeliveryThreshold int64
}

// Breakdown is the billing snapshot stored on an order
type Breakdown struct {
	TotalAmount    int64 `json:"total_amount"`
	Discount       int64 `json:"discount"`
	CouponDiscount int64 `json:"coupon_discount"`
	DeliveryCharge int64 `json:"delivery_charge"`
	PayableAmount  int64 `json:"payable_amount"`
}

// Subtotal is the amount after item discounts and before coupon and delivery
func (b Breakdown) Subtotal() int64 {
	return b.TotalAmount - b.Discount
}

// Calculate prices the lines, applies the coupon to the post-discount
// subtotal and adds delivery.
func Calculate(lines []Line, coupon *CouponTerms, opts Options) Breakdown {
	var b Breakdown
	for _, l := range lines {
		qty := int64(l.Quantity)
		b.TotalAmount += l.BasePrice * qty
		b.Discount += (l.BasePrice - l.UnitPrice()) * qty
	}
	if len(lines) == 0 {
		return b
	}

	subtotal := b.Subtotal()
	b.CouponDiscount = CouponDiscount(coupon, subtotal)

	freeShipping := coupon != nil && coupon.Type == DiscountFreeShipping
	if !freeShipping && (opts.FreeDeliveryThreshold == 0 || subtotal < opts.FreeDeliveryThreshold) {
		b.DeliveryCharge = opts.DeliveryCharge
	}

	b.PayableAmount = Payable(b.TotalAmount, b.Discount, b.CouponDiscount, b.DeliveryCharge)
	return b
}

// CouponDiscount returns the coupon reduction for a subtotal. It never
// exceeds the subtotal.
func CouponDiscount(coupon *CouponTerms, subtotal int64) int64 {
	if coupon == nil || subtotal <= 0 {
		return 0
	}

	var discount int64
	switch coupon.Type {
	case DiscountPercentage:
		discount = Percent(subtotal, coupon.Value)
		if coupon.MaxDiscountAmount != nil && *coupon.MaxDiscountAmount > 0 && discount > *coupon.MaxDiscountAmount {
			discount = *coupon.MaxDiscountAmount
		}
	case DiscountFixedAmount:
		discount = coupon.Value.Round(0).IntPart()
	default:
		return 0
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Payable applies the billing formula, floored at zero
func Payable(total, discount, couponDiscount, delivery int64) int64 {
	p := total - discount - couponDiscount + delivery
	if p < 0 {
		return 0
	}
	return p
}

// Percent returns pct percent of amount, rounded half up to the cent
func Percent(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

// Prorate returns amount scaled by part/whole, rounded half up
func Prorate(amount, part, whole int64) int64 {
	if whole <= 0 || amount == 0 {
		return 0
	}
	if part >= whole {
		return amount
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromInt(part)).Div(decimal.NewFromInt(whole)).Round(0).IntPart()
}
