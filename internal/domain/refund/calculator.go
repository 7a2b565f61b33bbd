// internal/domain/refund/calculator.go
package refund

import (
	"github.com/shopspring/decimal"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
)

// Fees are the deductions applied when a refund is processed
type Fees struct {
	ProcessingPercent decimal.Decimal
	RestockingPercent decimal.Decimal
}

// Calculate prorates the order's billing over the refunded items.
//
// The coupon share of the refunded items was never paid and is deducted.
// Shipping is only paid back for FULL and SHIPPING refunds. The total never
// exceeds what is left to refund on the order.
func Calculate(o *order.Order, t Type, items []RefundItem, fees Fees) Amounts {
	var a Amounts

	if t != TypeShipping {
		for _, item := range items {
			a.ItemsTotal += item.Amount
		}
	}

	subtotal := o.Billing.TotalAmount - o.Billing.Discount
	switch t {
	case TypeFull:
		a.CouponRefund = o.Billing.CouponDiscount
		a.ShippingRefund = o.Billing.DeliveryCharge
	case TypePartial:
		a.CouponRefund = pricing.Prorate(o.Billing.CouponDiscount, a.ItemsTotal, subtotal)
	case TypeShipping:
		a.ShippingRefund = o.Billing.DeliveryCharge
	}

	net := a.ItemsTotal - a.CouponRefund
	if net < 0 {
		net = 0
	}
	a.ProcessingFee = pricing.Percent(net, fees.ProcessingPercent)
	a.RestockingFee = pricing.Percent(net, fees.RestockingPercent)

	total := net + a.ShippingRefund + a.TaxRefund - a.ProcessingFee - a.RestockingFee
	if total < 0 {
		total = 0
	}
	if left := o.RefundableBalance(); total > left {
		total = left
	}
	a.TotalRefundAmount = total

	if o.Billing.PayableAmount > 0 && o.Billing.WalletUsed > 0 {
		a.WalletRefund = pricing.Prorate(o.Billing.WalletUsed, total, o.Billing.PayableAmount)
	}
	return a
}
