// internal/domain/coupon/entity.go
package coupon

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
)

// Coupon is a global discount code
type Coupon struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	Code              string               `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Description       string               `gorm:"size:255" json:"description"`
	DiscountType      pricing.DiscountType `gorm:"not null;size:20" json:"discount_type"`
	DiscountValue     decimal.Decimal      `gorm:"type:numeric(12,2);not null" json:"discount_value"`
	MaxDiscountAmount *int64               `json:"max_discount_amount,omitempty"`
	MinOrderAmount    *int64               `json:"min_order_amount,omitempty"`
	ValidFrom         time.Time            `gorm:"not null" json:"valid_from"`
	ValidTo           time.Time            `gorm:"not null" json:"valid_to"`
	UsageLimit        int                  `gorm:"not null;default:0" json:"usage_limit"`          // 0 = unlimited
	UsageLimitPerUser int                  `gorm:"not null;default:0" json:"usage_limit_per_user"` // 0 = unlimited
	UsageCount        int                  `gorm:"not null;default:0" json:"usage_count"`
	IsActive          bool                 `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// CouponUsage is one ledger entry. A redemption is +1 and a restoration
// appends a -1 entry for the same order, so rows are never edited.
type CouponUsage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CouponID       uint      `gorm:"not null;index;uniqueIndex:idx_coupon_usage_entry" json:"coupon_id"`
	UserID         uint      `gorm:"not null;index;uniqueIndex:idx_coupon_usage_entry" json:"user_id"`
	OrderID        string    `gorm:"not null;size:50;uniqueIndex:idx_coupon_usage_entry" json:"order_id"`
	Quantity       int       `gorm:"not null;uniqueIndex:idx_coupon_usage_entry" json:"quantity"`
	DiscountAmount int64     `gorm:"not null" json:"discount_amount"`
	UsedAt         time.Time `gorm:"not null" json:"used_at"`
}

// TableName overrides
func (Coupon) TableName() string      { return "coupons" }
func (CouponUsage) TableName() string { return "coupon_usages" }

// Models lists the tables owned by the coupon ledger
func Models() []any {
	return []any{&Coupon{}, &CouponUsage{}}
}

// Terms returns what the pricing calculator needs from the coupon
func (c *Coupon) Terms() *pricing.CouponTerms {
	return &pricing.CouponTerms{
		Type:              c.DiscountType,
		Value:             c.DiscountValue,
		MaxDiscountAmount: c.MaxDiscountAmount,
	}
}

// InWindow reports whether t falls inside the validity window
func (c *Coupon) InWindow(t time.Time) bool {
	return !t.Before(c.ValidFrom) && !t.After(c.ValidTo)
}

// CreateCouponRequest represents coupon creation data
type CreateCouponRequest struct {
	Code              string               `json:"code" binding:"required"`
	Description       string               `json:"description"`
	DiscountType      pricing.DiscountType `json:"discount_type" binding:"required"`
	DiscountValue     decimal.Decimal      `json:"discount_value"`
	MaxDiscountAmount *int64               `json:"max_discount_amount,omitempty"`
	MinOrderAmount    *int64               `json:"min_order_amount,omitempty"`
	ValidFrom         time.Time            `json:"valid_from" binding:"required"`
	ValidTo           time.Time            `json:"valid_to" binding:"required"`
	UsageLimit        int                  `json:"usage_limit" binding:"min=0"`
	UsageLimitPerUser int                  `json:"usage_limit_per_user" binding:"min=0"`
}
