// internal/domain/order/entity.go
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
	"github.com/your-org/order-fulfillment/internal/domain/product"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
)

// Payment methods accepted at checkout
const (
	PaymentMethodOnline = "ONLINE"
	PaymentMethodCOD    = "COD"
)

// Order represents the order entity
type Order struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   string      `gorm:"uniqueIndex;not null;size:40" json:"order_id"`
	UserID    uint        `gorm:"not null;index" json:"user_id"`
	AddressID uint        `gorm:"not null" json:"address_id"`
	Status    OrderStatus `gorm:"not null;size:20;index" json:"status"`

	Billing BillingInfo `gorm:"embedded;embeddedPrefix:billing_" json:"billing"`

	CancelReason        string `gorm:"type:text" json:"cancel_reason,omitempty"`
	TotalRefundedAmount int64  `gorm:"not null;default:0" json:"total_refunded_amount"`

	// Timestamps
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// BillingInfo is the money snapshot taken at checkout (embedded in Order)
type BillingInfo struct {
	TotalAmount     int64         `gorm:"not null" json:"total_amount"`
	Discount        int64         `gorm:"not null;default:0" json:"discount"`
	CouponDiscount  int64         `gorm:"not null;default:0" json:"coupon_discount"`
	AppliedCouponID *uint         `json:"applied_coupon_id,omitempty"`
	CouponCode      string        `gorm:"size:50" json:"coupon_code,omitempty"`
	DeliveryCharge  int64         `gorm:"not null;default:0" json:"delivery_charge"`
	PayableAmount   int64         `gorm:"not null" json:"payable_amount"`
	Currency        string        `gorm:"size:3" json:"currency"`
	PaymentStatus   PaymentStatus `gorm:"not null;size:20" json:"payment_status"`
	PaymentMethod   string        `gorm:"not null;size:20" json:"payment_method"`
	WalletUsed      int64         `gorm:"not null;default:0" json:"wallet_used"`
	CashbackUsed    int64         `gorm:"not null;default:0" json:"cashback_used"`
	TransactionID   string        `gorm:"size:100" json:"transaction_id,omitempty"`
	GatewayURL      string        `gorm:"size:500" json:"gateway_url,omitempty"`
}

// OrderItem represents items in an order. Rows are written once at checkout.
type OrderItem struct {
	ID         uint                  `gorm:"primaryKey" json:"id"`
	OrderID    uint                  `gorm:"not null;index" json:"-"`
	ProductID  uint                  `gorm:"not null;index" json:"product_id"`
	VariantSKU string                `gorm:"size:100" json:"variant_sku,omitempty"`
	Title      string                `gorm:"not null;size:255" json:"title"`
	Thumbnail  string                `gorm:"size:500" json:"thumbnail,omitempty"`
	Quantity   int                   `gorm:"not null" json:"quantity"`
	Price      product.PriceSnapshot `gorm:"embedded;embeddedPrefix:price_" json:"price"`
	UnitPrice  int64                 `gorm:"not null" json:"unit_price"`
	LineTotal  int64                 `gorm:"not null" json:"line_total"` // Quantity * UnitPrice
	CreatedAt  time.Time             `json:"created_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"-"`
	FromStatus OrderStatus `gorm:"size:20" json:"from_status,omitempty"`
	Status     OrderStatus `gorm:"not null;size:20" json:"status"`
	Comment    string      `gorm:"type:text" json:"comment"`
	CreatedBy  uint        `gorm:"index" json:"created_by"` // User ID who made the change
	CreatedAt  time.Time   `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Models lists the tables owned by the order
func Models() []any {
	return []any{&Order{}, &OrderItem{}, &OrderStatusHistory{}}
}

// NewOrderID returns a human readable order id, ORD-YYYYMMDD-XXXXXXXX
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), randomSuffix())
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// NewItem snapshots a priced line onto an order item
func NewItem(productID uint, variantSKU, title, thumbnail string, qty int, price product.PriceSnapshot) OrderItem {
	line := pricing.Line{BasePrice: price.BasePrice, DiscountPrice: price.DiscountPrice, Quantity: qty}
	unit := line.UnitPrice()
	return OrderItem{
		ProductID:  productID,
		VariantSKU: variantSKU,
		Title:      title,
		Thumbnail:  thumbnail,
		Quantity:   qty,
		Price:      price,
		UnitPrice:  unit,
		LineTotal:  unit * int64(qty),
	}
}

// Business methods for Order

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return CanTransition(o.Status, OrderStatusCancelled)
}

// Item finds the line for a product and optional variant
func (o *Order) Item(productID uint, variantSKU string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ProductID == productID && o.Items[i].VariantSKU == variantSKU {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// RefundableBalance is what can still be paid back on the order
func (o *Order) RefundableBalance() int64 {
	left := o.Billing.PayableAmount - o.TotalRefundedAmount
	if left < 0 {
		return 0
	}
	return left
}

// Actor identifies who triggered a change
type Actor struct {
	ID   uint   `json:"id"`
	Role string `json:"role"`
}

// Actor roles
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
	RoleSystem   = "SYSTEM"
)

// System is the actor for changes made by collaborators and callbacks
var System = Actor{Role: RoleSystem}
