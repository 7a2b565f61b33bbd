// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/your-org/order-fulfillment/internal/domain/pricing"
	"github.com/your-org/order-fulfillment/internal/domain/product"
)

// Cart is owned 1:1 by a user. Totals are derived from the selected items
// and rewritten on every mutation.
type Cart struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalAmount   int64      `gorm:"not null;default:0" json:"total_amount"`
	TotalDiscount int64      `gorm:"not null;default:0" json:"total_discount"`
	PayableAmount int64      `gorm:"not null;default:0" json:"payable_amount"`
	Items         []CartItem `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CartItem is one line of a cart with the price captured when it was added
type CartItem struct {
	ID         uint                  `gorm:"primaryKey" json:"id"`
	CartID     uint                  `gorm:"not null;index" json:"cart_id"`
	ProductID  uint                  `gorm:"not null;index" json:"product_id"`
	VariantSKU string                `gorm:"size:100" json:"variant_sku,omitempty"`
	Title      string                `gorm:"size:255" json:"title"`
	Thumbnail  string                `gorm:"size:500" json:"thumbnail"`
	Quantity   int                   `gorm:"not null" json:"quantity"`
	Price      product.PriceSnapshot `gorm:"embedded;embeddedPrefix:price_" json:"price"`
	IsSelected bool                  `gorm:"not null" json:"is_selected"`
	Position   int                   `gorm:"not null" json:"position"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }

// Models lists the tables owned by the cart
func Models() []any {
	return []any{&Cart{}, &CartItem{}}
}

// Line converts the item to a pricing line
func (i CartItem) Line() pricing.Line {
	return pricing.Line{
		BasePrice:     i.Price.BasePrice,
		DiscountPrice: i.Price.DiscountPrice,
		Quantity:      i.Quantity,
	}
}

// Selected returns the items that will be checked out
func (c *Cart) Selected() []CartItem {
	var out []CartItem
	for _, item := range c.Items {
		if item.IsSelected {
			out = append(out, item)
		}
	}
	return out
}

// Lines returns pricing lines for the selected items
func (c *Cart) Lines() []pricing.Line {
	selected := c.Selected()
	lines := make([]pricing.Line, 0, len(selected))
	for _, item := range selected {
		lines = append(lines, item.Line())
	}
	return lines
}

// Recompute refreshes the derived totals from the selected items
func (c *Cart) Recompute() {
	b := pricing.Calculate(c.Lines(), nil, pricing.Options{})
	c.TotalAmount = b.TotalAmount
	c.TotalDiscount = b.Discount
	c.PayableAmount = b.PayableAmount
}

// AddItemRequest represents add to cart request
type AddItemRequest struct {
	ProductID  uint   `json:"product_id" binding:"required"`
	VariantSKU string `json:"variant_sku"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest represents update cart item request
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// SelectItemsRequest toggles which items are checked out
type SelectItemsRequest struct {
	ItemIDs  []uint `json:"item_ids" binding:"required"`
	Selected bool   `json:"selected"`
}
