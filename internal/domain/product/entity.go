// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// Product is the catalog row the fulfillment core prices and stocks against.
// Stock and IsInStock mirror the inventory ledger and are only written by it.
type Product struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SKU           string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name          string         `gorm:"not null;size:255" json:"name"`
	Thumbnail     string         `gorm:"size:500" json:"thumbnail"`
	BasePrice     int64          `gorm:"not null" json:"base_price"` // Price in cents
	DiscountPrice *int64         `json:"discount_price,omitempty"`
	Currency      string         `gorm:"size:3;not null" json:"currency"`
	IsActive      bool           `gorm:"not null" json:"is_active"`
	Stock         int            `gorm:"not null;default:0" json:"stock"`
	IsInStock     bool           `gorm:"not null" json:"is_in_stock"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"variants,omitempty"`
}

// ProductVariant represents a purchasable variant (size, color, etc.).
// A zero BasePrice inherits the product price.
type ProductVariant struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ProductID     uint           `gorm:"not null;index" json:"product_id"`
	SKU           string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name          string         `gorm:"not null;size:255" json:"name"`
	BasePrice     int64          `json:"base_price"`
	DiscountPrice *int64         `json:"discount_price,omitempty"`
	Stock         int            `gorm:"not null;default:0" json:"stock"`
	IsInStock     bool           `gorm:"not null" json:"is_in_stock"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string        { return "products" }
func (ProductVariant) TableName() string { return "product_variants" }

// Models lists the catalogue tables
func Models() []any {
	return []any{&Product{}, &ProductVariant{}}
}

// PriceSnapshot is the price captured onto carts and orders
type PriceSnapshot struct {
	BasePrice     int64  `gorm:"not null" json:"base_price"`
	DiscountPrice *int64 `json:"discount_price,omitempty"`
	Currency      string `gorm:"size:3" json:"currency"`
}

// Variant returns the variant with the given SKU
func (p *Product) Variant(sku string) (*ProductVariant, bool) {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Snapshot returns the current price for the product or one of its variants
func (p *Product) Snapshot(v *ProductVariant) PriceSnapshot {
	snap := PriceSnapshot{
		BasePrice:     p.BasePrice,
		DiscountPrice: p.DiscountPrice,
		Currency:      p.Currency,
	}
	if v != nil && v.BasePrice > 0 {
		snap.BasePrice = v.BasePrice
		snap.DiscountPrice = v.DiscountPrice
	}
	return snap
}

// Title returns the display title, including the variant name when present
func (p *Product) Title(v *ProductVariant) string {
	if v == nil {
		return p.Name
	}
	return p.Name + " - " + v.Name
}
