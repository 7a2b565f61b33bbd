// internal/domain/inventory/entity.go
package inventory

import (
	"time"

	"github.com/your-org/order-fulfillment/internal/domain/product"
)

// MovementType represents the type of inventory movement
type MovementType string

const (
	MovementInitial    MovementType = "INITIAL"
	MovementRestock    MovementType = "RESTOCK"
	MovementSale       MovementType = "SALE"
	MovementReturn     MovementType = "RETURN"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementTransfer   MovementType = "TRANSFER"
	MovementDamaged    MovementType = "DAMAGED"
	MovementExpired    MovementType = "EXPIRED"
)

// Valid reports whether t is a known movement type
func (t MovementType) Valid() bool {
	switch t {
	case MovementInitial, MovementRestock, MovementSale, MovementReturn,
		MovementAdjustment, MovementTransfer, MovementDamaged, MovementExpired:
		return true
	}
	return false
}

// Bucket selects which stock count a movement touches
type Bucket string

const (
	BucketSellable Bucket = "SELLABLE"
	BucketDamaged  Bucket = "DAMAGED"
)

// column returns the quantity column backing the bucket
func (b Bucket) column() string {
	if b == BucketDamaged {
		return "damaged_quantity"
	}
	return "stock_quantity"
}

// Inventory is the main stock record of a product
type Inventory struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ProductID         uint       `gorm:"uniqueIndex;not null" json:"product_id"`
	SKU               string     `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	StockQuantity     int        `gorm:"not null;default:0" json:"stock_quantity"`
	ReservedQuantity  int        `gorm:"not null;default:0" json:"reserved_quantity"`
	DamagedQuantity   int        `gorm:"not null;default:0" json:"damaged_quantity"`
	LowStockThreshold int        `gorm:"not null;default:0" json:"low_stock_threshold"`
	TotalSold         int        `gorm:"not null;default:0" json:"total_sold"`
	LastRestockedAt   *time.Time `json:"last_restocked_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Variants []VariantStock `gorm:"foreignKey:InventoryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"variants,omitempty"`
}

// VariantStock is the stock record of one product variant
type VariantStock struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	InventoryID       uint       `gorm:"not null;index" json:"inventory_id"`
	ProductID         uint       `gorm:"not null;index" json:"product_id"`
	SKU               string     `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	StockQuantity     int        `gorm:"not null;default:0" json:"stock_quantity"`
	ReservedQuantity  int        `gorm:"not null;default:0" json:"reserved_quantity"`
	DamagedQuantity   int        `gorm:"not null;default:0" json:"damaged_quantity"`
	LowStockThreshold int        `gorm:"not null;default:0" json:"low_stock_threshold"`
	TotalSold         int        `gorm:"not null;default:0" json:"total_sold"`
	LastRestockedAt   *time.Time `json:"last_restocked_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// InventoryHistory is the ledger row written for every stock delta
type InventoryHistory struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	InventoryID    uint         `gorm:"not null;index" json:"inventory_id"`
	ProductID      uint         `gorm:"not null;index" json:"product_id"`
	VariantSKU     *string      `gorm:"size:100" json:"variant_sku,omitempty"`
	Bucket         Bucket       `gorm:"not null;size:20" json:"bucket"`
	Type           MovementType `gorm:"not null;size:20" json:"type"`
	QuantityBefore int          `gorm:"not null" json:"quantity_before"`
	QuantityAfter  int          `gorm:"not null" json:"quantity_after"`
	Delta          int          `gorm:"not null" json:"delta"`
	ReferenceID    string       `gorm:"size:100;index" json:"reference_id,omitempty"`
	Reason         string       `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt      time.Time    `gorm:"index" json:"created_at"`
}

// StockAlert records a product crossing its low stock threshold
type StockAlert struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	InventoryID uint       `gorm:"not null;index" json:"inventory_id"`
	ProductID   uint       `gorm:"not null;index" json:"product_id"`
	SKU         string     `gorm:"not null;size:100" json:"sku"`
	AlertType   string     `gorm:"not null;size:20" json:"alert_type"` // LOW_STOCK, OUT_OF_STOCK
	Quantity    int        `json:"quantity"`
	IsResolved  bool       `gorm:"not null" json:"is_resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName overrides
func (Inventory) TableName() string        { return "inventories" }
func (VariantStock) TableName() string     { return "variant_stocks" }
func (InventoryHistory) TableName() string { return "inventory_histories" }
func (StockAlert) TableName() string       { return "stock_alerts" }

// Models lists the tables owned by the inventory ledger
func Models() []any {
	return []any{&Inventory{}, &VariantStock{}, &InventoryHistory{}, &StockAlert{}}
}

// AdjustRequest describes one stock movement
type AdjustRequest struct {
	ProductID   uint         `json:"product_id"`
	VariantSKU  string       `json:"variant_sku,omitempty"`
	Delta       int          `json:"quantity" binding:"required"`
	Type        MovementType `json:"type" binding:"required"`
	Bucket      Bucket       `json:"bucket,omitempty"`
	ReferenceID string       `json:"reference_id,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// CreateRequest provisions stock for a product and its variants
type CreateRequest struct {
	ProductID         uint                  `json:"product_id" binding:"required"`
	SKU               string                `json:"sku" binding:"required"`
	InitialQuantity   int                   `json:"initial_quantity" binding:"min=0"`
	LowStockThreshold int                   `json:"low_stock_threshold"`
	Variants          []VariantStockRequest `json:"variants,omitempty"`
}

// VariantStockRequest is the initial stock of one variant
type VariantStockRequest struct {
	SKU             string `json:"sku" binding:"required"`
	InitialQuantity int    `json:"initial_quantity" binding:"min=0"`
}

// Availability is the answer to a stock availability lookup
type Availability struct {
	ProductID      uint                  `json:"product_id"`
	VariantSKU     string                `json:"variant_sku,omitempty"`
	IsAvailable    bool                  `json:"is_available"`
	Price          product.PriceSnapshot `json:"price"`
	Title          string                `json:"title"`
	Thumbnail      string                `json:"thumbnail"`
	AvailableStock int                   `json:"available_stock"`
	Error          string                `json:"error,omitempty"`
}

// LowStockItem is a stock record at or below its threshold
type LowStockItem struct {
	ProductID  uint   `json:"product_id"`
	SKU        string `json:"sku"`
	VariantSKU string `json:"variant_sku,omitempty"`
	Stock      int    `json:"stock"`
	Threshold  int    `json:"threshold"`
}
