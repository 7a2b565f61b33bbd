// internal/domain/product/service.go
package product

import (
	"context"
	"errors"
	"strings"

	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Service gives the fulfillment core read access to the catalog and lets
// admins register the products it sells. Catalog editing lives elsewhere.
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new product service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// CreateProductRequest represents product registration data
type CreateProductRequest struct {
	SKU           string                 `json:"sku" binding:"required"`
	Name          string                 `json:"name" binding:"required"`
	Thumbnail     string                 `json:"thumbnail"`
	BasePrice     int64                  `json:"base_price" binding:"required,min=0"`
	DiscountPrice *int64                 `json:"discount_price,omitempty"`
	Variants      []CreateVariantRequest `json:"variants,omitempty"`
}

// CreateVariantRequest represents variant registration data
type CreateVariantRequest struct {
	SKU           string `json:"sku" binding:"required"`
	Name          string `json:"name" binding:"required"`
	BasePrice     int64  `json:"base_price"`
	DiscountPrice *int64 `json:"discount_price,omitempty"`
}

// CreateProduct registers a product with zero stock. Stock is provisioned
// through the inventory ledger.
func (s *Service) CreateProduct(ctx context.Context, req *CreateProductRequest) (*Product, error) {
	if req.DiscountPrice != nil && (*req.DiscountPrice < 0 || *req.DiscountPrice > req.BasePrice) {
		return nil, apperrors.New(apperrors.KindValidationFailed, "discount price must be between 0 and base price")
	}

	product := Product{
		SKU:           strings.TrimSpace(req.SKU),
		Name:          req.Name,
		Thumbnail:     req.Thumbnail,
		BasePrice:     req.BasePrice,
		DiscountPrice: req.DiscountPrice,
		Currency:      s.config.Fulfillment.Currency,
		IsActive:      true,
	}
	for _, v := range req.Variants {
		product.Variants = append(product.Variants, ProductVariant{
			SKU:           strings.TrimSpace(v.SKU),
			Name:          v.Name,
			BasePrice:     v.BasePrice,
			DiscountPrice: v.DiscountPrice,
		})
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&Product{}).Where("sku = ?", product.SKU).Count(&existing).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to check product sku")
	}
	if existing > 0 {
		return nil, apperrors.Newf(apperrors.KindConflict, "product with SKU %s already exists", product.SKU)
	}

	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to create product")
	}

	return &product, nil
}

// GetProduct retrieves a single product with its variants
func (s *Service) GetProduct(ctx context.Context, id uint) (*Product, error) {
	return Find(s.db.WithContext(ctx), id)
}

// Find loads a product with variants using the given handle, which may be a
// transaction.
func Find(db *gorm.DB, id uint) (*Product, error) {
	var product Product
	err := db.Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "product %d not found", id)
		}
		return nil, apperrors.Internal(err, "failed to retrieve product")
	}
	return &product, nil
}

// SetActive toggles whether a product can be added to carts
func (s *Service) SetActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&Product{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return apperrors.Internal(result.Error, "failed to update product")
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "product %d not found", id)
	}
	return nil
}
