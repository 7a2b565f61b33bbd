// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/uow"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// AvailabilityChecker answers stock and price lookups for cart lines
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, productID uint, qty int, variantSKU string) (*inventory.Availability, error)
}

// Service handles cart business logic
type Service struct {
	db           *gorm.DB
	runner       uow.Runner
	config       *config.Config
	availability AvailabilityChecker
	log          *logrus.Entry
}

// NewService creates a new cart service
func NewService(db *gorm.DB, cfg *config.Config, availability AvailabilityChecker, log *logrus.Logger) *Service {
	return &Service{
		db:           db,
		runner:       uow.NewRunner(db),
		config:       cfg,
		availability: availability,
		log:          log.WithField("component", "cart"),
	}
}

// GetCart returns the user's cart. A user without a cart gets an empty one
// that is not persisted until the first add.
func (s *Service) GetCart(ctx context.Context, userID uint) (*Cart, error) {
	c, err := load(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &Cart{UserID: userID, Items: []CartItem{}}, nil
	}
	return c, nil
}

func load(db *gorm.DB, userID uint) (*Cart, error) {
	var c Cart
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}).Where("user_id = ?", userID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Internal(err, "failed to retrieve cart")
	}
	return &c, nil
}

// AddItem adds a product to the cart, merging with an existing line for the
// same product and variant.
func (s *Service) AddItem(ctx context.Context, userID uint, req *AddItemRequest) (*Cart, error) {
	if req.Quantity < 1 {
		return nil, apperrors.New(apperrors.KindValidationFailed, "quantity must be at least 1")
	}

	current, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	wanted := req.Quantity
	for _, item := range current.Items {
		if item.ProductID == req.ProductID && item.VariantSKU == req.VariantSKU {
			wanted += item.Quantity
		}
	}

	avail, err := s.check(ctx, req.ProductID, wanted, req.VariantSKU)
	if err != nil {
		return nil, err
	}

	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		c, err := load(tx, userID)
		if err != nil {
			return err
		}
		if c == nil {
			c = &Cart{UserID: userID}
			if err := tx.Create(c).Error; err != nil {
				return apperrors.Internal(err, "failed to create cart")
			}
		}

		position := 0
		for i := range c.Items {
			item := &c.Items[i]
			if item.Position >= position {
				position = item.Position + 1
			}
			if item.ProductID == req.ProductID && item.VariantSKU == req.VariantSKU {
				item.Quantity += req.Quantity
				item.Price = avail.Price
				item.Title = avail.Title
				item.Thumbnail = avail.Thumbnail
				item.IsSelected = true
				if err := tx.Save(item).Error; err != nil {
					return apperrors.Internal(err, "failed to update cart item")
				}
				return s.saveTotals(tx, c)
			}
		}

		item := CartItem{
			CartID:     c.ID,
			ProductID:  req.ProductID,
			VariantSKU: req.VariantSKU,
			Title:      avail.Title,
			Thumbnail:  avail.Thumbnail,
			Quantity:   req.Quantity,
			Price:      avail.Price,
			IsSelected: true,
			Position:   position,
		}
		if err := tx.Create(&item).Error; err != nil {
			return apperrors.Internal(err, "failed to add cart item")
		}
		c.Items = append(c.Items, item)
		return s.saveTotals(tx, c)
	})
	if err != nil {
		return nil, err
	}

	return s.GetCart(ctx, userID)
}

// UpdateItem sets the quantity of a line; zero removes it
func (s *Service) UpdateItem(ctx context.Context, userID, itemID uint, req *UpdateItemRequest) (*Cart, error) {
	if req.Quantity < 0 {
		return nil, apperrors.New(apperrors.KindValidationFailed, "quantity cannot be negative")
	}
	if req.Quantity == 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	current, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, ok := findItem(current, itemID)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "cart item %d not found", itemID)
	}

	avail, err := s.check(ctx, item.ProductID, req.Quantity, item.VariantSKU)
	if err != nil {
		return nil, err
	}

	err = s.mutate(ctx, userID, func(tx *gorm.DB, c *Cart) error {
		for i := range c.Items {
			if c.Items[i].ID != itemID {
				continue
			}
			c.Items[i].Quantity = req.Quantity
			c.Items[i].Price = avail.Price
			if err := tx.Save(&c.Items[i]).Error; err != nil {
				return apperrors.Internal(err, "failed to update cart item")
			}
			return nil
		}
		return apperrors.Newf(apperrors.KindNotFound, "cart item %d not found", itemID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a line from the cart
func (s *Service) RemoveItem(ctx context.Context, userID, itemID uint) (*Cart, error) {
	err := s.mutate(ctx, userID, func(tx *gorm.DB, c *Cart) error {
		kept := c.Items[:0]
		found := false
		for _, item := range c.Items {
			if item.ID == itemID {
				found = true
				continue
			}
			kept = append(kept, item)
		}
		if !found {
			return apperrors.Newf(apperrors.KindNotFound, "cart item %d not found", itemID)
		}
		if err := tx.Where("id = ? AND cart_id = ?", itemID, c.ID).Delete(&CartItem{}).Error; err != nil {
			return apperrors.Internal(err, "failed to remove cart item")
		}
		c.Items = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// SelectItems marks lines as selected or not for the next checkout
func (s *Service) SelectItems(ctx context.Context, userID uint, req *SelectItemsRequest) (*Cart, error) {
	err := s.mutate(ctx, userID, func(tx *gorm.DB, c *Cart) error {
		wanted := make(map[uint]bool, len(req.ItemIDs))
		for _, id := range req.ItemIDs {
			wanted[id] = true
		}
		for i := range c.Items {
			if wanted[c.Items[i].ID] {
				c.Items[i].IsSelected = req.Selected
			}
		}
		if err := tx.Model(&CartItem{}).
			Where("cart_id = ? AND id IN ?", c.ID, req.ItemIDs).
			Update("is_selected", req.Selected).Error; err != nil {
			return apperrors.Internal(err, "failed to select cart items")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// ClearCart removes every line. The cart row is kept.
func (s *Service) ClearCart(ctx context.Context, userID uint) error {
	return s.mutate(ctx, userID, func(tx *gorm.DB, c *Cart) error {
		if err := tx.Where("cart_id = ?", c.ID).Delete(&CartItem{}).Error; err != nil {
			return apperrors.Internal(err, "failed to clear cart")
		}
		c.Items = nil
		return nil
	})
}

// ClearSelected removes the selected lines inside the caller's transaction
// and rewrites the totals. The checkout calls it after the order is written.
func (s *Service) ClearSelected(tx *gorm.DB, cartID uint) error {
	if err := tx.Where("cart_id = ? AND is_selected = ?", cartID, true).Delete(&CartItem{}).Error; err != nil {
		return apperrors.Internal(err, "failed to clear checked out items")
	}

	var c Cart
	if err := tx.Preload("Items").Where("id = ?", cartID).First(&c).Error; err != nil {
		return apperrors.Internal(err, "failed to reload cart")
	}
	return s.saveTotals(tx, &c)
}

func (s *Service) mutate(ctx context.Context, userID uint, fn func(tx *gorm.DB, c *Cart) error) error {
	return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		c, err := load(tx, userID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.New(apperrors.KindNotFound, "cart not found")
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		return s.saveTotals(tx, c)
	})
}

func (s *Service) saveTotals(tx *gorm.DB, c *Cart) error {
	c.Recompute()
	err := tx.Model(&Cart{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
		"total_amount":   c.TotalAmount,
		"total_discount": c.TotalDiscount,
		"payable_amount": c.PayableAmount,
	}).Error
	if err != nil {
		return apperrors.Internal(err, "failed to update cart totals")
	}
	return nil
}

func (s *Service) check(ctx context.Context, productID uint, qty int, variantSKU string) (*inventory.Availability, error) {
	avail, err := s.availability.CheckAvailability(ctx, productID, qty, variantSKU)
	if err != nil {
		return nil, err
	}
	if !avail.IsAvailable {
		kind := apperrors.KindValidationFailed
		if avail.AvailableStock < qty {
			kind = apperrors.KindInsufficientStock
		}
		return nil, apperrors.Newf(kind, "%s: %s", avail.Title, avail.Error)
	}
	return avail, nil
}

func findItem(c *Cart, itemID uint) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}
