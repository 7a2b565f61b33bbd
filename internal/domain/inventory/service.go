// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/product"
	"github.com/your-org/order-fulfillment/internal/events"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/uow"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"github.com/your-org/order-fulfillment/internal/pkg/metrics"
	"gorm.io/gorm"
)

// Service is the inventory ledger. It is the only writer of stock counts and
// of the stock mirror on products.
type Service struct {
	db     *gorm.DB
	runner uow.Runner
	config *config.Config
	log    *logrus.Entry
	events *events.Dispatcher
}

// NewService creates a new inventory service
func NewService(db *gorm.DB, cfg *config.Config, log *logrus.Logger, dispatcher *events.Dispatcher) *Service {
	return &Service{
		db:     db,
		runner: uow.NewRunner(db),
		config: cfg,
		log:    log.WithField("component", "inventory"),
		events: dispatcher,
	}
}

// Create provisions stock for a product and its variants and writes the
// INITIAL ledger rows.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Inventory, error) {
	req.SKU = strings.TrimSpace(req.SKU)
	if req.SKU == "" {
		return nil, apperrors.New(apperrors.KindValidationFailed, "sku is required")
	}
	if req.InitialQuantity < 0 {
		return nil, apperrors.New(apperrors.KindValidationFailed, "initial quantity must not be negative")
	}

	threshold := req.LowStockThreshold
	if threshold <= 0 {
		threshold = s.config.Fulfillment.LowStockThreshold
	}

	var inv Inventory
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := product.Find(tx, req.ProductID)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&Inventory{}).Where("product_id = ? OR sku = ?", req.ProductID, req.SKU).Count(&count).Error; err != nil {
			return apperrors.Internal(err, "failed to check existing inventory")
		}
		if count > 0 {
			return apperrors.Newf(apperrors.KindConflict, "inventory already provisioned for product %d or sku %s", req.ProductID, req.SKU)
		}

		seen := make(map[string]bool, len(req.Variants))
		skus := make([]string, 0, len(req.Variants))
		for _, v := range req.Variants {
			if v.InitialQuantity < 0 {
				return apperrors.Newf(apperrors.KindValidationFailed, "initial quantity for %s must not be negative", v.SKU)
			}
			if seen[v.SKU] || v.SKU == req.SKU {
				return apperrors.Newf(apperrors.KindValidationFailed, "duplicate sku %s", v.SKU)
			}
			if _, ok := p.Variant(v.SKU); !ok {
				return apperrors.Newf(apperrors.KindNotFound, "variant %s not found on product %d", v.SKU, req.ProductID)
			}
			seen[v.SKU] = true
			skus = append(skus, v.SKU)
		}
		if len(skus) > 0 {
			if err := tx.Model(&VariantStock{}).Where("sku IN ?", skus).Count(&count).Error; err != nil {
				return apperrors.Internal(err, "failed to check existing variant stock")
			}
			if count > 0 {
				return apperrors.New(apperrors.KindConflict, "variant stock already provisioned")
			}
		}

		now := time.Now().UTC()
		inv = Inventory{
			ProductID:         req.ProductID,
			SKU:               req.SKU,
			StockQuantity:     req.InitialQuantity,
			LowStockThreshold: threshold,
		}
		if req.InitialQuantity > 0 {
			inv.LastRestockedAt = &now
		}
		for _, v := range req.Variants {
			vs := VariantStock{
				ProductID:         req.ProductID,
				SKU:               v.SKU,
				StockQuantity:     v.InitialQuantity,
				LowStockThreshold: threshold,
			}
			if v.InitialQuantity > 0 {
				vs.LastRestockedAt = &now
			}
			inv.Variants = append(inv.Variants, vs)
		}

		if err := tx.Create(&inv).Error; err != nil {
			return apperrors.Internal(err, "failed to create inventory")
		}

		rows := []InventoryHistory{initialRow(inv.ID, inv.ProductID, nil, inv.StockQuantity, now)}
		for i := range inv.Variants {
			sku := inv.Variants[i].SKU
			rows = append(rows, initialRow(inv.ID, inv.ProductID, &sku, inv.Variants[i].StockQuantity, now))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return apperrors.Internal(err, "failed to record initial stock")
		}

		return s.refreshMirror(tx, inv.ProductID)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"product_id": inv.ProductID,
		"sku":        inv.SKU,
		"quantity":   inv.StockQuantity,
		"variants":   len(inv.Variants),
	}).Info("inventory provisioned")

	return &inv, nil
}

func initialRow(inventoryID, productID uint, variantSKU *string, qty int, at time.Time) InventoryHistory {
	return InventoryHistory{
		InventoryID:    inventoryID,
		ProductID:      productID,
		VariantSKU:     variantSKU,
		Bucket:         BucketSellable,
		Type:           MovementInitial,
		QuantityBefore: 0,
		QuantityAfter:  qty,
		Delta:          qty,
		Reason:         "initial stock",
		CreatedAt:      at,
	}
}

// Adjust applies one stock movement. It runs inside tx when one is supplied,
// otherwise in its own transaction. The decrement is a single conditional
// update so concurrent sales cannot both pass the floor check.
func (s *Service) Adjust(ctx context.Context, tx *gorm.DB, req AdjustRequest) (*InventoryHistory, error) {
	history, _, err := s.adjust(ctx, tx, req, false)
	return history, err
}

// AdjustOnce applies a movement in its own transaction unless the ledger
// already holds one with the same reference, type, product, variant and
// bucket. It reports whether stock changed. Movements without a reference
// are always applied.
func (s *Service) AdjustOnce(ctx context.Context, req AdjustRequest) (*InventoryHistory, bool, error) {
	return s.adjust(ctx, nil, req, req.ReferenceID != "")
}

func (s *Service) adjust(ctx context.Context, tx *gorm.DB, req AdjustRequest, once bool) (*InventoryHistory, bool, error) {
	if err := validateAdjust(&req); err != nil {
		metrics.RecordStockAdjustment(string(req.Type), false)
		return nil, false, err
	}

	var (
		history *InventoryHistory
		alert   *StockAlert
		applied = true
	)
	err := uow.Within(ctx, s.runner, tx, func(tx *gorm.DB) error {
		if once {
			prev, err := findMovement(tx, req)
			if err != nil {
				return err
			}
			if prev != nil {
				history, applied = prev, false
				return nil
			}
		}
		h, a, err := s.apply(tx, req)
		history, alert = h, a
		return err
	})
	if err != nil {
		metrics.RecordStockAdjustment(string(req.Type), false)
		return nil, false, err
	}
	if !applied {
		return history, false, nil
	}
	metrics.RecordStockAdjustment(string(req.Type), true)

	// Inside a caller's transaction the alert row is enough; the event would
	// describe a state that may still roll back.
	if tx == nil && alert != nil {
		s.events.Emit(events.New(events.StockLow, events.AggregateInventory, alert.SKU, alert))
	}

	return history, true, nil
}

// findMovement returns the ledger row already recorded for req, if any
func findMovement(tx *gorm.DB, req AdjustRequest) (*InventoryHistory, error) {
	query := tx.Where("reference_id = ? AND type = ? AND product_id = ? AND bucket = ?",
		req.ReferenceID, req.Type, req.ProductID, req.Bucket)
	if req.VariantSKU == "" {
		query = query.Where("variant_sku IS NULL")
	} else {
		query = query.Where("variant_sku = ?", req.VariantSKU)
	}

	var rows []InventoryHistory
	if err := query.Order("id ASC").Limit(1).Find(&rows).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to look up stock movement")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func validateAdjust(req *AdjustRequest) error {
	if req.Bucket == "" {
		req.Bucket = BucketSellable
	}
	if req.Bucket != BucketSellable && req.Bucket != BucketDamaged {
		return apperrors.Newf(apperrors.KindValidationFailed, "unknown stock bucket %s", req.Bucket)
	}
	if !req.Type.Valid() {
		return apperrors.Newf(apperrors.KindValidationFailed, "unknown movement type %s", req.Type)
	}
	if req.Delta == 0 {
		return apperrors.New(apperrors.KindValidationFailed, "quantity delta must not be zero")
	}
	switch req.Type {
	case MovementSale:
		if req.Delta > 0 {
			return apperrors.New(apperrors.KindValidationFailed, "sale must decrease stock")
		}
	case MovementInitial, MovementRestock, MovementReturn:
		if req.Delta < 0 {
			return apperrors.Newf(apperrors.KindValidationFailed, "%s must increase stock", req.Type)
		}
	}
	return nil
}

func (s *Service) apply(tx *gorm.DB, req AdjustRequest) (*InventoryHistory, *StockAlert, error) {
	var inv Inventory
	if err := tx.Where("product_id = ?", req.ProductID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.Newf(apperrors.KindNotFound, "no inventory for product %d", req.ProductID)
		}
		return nil, nil, apperrors.Internal(err, "failed to load inventory")
	}

	var (
		model      any = &Inventory{}
		targetID       = inv.ID
		sku            = inv.SKU
		threshold      = inv.LowStockThreshold
		current        = inv.StockQuantity
		variantSKU *string
	)
	if req.Bucket == BucketDamaged {
		current = inv.DamagedQuantity
	}
	if req.VariantSKU != "" {
		var vs VariantStock
		if err := tx.Where("inventory_id = ? AND sku = ?", inv.ID, req.VariantSKU).First(&vs).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperrors.Newf(apperrors.KindNotFound, "no stock for variant %s", req.VariantSKU)
			}
			return nil, nil, apperrors.Internal(err, "failed to load variant stock")
		}
		model, targetID, sku, threshold = &VariantStock{}, vs.ID, vs.SKU, vs.LowStockThreshold
		current = vs.StockQuantity
		if req.Bucket == BucketDamaged {
			current = vs.DamagedQuantity
		}
		variantSKU = &vs.SKU
	}

	col := req.Bucket.column()
	now := time.Now().UTC()
	updates := map[string]interface{}{
		col: gorm.Expr(col+" + ?", req.Delta),
	}
	if req.Bucket == BucketSellable {
		switch req.Type {
		case MovementSale:
			updates["total_sold"] = gorm.Expr("total_sold + ?", -req.Delta)
		case MovementReturn:
			updates["total_sold"] = gorm.Expr("CASE WHEN total_sold > ? THEN total_sold - ? ELSE 0 END", req.Delta, req.Delta)
		case MovementInitial, MovementRestock:
			updates["last_restocked_at"] = now
		}
	}

	result := tx.Model(model).Where("id = ? AND "+col+" + ? >= 0", targetID, req.Delta).Updates(updates)
	if result.Error != nil {
		return nil, nil, apperrors.Internal(result.Error, "failed to update stock")
	}
	if result.RowsAffected == 0 {
		return nil, nil, apperrors.Newf(apperrors.KindInsufficientStock,
			"insufficient stock for %s: available %d, requested %d", sku, current, -req.Delta)
	}

	var after []int
	if err := tx.Model(model).Where("id = ?", targetID).Pluck(col, &after).Error; err != nil {
		return nil, nil, apperrors.Internal(err, "failed to read adjusted stock")
	}
	if len(after) == 0 {
		return nil, nil, apperrors.Newf(apperrors.KindInternalFailure, "stock row %d vanished during adjustment", targetID)
	}

	history := &InventoryHistory{
		InventoryID:    inv.ID,
		ProductID:      inv.ProductID,
		VariantSKU:     variantSKU,
		Bucket:         req.Bucket,
		Type:           req.Type,
		QuantityBefore: after[0] - req.Delta,
		QuantityAfter:  after[0],
		Delta:          req.Delta,
		ReferenceID:    req.ReferenceID,
		Reason:         req.Reason,
		CreatedAt:      now,
	}
	if err := tx.Create(history).Error; err != nil {
		return nil, nil, apperrors.Internal(err, "failed to record stock movement")
	}

	if req.Bucket != BucketSellable {
		return history, nil, nil
	}

	if err := s.refreshMirror(tx, inv.ProductID); err != nil {
		return nil, nil, err
	}

	alert, err := s.checkThreshold(tx, inv.ID, inv.ProductID, sku, after[0], threshold)
	if err != nil {
		return nil, nil, err
	}
	return history, alert, nil
}

// refreshMirror copies ledger counts onto the product and variant rows
func (s *Service) refreshMirror(tx *gorm.DB, productID uint) error {
	var inv Inventory
	if err := tx.Preload("Variants").Where("product_id = ?", productID).First(&inv).Error; err != nil {
		return apperrors.Internal(err, "failed to reload inventory")
	}

	total := inv.StockQuantity
	for _, v := range inv.Variants {
		total += v.StockQuantity
		if err := tx.Model(&product.ProductVariant{}).Where("sku = ?", v.SKU).Updates(map[string]interface{}{
			"stock":       v.StockQuantity,
			"is_in_stock": v.StockQuantity > 0,
		}).Error; err != nil {
			return apperrors.Internal(err, "failed to mirror variant stock")
		}
	}

	if err := tx.Model(&product.Product{}).Where("id = ?", productID).Updates(map[string]interface{}{
		"stock":       total,
		"is_in_stock": total > 0,
	}).Error; err != nil {
		return apperrors.Internal(err, "failed to mirror product stock")
	}
	return nil
}

// checkThreshold opens an alert when stock falls to the threshold and closes
// open alerts once it is replenished above it.
func (s *Service) checkThreshold(tx *gorm.DB, inventoryID, productID uint, sku string, qty, threshold int) (*StockAlert, error) {
	if qty > threshold {
		err := tx.Model(&StockAlert{}).
			Where("inventory_id = ? AND sku = ? AND is_resolved = ?", inventoryID, sku, false).
			Updates(map[string]interface{}{"is_resolved": true, "resolved_at": time.Now().UTC()}).Error
		if err != nil {
			return nil, apperrors.Internal(err, "failed to resolve stock alerts")
		}
		return nil, nil
	}

	var open int64
	if err := tx.Model(&StockAlert{}).Where("inventory_id = ? AND sku = ? AND is_resolved = ?", inventoryID, sku, false).Count(&open).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to check stock alerts")
	}
	if open > 0 {
		return nil, nil
	}

	alert := &StockAlert{
		InventoryID: inventoryID,
		ProductID:   productID,
		SKU:         sku,
		AlertType:   "LOW_STOCK",
		Quantity:    qty,
		CreatedAt:   time.Now().UTC(),
	}
	if qty == 0 {
		alert.AlertType = "OUT_OF_STOCK"
	}
	if err := tx.Create(alert).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to create stock alert")
	}
	return alert, nil
}

// Get returns the stock record of a product with its variants
func (s *Service) Get(ctx context.Context, productID uint) (*Inventory, error) {
	var inv Inventory
	err := s.db.WithContext(ctx).Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("product_id = ?", productID).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "no inventory for product %d", productID)
		}
		return nil, apperrors.Internal(err, "failed to retrieve inventory")
	}
	return &inv, nil
}

// History returns the ledger rows of a product, newest first
func (s *Service) History(ctx context.Context, productID uint) ([]InventoryHistory, error) {
	if _, err := s.Get(ctx, productID); err != nil {
		return nil, err
	}

	var rows []InventoryHistory
	if err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve inventory history: %w", err)
	}
	return rows, nil
}

// CheckAvailability answers whether qty units of a product or variant can be
// sold right now, with the price and display data a cart line needs.
func (s *Service) CheckAvailability(ctx context.Context, productID uint, qty int, variantSKU string) (*Availability, error) {
	p, err := product.Find(s.db.WithContext(ctx), productID)
	if err != nil {
		return nil, err
	}

	var v *product.ProductVariant
	if variantSKU != "" {
		found, ok := p.Variant(variantSKU)
		if !ok {
			return nil, apperrors.Newf(apperrors.KindNotFound, "variant %s not found on product %d", variantSKU, productID)
		}
		v = found
	}

	avail := &Availability{
		ProductID:  productID,
		VariantSKU: variantSKU,
		Price:      p.Snapshot(v),
		Title:      p.Title(v),
		Thumbnail:  p.Thumbnail,
	}

	stock, err := s.sellable(ctx, productID, variantSKU)
	if err != nil {
		return nil, err
	}
	avail.AvailableStock = stock

	switch {
	case !p.IsActive:
		avail.Error = "product is not available"
	case qty <= 0:
		avail.Error = "quantity must be at least 1"
	case stock < qty:
		avail.Error = fmt.Sprintf("only %d left in stock", stock)
	default:
		avail.IsAvailable = true
	}
	return avail, nil
}

func (s *Service) sellable(ctx context.Context, productID uint, variantSKU string) (int, error) {
	var counts []struct {
		StockQuantity    int
		ReservedQuantity int
	}

	q := s.db.WithContext(ctx)
	if variantSKU != "" {
		q = q.Model(&VariantStock{}).Where("product_id = ? AND sku = ?", productID, variantSKU)
	} else {
		q = q.Model(&Inventory{}).Where("product_id = ?", productID)
	}
	if err := q.Select("stock_quantity", "reserved_quantity").Scan(&counts).Error; err != nil {
		return 0, apperrors.Internal(err, "failed to read stock level")
	}
	if len(counts) == 0 {
		return 0, nil
	}

	available := counts[0].StockQuantity - counts[0].ReservedQuantity
	if available < 0 {
		available = 0
	}
	return available, nil
}

// LowStock lists stock records at or below their threshold
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	var mains []Inventory
	if err := s.db.WithContext(ctx).
		Where("stock_quantity <= low_stock_threshold").
		Order("stock_quantity ASC, id ASC").
		Find(&mains).Error; err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}

	var variants []VariantStock
	if err := s.db.WithContext(ctx).
		Where("stock_quantity <= low_stock_threshold").
		Order("stock_quantity ASC, id ASC").
		Find(&variants).Error; err != nil {
		return nil, fmt.Errorf("failed to list low variant stock: %w", err)
	}

	items := make([]LowStockItem, 0, len(mains)+len(variants))
	for _, m := range mains {
		items = append(items, LowStockItem{ProductID: m.ProductID, SKU: m.SKU, Stock: m.StockQuantity, Threshold: m.LowStockThreshold})
	}
	for _, v := range variants {
		items = append(items, LowStockItem{ProductID: v.ProductID, SKU: v.SKU, VariantSKU: v.SKU, Stock: v.StockQuantity, Threshold: v.LowStockThreshold})
	}
	return items, nil
}
