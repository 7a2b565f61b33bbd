// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/domain/cart"
	"github.com/your-org/order-fulfillment/internal/domain/coupon"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/domain/product"
	"github.com/your-org/order-fulfillment/internal/domain/refund"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, log *logrus.Logger) *Migration {
	return &Migration{
		db:  db,
		log: log.WithField("component", "migration"),
	}
}

// Models returns every table in dependency order
func Models() []any {
	var models []any
	models = append(models, product.Models()...)
	models = append(models, inventory.Models()...)
	models = append(models, coupon.Models()...)
	models = append(models, cart.Models()...)
	models = append(models, order.Models()...)
	models = append(models, refund.Models()...)
	return models
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.log.Info("running database auto-migrations")

	for _, model := range Models() {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.log.Info("database auto-migrations completed")
	return nil
}

// Indexes are created after the tables. The active refund index is a
// correctness constraint; the rest serve list and report queries.
var Indexes = []string{
	refund.ActiveRefundIndexSQL,

	"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
	"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(billing_payment_status)",
	"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",
	"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

	"CREATE INDEX IF NOT EXISTS idx_inventory_histories_product_created ON inventory_histories(product_id, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_stock_alerts_open ON stock_alerts(product_id, is_resolved)",

	"CREATE INDEX IF NOT EXISTS idx_coupon_usages_user ON coupon_usages(coupon_id, user_id)",
	"CREATE INDEX IF NOT EXISTS idx_coupon_usages_order ON coupon_usages(order_id)",

	"CREATE INDEX IF NOT EXISTS idx_refunds_user_created ON refunds(user_id, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_refunds_status_created ON refunds(status, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_refund_admin_actions_refund ON refund_admin_actions(refund_id, created_at)",
}

// CreateIndexes creates the additional indexes. A failed index is reported
// after the others have been attempted.
func (m *Migration) CreateIndexes() error {
	var failed []string
	for _, indexSQL := range Indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.log.WithError(err).WithField("sql", indexSQL).Warn("failed to create index")
			failed = append(failed, indexSQL)
		}
	}

	m.log.WithFields(logrus.Fields{
		"created": len(Indexes) - len(failed),
		"failed":  len(failed),
	}).Info("database indexes created")

	if len(failed) > 0 {
		return fmt.Errorf("%d indexes could not be created", len(failed))
	}
	return nil
}
