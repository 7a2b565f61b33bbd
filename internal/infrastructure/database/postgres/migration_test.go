package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
	"github.com/your-org/order-fulfillment/internal/testutil"
)

func TestMigrationCreatesTablesAndIndexes(t *testing.T) {
	db := testutil.NewDB(t)
	m := NewMigration(db, logger.Discard())

	require.NoError(t, m.RunAutoMigrations())
	require.NoError(t, m.CreateIndexes())
	// Both steps are safe to repeat on start up.
	require.NoError(t, m.RunAutoMigrations())
	require.NoError(t, m.CreateIndexes())

	for _, table := range []string{"products", "inventories", "coupon_usages", "carts", "orders", "refunds", "refund_admin_actions"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("refunds", "idx_refunds_active_order"))
}
