// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/config"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens a file-backed SQLite database in a temp dir and migrates models.
// A single connection keeps transactions serialised the way row locks would.
func NewDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fulfillment.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}
	return db
}

// NewRedis starts an in-process Redis server
func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// Config returns a configuration with the business defaults used in tests
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "fulfillment-test", Environment: "test"},
		JWT: config.JWTConfig{Secret: "test-secret-test-secret-test-secret"},
		External: config.ExternalConfig{
			Payment: config.PaymentConfig{Timeout: 2 * time.Second},
			Address: config.AddressConfig{Timeout: 2 * time.Second},
			Kafka: config.KafkaConfig{
				OrderTopic:     "order-events",
				RefundTopic:    "refund-events",
				InventoryTopic: "inventory-events",
				PublishTimeout: time.Second,
			},
		},
		Fulfillment: config.FulfillmentConfig{
			Currency:                "INR",
			DeliveryCharge:          0,
			FreeDeliveryThreshold:   0,
			RefundWindowDays:        7,
			RefundableStatuses:      []string{"SHIPPED", "DELIVERED", "COMPLETED"},
			EvidenceRequiredReasons: []string{"DAMAGED_PRODUCT", "DEFECTIVE_PRODUCT", "WRONG_ITEM", "NOT_AS_DESCRIBED"},
			MaxRefundsPerMonth:      5,
			MaxRefundAmountPerMonth: 5000000,
			ProcessingFeePercent:    decimal.Zero,
			RestockingFeePercent:    decimal.NewFromInt(10),
			LowStockThreshold:       2,
			CheckoutLockTTL:         30 * time.Second,
			AppliedCouponTTL:        time.Hour,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}
