// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the fulfillment service
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Security    SecurityConfig
	External    ExternalConfig
	Fulfillment FulfillmentConfig
	Logging     LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// JWTConfig contains the settings needed to verify bearer tokens issued upstream
type JWTConfig struct {
	Secret string
	Issuer string
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
	WebhookSecret      string
}

// ExternalConfig contains collaborator endpoints and brokers
type ExternalConfig struct {
	Payment  PaymentConfig
	Address  AddressConfig
	Kafka    KafkaConfig
	RabbitMQ RabbitMQConfig
}

// PaymentConfig contains payment gateway configuration
type PaymentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// AddressConfig contains address book service configuration
type AddressConfig struct {
	BaseURL string
	Timeout time.Duration
}

// KafkaConfig contains domain event publishing configuration
type KafkaConfig struct {
	Brokers        []string
	OrderTopic     string
	RefundTopic    string
	InventoryTopic string
	PublishTimeout time.Duration
}

// RabbitMQConfig contains stock command consumer configuration
type RabbitMQConfig struct {
	URL           string
	StockQueue    string
	PrefetchCount int
}

// FulfillmentConfig holds the business rules for checkout and refunds
type FulfillmentConfig struct {
	Currency                string
	DeliveryCharge          int64
	FreeDeliveryThreshold   int64
	RefundWindowDays        int
	RefundableStatuses      []string
	EvidenceRequiredReasons []string
	MaxRefundsPerMonth      int
	MaxRefundAmountPerMonth int64
	ProcessingFeePercent    decimal.Decimal
	RestockingFeePercent    decimal.Decimal
	LowStockThreshold       int
	CheckoutLockTTL         time.Duration
	AppliedCouponTTL        time.Duration
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Order Fulfillment"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 20*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "fulfillment_db"),
			User:         getEnv("DB_USER", "fulfillment_user"),
			Password:     getEnv("DB_PASSWORD", "fulfillment_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
			WebhookSecret:      getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
		External: ExternalConfig{
			Payment: PaymentConfig{
				BaseURL: getEnv("PAYMENT_GATEWAY_URL", "http://localhost:9001"),
				APIKey:  getEnv("PAYMENT_GATEWAY_API_KEY", ""),
				Timeout: getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
			},
			Address: AddressConfig{
				BaseURL: getEnv("ADDRESS_SERVICE_URL", "http://localhost:9002"),
				Timeout: getEnvAsDuration("ADDRESS_SERVICE_TIMEOUT", 3*time.Second),
			},
			Kafka: KafkaConfig{
				Brokers:        getEnvAsSlice("KAFKA_BROKERS", []string{}),
				OrderTopic:     getEnv("KAFKA_ORDER_TOPIC", "order-events"),
				RefundTopic:    getEnv("KAFKA_REFUND_TOPIC", "refund-events"),
				InventoryTopic: getEnv("KAFKA_INVENTORY_TOPIC", "inventory-events"),
				PublishTimeout: getEnvAsDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second),
			},
			RabbitMQ: RabbitMQConfig{
				URL:           getEnv("RABBITMQ_URL", ""),
				StockQueue:    getEnv("RABBITMQ_STOCK_QUEUE", "inventory.adjust"),
				PrefetchCount: getEnvAsInt("RABBITMQ_PREFETCH", 10),
			},
		},
		Fulfillment: FulfillmentConfig{
			Currency:                getEnv("CURRENCY", "INR"),
			DeliveryCharge:          getEnvAsInt64("DELIVERY_CHARGE", 4000),
			FreeDeliveryThreshold:   getEnvAsInt64("FREE_DELIVERY_THRESHOLD", 50000),
			RefundWindowDays:        getEnvAsInt("REFUND_WINDOW_DAYS", 7),
			RefundableStatuses:      getEnvAsSlice("REFUNDABLE_STATUSES", []string{"SHIPPED", "DELIVERED", "COMPLETED"}),
			EvidenceRequiredReasons: getEnvAsSlice("EVIDENCE_REQUIRED_REASONS", []string{"DAMAGED_PRODUCT", "DEFECTIVE_PRODUCT", "WRONG_ITEM", "NOT_AS_DESCRIBED"}),
			MaxRefundsPerMonth:      getEnvAsInt("MAX_REFUNDS_PER_MONTH", 5),
			MaxRefundAmountPerMonth: getEnvAsInt64("MAX_REFUND_AMOUNT_PER_MONTH", 5000000),
			ProcessingFeePercent:    getEnvAsDecimal("REFUND_PROCESSING_FEE_PERCENT", decimal.Zero),
			RestockingFeePercent:    getEnvAsDecimal("REFUND_RESTOCKING_FEE_PERCENT", decimal.NewFromInt(10)),
			LowStockThreshold:       getEnvAsInt("LOW_STOCK_THRESHOLD", 10),
			CheckoutLockTTL:         getEnvAsDuration("CHECKOUT_LOCK_TTL", 30*time.Second),
			AppliedCouponTTL:        getEnvAsDuration("APPLIED_COUPON_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "debug"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	f := c.Fulfillment
	if f.DeliveryCharge < 0 || f.FreeDeliveryThreshold < 0 {
		return fmt.Errorf("DELIVERY_CHARGE and FREE_DELIVERY_THRESHOLD must not be negative")
	}
	if f.RefundWindowDays <= 0 {
		return fmt.Errorf("REFUND_WINDOW_DAYS must be positive")
	}
	if len(f.RefundableStatuses) == 0 {
		return fmt.Errorf("REFUNDABLE_STATUSES must not be empty")
	}
	hundred := decimal.NewFromInt(100)
	if f.ProcessingFeePercent.IsNegative() || f.ProcessingFeePercent.GreaterThan(hundred) {
		return fmt.Errorf("REFUND_PROCESSING_FEE_PERCENT must be between 0 and 100")
	}
	if f.RestockingFeePercent.IsNegative() || f.RestockingFeePercent.GreaterThan(hundred) {
		return fmt.Errorf("REFUND_RESTOCKING_FEE_PERCENT must be between 0 and 100")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// IsRefundableStatus reports whether an order in the given status may be refunded
func (f FulfillmentConfig) IsRefundableStatus(status string) bool {
	return contains(f.RefundableStatuses, status)
}

// RequiresEvidence reports whether a refund reason must carry photo or video evidence
func (f FulfillmentConfig) RequiresEvidence(reason string) bool {
	return contains(f.EvidenceRequiredReasons, reason)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
