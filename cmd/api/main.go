// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/cart"
	"github.com/your-org/order-fulfillment/internal/domain/checkout"
	"github.com/your-org/order-fulfillment/internal/domain/coupon"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/domain/product"
	"github.com/your-org/order-fulfillment/internal/domain/refund"
	"github.com/your-org/order-fulfillment/internal/events"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/postgres"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/redis"
	"github.com/your-org/order-fulfillment/internal/infrastructure/external"
	"github.com/your-org/order-fulfillment/internal/infrastructure/messaging/kafka"
	"github.com/your-org/order-fulfillment/internal/infrastructure/messaging/rabbitmq"
	"github.com/your-org/order-fulfillment/internal/interfaces/http"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/handlers"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/routes"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := logger.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting service")

	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	migration := postgres.NewMigration(db.GetDB(), log)
	if err := migration.RunAutoMigrations(); err != nil {
		log.WithError(err).Fatal("Database migration failed")
	}
	if err := migration.CreateIndexes(); err != nil {
		log.WithError(err).Fatal("Index creation failed")
	}

	var publisher events.Publisher
	kafkaPublisher, err := kafka.NewPublisher(cfg.External.Kafka, log)
	switch {
	case errors.Is(err, kafka.ErrDisabled):
		log.Warn("No Kafka brokers configured, domain events are only logged")
		publisher = events.NewLogPublisher(logger.Component(log, "events"))
	case err != nil:
		log.WithError(err).Fatal("Failed to create Kafka publisher")
	default:
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}
	dispatcher := events.NewDispatcher(publisher, logger.Component(log, "events"), cfg.External.Kafka.PublishTimeout)
	defer dispatcher.Wait()

	gormDB := db.GetDB()
	payments := external.NewPaymentClient(cfg.External.Payment, log)

	products := product.NewService(gormDB, cfg)
	inv := inventory.NewService(gormDB, cfg, log, dispatcher)
	coupons := coupon.NewService(gormDB, cfg, log)
	carts := cart.NewService(gormDB, cfg, inv, log)
	orders := order.NewService(gormDB, cfg, log, inv, coupons, payments, dispatcher)
	checkouts := checkout.NewService(gormDB, cfg, log, checkout.Dependencies{
		Carts:     carts,
		Coupons:   coupons,
		Inventory: inv,
		Orders:    orders,
		Addresses: external.NewAddressClient(cfg.External.Address, log),
		Payments:  payments,
		Cache:     redisClient,
		Events:    dispatcher,
	})
	refunds := refund.NewService(gormDB, cfg, log, refund.Dependencies{
		Orders:    orders,
		Inventory: inv,
		Coupons:   coupons,
		Payments:  payments,
		Events:    dispatcher,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerDone := make(chan struct{})
	if cfg.External.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Dial(cfg.External.RabbitMQ)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to RabbitMQ")
		}
		defer conn.Close()
		if err := conn.SetupQueues(cfg.External.RabbitMQ); err != nil {
			log.WithError(err).Fatal("Failed to set up RabbitMQ queues")
		}

		consumer := rabbitmq.NewStockConsumer(inv, log)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx, conn.Channel, cfg.External.RabbitMQ.StockQueue); err != nil {
				log.WithError(err).Error("Stock consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	server := http.NewServer(cfg, log, http.Dependencies{
		Handlers: routes.Handlers{
			Cart:      handlers.NewCartHandler(carts),
			Checkout:  handlers.NewCheckoutHandler(checkouts),
			Order:     handlers.NewOrderHandler(orders),
			Payment:   handlers.NewPaymentHandler(checkouts, cfg.Security.WebhookSecret, log),
			Refund:    handlers.NewRefundHandler(refunds),
			Inventory: handlers.NewInventoryHandler(inv),
			Coupon:    handlers.NewCouponHandler(coupons),
			Product:   handlers.NewProductHandler(products),
		},
		Redis: redisClient.Redis,
		Checks: map[string]http.HealthCheck{
			"database": db.Health,
			"redis":    redisClient.Health,
		},
	})

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	log.Info("All systems operational")
	<-ctx.Done()
	log.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}
	<-consumerDone

	log.Info("Server shutdown completed")
}
