// Package rabbitmq consumes stock adjustment commands from RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
)

// StockAdjuster applies a stock movement at most once per reference
type StockAdjuster interface {
	AdjustOnce(ctx context.Context, req inventory.AdjustRequest) (*inventory.InventoryHistory, bool, error)
}

// AdjustStockCommand is the message body of the stock queue
type AdjustStockCommand struct {
	ProductID   uint                   `json:"product_id"`
	VariantSKU  string                 `json:"variant_sku,omitempty"`
	Quantity    int                    `json:"quantity"`
	Type        inventory.MovementType `json:"type"`
	Bucket      inventory.Bucket       `json:"bucket,omitempty"`
	ReferenceID string                 `json:"reference_id,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}

// Conn is an open connection and channel to the broker
type Conn struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial connects and opens a channel
func Dial(cfg config.RabbitMQConfig) (*Conn, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &Conn{Conn: conn, Channel: ch}, nil
}

// SetupQueues declares the stock queue and its dead letter queue
func (c *Conn) SetupQueues(cfg config.RabbitMQConfig) error {
	dlq := cfg.StockQueue + ".dlq"
	dlx := dlq + "_exchange"

	if err := c.Channel.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}
	if _, err := c.Channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := c.Channel.QueueBind(dlq, dlq, dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	_, err := c.Channel.QueueDeclare(cfg.StockQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": dlq,
	})
	if err != nil {
		return fmt.Errorf("failed to declare stock queue: %w", err)
	}

	if cfg.PrefetchCount > 0 {
		if err := c.Channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	return nil
}

// Close closes the channel and the connection
func (c *Conn) Close() error {
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

// StockConsumer feeds stock commands into the inventory ledger
type StockConsumer struct {
	stock StockAdjuster
	log   *logrus.Entry
}

// NewStockConsumer creates a stock command consumer
func NewStockConsumer(stock StockAdjuster, log *logrus.Logger) *StockConsumer {
	return &StockConsumer{stock: stock, log: log.WithField("component", "stock_consumer")}
}

// Run consumes the queue until ctx is done or the delivery channel closes
func (c *StockConsumer) Run(ctx context.Context, ch *amqp.Channel, queue string) error {
	msgs, err := ch.Consume(queue, "fulfillment-stock", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.Handle(ctx, msg)
		}
	}
}

// Handle applies one delivery and acknowledges it. A redelivered command
// whose movement is already in the ledger is acknowledged without changing
// stock. Commands the ledger refuses are dead-lettered; storage failures are
// retried once.
func (c *StockConsumer) Handle(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("recovered from panic in stock command")
			_ = msg.Nack(false, false)
		}
	}()

	var cmd AdjustStockCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		c.log.WithError(err).Warn("invalid stock command")
		_ = msg.Nack(false, false)
		return
	}

	log := c.log.WithFields(logrus.Fields{
		"product_id":   cmd.ProductID,
		"variant_sku":  cmd.VariantSKU,
		"quantity":     cmd.Quantity,
		"type":         cmd.Type,
		"reference_id": cmd.ReferenceID,
	})

	_, applied, err := c.stock.AdjustOnce(ctx, inventory.AdjustRequest{
		ProductID:   cmd.ProductID,
		VariantSKU:  cmd.VariantSKU,
		Delta:       cmd.Quantity,
		Type:        cmd.Type,
		Bucket:      cmd.Bucket,
		ReferenceID: cmd.ReferenceID,
		Reason:      cmd.Reason,
	})
	if err == nil {
		if applied {
			log.Info("stock command applied")
		} else {
			log.Info("stock command already applied")
		}
		_ = msg.Ack(false)
		return
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindInternalFailure, apperrors.KindExternalUnavailable:
		requeue := !msg.Redelivered
		log.WithError(err).WithField("requeue", requeue).Error("stock command failed")
		_ = msg.Nack(false, requeue)
	default:
		log.WithError(err).Warn("stock command rejected")
		_ = msg.Nack(false, false)
	}
}
