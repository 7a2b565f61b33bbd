// Package kafka publishes domain events to Kafka, one topic per aggregate.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/events"
)

// ErrDisabled is returned when no brokers are configured
var ErrDisabled = errors.New("kafka disabled")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements events.Publisher on top of kafka-go writers
type Publisher struct {
	writers map[events.Aggregate]messageWriter
	log     *logrus.Entry
}

// NewPublisher creates a writer per aggregate topic
func NewPublisher(cfg config.KafkaConfig, log *logrus.Logger) (*Publisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}

	topics := map[events.Aggregate]string{
		events.AggregateOrder:     cfg.OrderTopic,
		events.AggregateRefund:    cfg.RefundTopic,
		events.AggregateInventory: cfg.InventoryTopic,
	}
	writers := make(map[events.Aggregate]messageWriter, len(topics))
	for aggregate, topic := range topics {
		writers[aggregate] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           cfg.PublishTimeout,
		}
	}
	return newPublisher(writers, log.WithField("component", "kafka")), nil
}

func newPublisher(writers map[events.Aggregate]messageWriter, log *logrus.Entry) *Publisher {
	return &Publisher{writers: writers, log: log}
}

// Publish writes the event keyed by its aggregate id so that events of one
// order or refund land on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, evt events.Event) error {
	w, ok := p.writers[evt.Aggregate]
	if !ok {
		return fmt.Errorf("no topic for aggregate %s", evt.Aggregate)
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: data,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s event: %w", evt.Type, err)
	}
	return nil
}

// Close flushes and closes every writer
func (p *Publisher) Close() error {
	var errs []error
	for aggregate, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s writer: %w", aggregate, err))
		}
	}
	return errors.Join(errs...)
}
