// Package events defines the domain facts published after state changes commit.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/pkg/metrics"
)

// Type names a domain fact
type Type string

const (
	OrderCreated       Type = "OrderCreated"
	OrderStatusUpdated Type = "OrderStatusUpdated"
	RefundRequested    Type = "RefundRequested"
	RefundApproved     Type = "RefundApproved"
	RefundRejected     Type = "RefundRejected"
	RefundProcessing   Type = "RefundProcessing"
	RefundCompleted    Type = "RefundCompleted"
	RefundFailed       Type = "RefundFailed"
	RefundCancelled    Type = "RefundCancelled"
	StockLow           Type = "StockLow"
)

// Aggregate groups events by the entity they describe
type Aggregate string

const (
	AggregateOrder     Aggregate = "order"
	AggregateRefund    Aggregate = "refund"
	AggregateInventory Aggregate = "inventory"
)

// Event is the envelope handed to publishers. Key is the human readable id of
// the aggregate and keeps per-aggregate ordering on partitioned transports.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Aggregate  Aggregate `json:"aggregate"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func New(t Type, aggregate Aggregate, key string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Aggregate:  aggregate,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers an event to its transport
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	log *logrus.Entry
}

func NewLogPublisher(log *logrus.Entry) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.log.WithFields(logrus.Fields{
		"event_id":  evt.ID,
		"event":     evt.Type,
		"aggregate": evt.Aggregate,
		"key":       evt.Key,
	}).Info("domain event")
	return nil
}

// Dispatcher emits events without making the caller wait. Delivery failures
// are logged and never reach the operation that produced the event.
type Dispatcher struct {
	pub     Publisher
	log     *logrus.Entry
	timeout time.Duration
	async   bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

func NewDispatcher(pub Publisher, log *logrus.Entry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{pub: pub, log: log, timeout: timeout, async: true}
}

// NewSyncDispatcher publishes on the calling goroutine. Tests use it to observe
// events deterministically.
func NewSyncDispatcher(pub Publisher, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{pub: pub, log: log, timeout: time.Second}
}

// Emit publishes evt in the background. Once Wait has been called, events
// are published on the calling goroutine instead.
func (d *Dispatcher) Emit(evt Event) {
	if d == nil || d.pub == nil {
		return
	}
	if !d.async {
		d.publish(evt)
		return
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.publish(evt)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.publish(evt)
	}()
}

func (d *Dispatcher) publish(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.pub.Publish(ctx, evt)
	metrics.RecordEventPublished(string(evt.Type), err == nil)
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"event": evt.Type,
			"key":   evt.Key,
		}).Warn("failed to publish domain event")
	}
}

// Wait blocks until in-flight emissions finish. Later emissions no longer
// start goroutines.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
