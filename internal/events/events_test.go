package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
)

func TestNewFillsEnvelope(t *testing.T) {
	evt := New(OrderCreated, AggregateOrder, "ORD-20260101-ABCDEF12", map[string]int{"items": 2})

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, OrderCreated, evt.Type)
	assert.Equal(t, AggregateOrder, evt.Aggregate)
	assert.WithinDuration(t, time.Now().UTC(), evt.OccurredAt, time.Second)
}

func TestAsyncDispatcherDelivers(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, logger.Discard().WithField("component", "test"), time.Second)

	d.Emit(New(RefundRequested, AggregateRefund, "RFD-1", nil))
	d.Emit(New(RefundApproved, AggregateRefund, "RFD-1", nil))
	d.Wait()

	assert.ElementsMatch(t, []Type{RefundRequested, RefundApproved}, rec.Types())
}

type gatedPublisher struct {
	gate chan struct{}
	rec  Recorder
}

func (p *gatedPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.Type == OrderCreated {
		<-p.gate
	}
	return p.rec.Publish(ctx, evt)
}

func TestEmitDuringWaitPublishesInline(t *testing.T) {
	pub := &gatedPublisher{gate: make(chan struct{})}
	d := NewDispatcher(pub, logger.Discard().WithField("component", "test"), time.Second)

	d.Emit(New(OrderCreated, AggregateOrder, "ORD-1", nil))

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.closing
	}, time.Second, 5*time.Millisecond)

	d.Emit(New(OrderStatusUpdated, AggregateOrder, "ORD-1", nil))
	assert.Equal(t, []Type{OrderStatusUpdated}, pub.rec.Types())

	close(pub.gate)
	<-done
	assert.ElementsMatch(t, []Type{OrderCreated, OrderStatusUpdated}, pub.rec.Types())
}

func TestDispatcherSwallowsPublishErrors(t *testing.T) {
	rec := &Recorder{Err: errors.New("broker down")}
	d := NewSyncDispatcher(rec, logger.Discard().WithField("component", "test"))

	require.NotPanics(t, func() {
		d.Emit(New(StockLow, AggregateInventory, "SKU-1", nil))
	})
	assert.Empty(t, rec.Events())
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Emit(New(OrderCreated, AggregateOrder, "x", nil)) })
}
