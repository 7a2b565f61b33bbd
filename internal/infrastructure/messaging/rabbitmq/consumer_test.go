package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"github.com/your-org/order-fulfillment/internal/domain/product"
	"github.com/your-org/order-fulfillment/internal/events"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
	"github.com/your-org/order-fulfillment/internal/testutil"
)

type ackRecorder struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

type fakeStock struct {
	err  error
	reqs []inventory.AdjustRequest
}

func (s *fakeStock) AdjustOnce(_ context.Context, req inventory.AdjustRequest) (*inventory.InventoryHistory, bool, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, false, s.err
	}
	return &inventory.InventoryHistory{}, true, nil
}

func deliver(t *testing.T, c *StockConsumer, body string, redelivered bool) *ackRecorder {
	t.Helper()
	ack := &ackRecorder{}
	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body), Redelivered: redelivered})
	return ack
}

func TestHandleAppliesCommand(t *testing.T) {
	stock := &fakeStock{}
	c := NewStockConsumer(stock, logger.Discard())

	ack := deliver(t, c, `{"product_id":3,"quantity":5,"type":"RESTOCK","reference_id":"PO-9"}`, false)
	assert.True(t, ack.acked)
	require.Len(t, stock.reqs, 1)
	assert.Equal(t, inventory.AdjustRequest{ProductID: 3, Delta: 5, Type: inventory.MovementRestock, ReferenceID: "PO-9"}, stock.reqs[0])
}

func TestHandleDeadLettersBadCommands(t *testing.T) {
	stock := &fakeStock{err: apperrors.New(apperrors.KindInsufficientStock, "not enough")}
	c := NewStockConsumer(stock, logger.Discard())

	ack := deliver(t, c, `not json`, false)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.Empty(t, stock.reqs)

	ack = deliver(t, c, `{"product_id":3,"quantity":-50,"type":"ADJUSTMENT"}`, false)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
}

func TestHandleRetriesStorageFailuresOnce(t *testing.T) {
	stock := &fakeStock{err: apperrors.Internal(errors.New("database is locked"), "failed to adjust")}
	c := NewStockConsumer(stock, logger.Discard())

	ack := deliver(t, c, `{"product_id":3,"quantity":1,"type":"RESTOCK"}`, false)
	assert.True(t, ack.requeued)

	ack = deliver(t, c, `{"product_id":3,"quantity":1,"type":"RESTOCK"}`, true)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
}

func TestHandleRedeliveredCommandChangesStockOnce(t *testing.T) {
	models := append([]any{&product.Product{}, &product.ProductVariant{}}, inventory.Models()...)
	db := testutil.NewDB(t, models...)
	cfg := testutil.Config()
	log := logger.Discard()
	inv := inventory.NewService(db, cfg, log, events.NewSyncDispatcher(&events.Recorder{}, log.WithField("component", "test")))

	p, err := product.NewService(db, cfg).CreateProduct(context.Background(), &product.CreateProductRequest{SKU: "MUG", Name: "Mug", BasePrice: 500})
	require.NoError(t, err)
	_, err = inv.Create(context.Background(), &inventory.CreateRequest{ProductID: p.ID, SKU: "MUG", InitialQuantity: 2})
	require.NoError(t, err)

	c := NewStockConsumer(inv, log)
	body := `{"product_id":` + strconv.Itoa(int(p.ID)) + `,"quantity":5,"type":"RESTOCK","reference_id":"PO-9"}`

	assert.True(t, deliver(t, c, body, false).acked)
	assert.True(t, deliver(t, c, body, true).acked)

	got, err := inv.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.StockQuantity)

	history, err := inv.History(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
