package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/domain/coupon"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
	"github.com/your-org/order-fulfillment/internal/domain/product"
	"github.com/your-org/order-fulfillment/internal/events"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
	"github.com/your-org/order-fulfillment/internal/testutil"
	"gorm.io/gorm"
)

func productPrice(base int64, discount *int64) product.PriceSnapshot {
	return product.PriceSnapshot{BasePrice: base, DiscountPrice: discount, Currency: "INR"}
}

type fakeReverser struct {
	mu       sync.Mutex
	err      error
	status   payment.RefundStatus
	requests []payment.RefundRequest
}

func (r *fakeReverser) RefundPayment(_ context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == "" {
		status = payment.RefundSucceeded
	}
	return &payment.RefundResult{Status: status, GatewayRefundID: "rf_" + req.OrderID, FailureReason: "declined"}, nil
}

func (r *fakeReverser) calls() []payment.RefundRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]payment.RefundRequest(nil), r.requests...)
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	products  *product.Service
	inventory *inventory.Service
	coupons   *coupon.Service
	payments  *fakeReverser
	recorder  *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	models := []any{&product.Product{}, &product.ProductVariant{}}
	models = append(models, inventory.Models()...)
	models = append(models, coupon.Models()...)
	models = append(models, Models()...)
	db := testutil.NewDB(t, models...)
	cfg := testutil.Config()
	log := logger.Discard()
	rec := &events.Recorder{}
	dispatcher := events.NewSyncDispatcher(rec, log.WithField("component", "test"))

	inv := inventory.NewService(db, cfg, log, dispatcher)
	coupons := coupon.NewService(db, cfg, log)
	payments := &fakeReverser{}
	return &fixture{
		db:        db,
		svc:       NewService(db, cfg, log, inv, coupons, payments, dispatcher),
		products:  product.NewService(db, cfg),
		inventory: inv,
		coupons:   coupons,
		payments:  payments,
		recorder:  rec,
	}
}

func (f *fixture) stocked(t *testing.T, sku string, qty int) *product.Product {
	t.Helper()

	p, err := f.products.CreateProduct(context.Background(), &product.CreateProductRequest{SKU: sku, Name: sku, BasePrice: 10000})
	require.NoError(t, err)
	_, err = f.inventory.Create(context.Background(), &inventory.CreateRequest{ProductID: p.ID, SKU: sku, InitialQuantity: qty})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, productID uint) int {
	t.Helper()

	inv, err := f.inventory.Get(context.Background(), productID)
	require.NoError(t, err)
	return inv.StockQuantity
}

// place sells qty units and writes a PENDING order the way checkout does
func (f *fixture) place(t *testing.T, userID uint, p *product.Product, qty int, couponID *uint, method string) *Order {
	t.Helper()
	ctx := context.Background()

	item := NewItem(p.ID, "", p.Name, "", qty, productPrice(p.BasePrice, nil))
	o := &Order{
		UserID:    userID,
		AddressID: 1,
		Billing: BillingInfo{
			TotalAmount:     item.LineTotal,
			PayableAmount:   item.LineTotal,
			PaymentMethod:   method,
			AppliedCouponID: couponID,
		},
		Items: []OrderItem{item},
	}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.svc.Place(ctx, tx, o); err != nil {
			return err
		}
		if couponID != nil {
			if err := f.coupons.IncrementUsage(ctx, tx, *couponID, userID, o.OrderID, 0); err != nil {
				return err
			}
		}
		_, err := f.inventory.Adjust(ctx, tx, inventory.AdjustRequest{
			ProductID: p.ID, Delta: -qty, Type: inventory.MovementSale, ReferenceID: o.OrderID,
		})
		return err
	})
	require.NoError(t, err)
	return o
}

func admin() Actor { return Actor{ID: 99, Role: RoleAdmin} }

func TestPlaceWritesOrderItemsAndHistory(t *testing.T) {
	f := newFixture(t)
	p := f.stocked(t, "A", 5)

	o := f.place(t, 1, p, 2, nil, PaymentMethodOnline)

	got, err := f.svc.Get(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, got.Status)
	assert.Equal(t, PaymentStatusPending, got.Billing.PaymentStatus)
	assert.Equal(t, "INR", got.Billing.Currency)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(20000), got.Items[0].LineTotal)
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, OrderStatusPending, got.StatusHistory[0].Status)

	_, err = f.svc.GetForUser(context.Background(), 2, o.OrderID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	assert.Error(t, f.svc.Place(context.Background(), nil, &Order{}))
}

func TestUpdateStatusWalksForwardOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 1, nil, PaymentMethodCOD)

	_, err := f.svc.UpdateStatus(ctx, o.OrderID, OrderStatusShipped, admin(), "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	for _, to := range []OrderStatus{OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered} {
		_, err := f.svc.UpdateStatus(ctx, o.OrderID, to, admin(), "")
		require.NoError(t, err)
	}

	got, err := f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDelivered, got.Status)
	assert.Equal(t, PaymentStatusPaid, got.Billing.PaymentStatus)
	assert.NotNil(t, got.ConfirmedAt)
	assert.NotNil(t, got.ShippedAt)
	assert.NotNil(t, got.DeliveredAt)
	require.Len(t, got.StatusHistory, 4)
	assert.Equal(t, OrderStatusShipped, got.StatusHistory[3].FromStatus)

	_, err = f.svc.UpdateStatus(ctx, o.OrderID, OrderStatusConfirmed, admin(), "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	_, err = f.svc.UpdateStatus(ctx, o.OrderID, OrderStatusRefunded, admin(), "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	assert.Equal(t, []events.Type{events.OrderStatusUpdated, events.OrderStatusUpdated, events.OrderStatusUpdated}, f.recorder.Types())
}

func TestCancelReturnsStockAndCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	c, err := f.coupons.Create(ctx, &coupon.CreateCouponRequest{
		Code: "ONCE", DiscountType: pricing.DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
		UsageLimitPerUser: 1, ValidFrom: time.Now().Add(-time.Hour), ValidTo: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	o := f.place(t, 1, p, 2, &c.ID, PaymentMethodOnline)
	assert.Equal(t, 3, f.stock(t, p.ID))

	_, err = f.svc.Cancel(ctx, o.OrderID, Actor{ID: 2, Role: RoleCustomer}, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	got, err := f.svc.Cancel(ctx, o.OrderID, Actor{ID: 1, Role: RoleCustomer}, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancelReason)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, 5, f.stock(t, p.ID))

	live, err := f.coupons.LiveUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), live)

	history, err := f.inventory.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementReturn, history[0].Type)
	assert.Equal(t, o.OrderID, history[0].ReferenceID)

	_, err = f.svc.Cancel(ctx, o.OrderID, admin(), "again")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestCancelPaidOrderReversesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 2, nil, PaymentMethodOnline)

	_, err := f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid, TransactionID: "txn_1"})
	require.NoError(t, err)

	f.payments.err = errors.New("connection reset")
	_, err = f.svc.Cancel(ctx, o.OrderID, admin(), "out of stock at warehouse")
	assert.True(t, apperrors.IsKind(err, apperrors.KindExternalUnavailable))
	assert.Equal(t, CodeReversalFailed, apperrors.CodeOf(err))

	stored, err := f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, stored.Status)
	assert.Equal(t, PaymentStatusPaid, stored.Billing.PaymentStatus)
	assert.Equal(t, 3, f.stock(t, p.ID))

	f.payments.err = nil
	f.payments.status = payment.RefundFailed
	_, err = f.svc.Cancel(ctx, o.OrderID, admin(), "out of stock at warehouse")
	assert.Equal(t, CodeReversalFailed, apperrors.CodeOf(err))

	f.payments.status = payment.RefundSucceeded
	got, err := f.svc.Cancel(ctx, o.OrderID, admin(), "out of stock at warehouse")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, got.Status)
	assert.Equal(t, PaymentStatusRefunded, got.Billing.PaymentStatus)

	stored, err = f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusRefunded, stored.Billing.PaymentStatus)
	assert.Equal(t, int64(20000), stored.TotalRefundedAmount)
	assert.Equal(t, 5, f.stock(t, p.ID))

	calls := f.payments.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, int64(20000), calls[2].Amount)
	assert.Equal(t, "txn_1", calls[2].TransactionID)
}

func TestCancelUnpaidOrderDoesNotCallGateway(t *testing.T) {
	f := newFixture(t)
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 1, nil, PaymentMethodCOD)

	got, err := f.svc.Cancel(context.Background(), o.OrderID, Actor{ID: 1, Role: RoleCustomer}, "")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, got.Billing.PaymentStatus)
	assert.Empty(t, f.payments.calls())
}

func TestPaymentSettledAfterCancelIsReversed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 1, nil, PaymentMethodOnline)

	_, err := f.svc.Cancel(ctx, o.OrderID, Actor{ID: 1, Role: RoleCustomer}, "")
	require.NoError(t, err)

	f.payments.err = errors.New("timeout")
	_, err = f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid, TransactionID: "txn_late"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindExternalUnavailable))

	stored, err := f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, stored.Billing.PaymentStatus)

	f.payments.err = nil
	got, err := f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid, TransactionID: "txn_late"})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, got.Status)
	assert.Equal(t, PaymentStatusRefunded, got.Billing.PaymentStatus)

	stored, err = f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, stored.Status)
	assert.Equal(t, PaymentStatusRefunded, stored.Billing.PaymentStatus)
	assert.Equal(t, "txn_late", stored.Billing.TransactionID)
	assert.Equal(t, int64(10000), stored.TotalRefundedAmount)

	_, err = f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid, TransactionID: "txn_late"})
	require.NoError(t, err)

	calls := f.payments.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "txn_late", calls[1].TransactionID)
	assert.Equal(t, int64(10000), calls[1].Amount)
}

func TestCancelNotAllowedAfterShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 1, nil, PaymentMethodOnline)

	_, err := f.svc.UpdateStatus(ctx, o.OrderID, OrderStatusConfirmed, admin(), "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.OrderID, OrderStatusShipped, admin(), "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, o.OrderID, admin(), "too late")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestApplyPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 1, nil, PaymentMethodOnline)

	got, err := f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, got.Status)
	assert.Equal(t, PaymentStatusFailed, got.Billing.PaymentStatus)

	_, err = f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	_, err = f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPending, GatewayURL: "https://pay.example/1"})
	require.NoError(t, err)

	got, err = f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid, TransactionID: "txn_1"})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, got.Status)

	stored, err := f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, stored.Billing.PaymentStatus)
	assert.Equal(t, "txn_1", stored.Billing.TransactionID)
	assert.Equal(t, "https://pay.example/1", stored.Billing.GatewayURL)
	assert.NotNil(t, stored.ConfirmedAt)

	_, err = f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid, TransactionID: "txn_1"})
	assert.NoError(t, err)
}

func TestRecordRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 5)
	o := f.place(t, 1, p, 2, nil, PaymentMethodOnline)

	_, err := f.svc.ApplyPayment(ctx, o.OrderID, PaymentUpdate{Status: PaymentStatusPaid})
	require.NoError(t, err)
	for _, to := range []OrderStatus{OrderStatusShipped, OrderStatusDelivered} {
		_, err := f.svc.UpdateStatus(ctx, o.OrderID, to, admin(), "")
		require.NoError(t, err)
	}

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.RecordRefund(ctx, tx, o.OrderID, 5000, false, admin())
		return err
	}))
	got, err := f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDelivered, got.Status)
	assert.Equal(t, PaymentStatusPartiallyRefunded, got.Billing.PaymentStatus)
	assert.Equal(t, int64(5000), got.TotalRefundedAmount)
	assert.Equal(t, int64(15000), got.RefundableBalance())

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.RecordRefund(ctx, tx, o.OrderID, 15000, true, admin())
		return err
	}))
	got, err = f.svc.Get(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRefunded, got.Status)
	assert.Equal(t, PaymentStatusRefunded, got.Billing.PaymentStatus)
	assert.Equal(t, int64(20000), got.TotalRefundedAmount)
	assert.NotNil(t, got.RefundedAt)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.stocked(t, "A", 10)
	f.place(t, 1, p, 1, nil, PaymentMethodOnline)
	f.place(t, 1, p, 1, nil, PaymentMethodOnline)
	f.place(t, 2, p, 1, nil, PaymentMethodOnline)

	res, err := f.svc.List(ctx, &ListRequest{UserID: 1, Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)
	assert.True(t, res.Pagination.HasNext)
	require.Len(t, res.Orders, 1)
	assert.Len(t, res.Orders[0].Items, 1)
}
