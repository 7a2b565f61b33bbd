// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
	"github.com/your-org/order-fulfillment/internal/events"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/uow"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// StockAdjuster writes stock movements through the inventory ledger
type StockAdjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, req inventory.AdjustRequest) (*inventory.InventoryHistory, error)
}

// UsageRestorer gives back a coupon redemption
type UsageRestorer interface {
	RestoreUsage(ctx context.Context, tx *gorm.DB, couponID, userID uint, orderID string) (bool, error)
}

// PaymentReverser pays collected money back through the payment collaborator
type PaymentReverser interface {
	RefundPayment(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error)
}

// CodeReversalFailed marks a cancellation whose payment could not be paid back
const CodeReversalFailed = "PAYMENT_REVERSAL_FAILED"

// Service handles order business logic
type Service struct {
	db       *gorm.DB
	runner   uow.Runner
	config   *config.Config
	log      *logrus.Entry
	stock    StockAdjuster
	coupons  UsageRestorer
	payments PaymentReverser
	events   *events.Dispatcher
}

// NewService creates a new order service
func NewService(db *gorm.DB, cfg *config.Config, log *logrus.Logger, stock StockAdjuster, coupons UsageRestorer, payments PaymentReverser, dispatcher *events.Dispatcher) *Service {
	return &Service{
		db:       db,
		runner:   uow.NewRunner(db),
		config:   cfg,
		log:      log.WithField("component", "order"),
		stock:    stock,
		coupons:  coupons,
		payments: payments,
		events:   dispatcher,
	}
}

// ListRequest represents order list query parameters
type ListRequest struct {
	Page      int         `form:"page,default=1"`
	Limit     int         `form:"limit,default=20"`
	Status    OrderStatus `form:"status"`
	UserID    uint        `form:"user_id"`
	SortBy    string      `form:"sort_by,default=created_at"`
	SortOrder string      `form:"sort_order,default=desc"`
}

// ListResponse represents orders with pagination
type ListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// PaymentUpdate is a payment outcome applied to an order
type PaymentUpdate struct {
	Status        PaymentStatus
	TransactionID string
	GatewayURL    string
	WalletUsed    int64
	CashbackUsed  int64
	Note          string
}

// StatusChange is the payload of OrderStatusUpdated
type StatusChange struct {
	OrderID       string        `json:"order_id"`
	UserID        uint          `json:"user_id"`
	From          OrderStatus   `json:"from"`
	To            OrderStatus   `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Comment       string        `json:"comment,omitempty"`
}

// Place writes a new PENDING order with its items and first history row.
// It only runs inside the caller's unit of work.
func (s *Service) Place(ctx context.Context, tx *gorm.DB, o *Order) error {
	if tx == nil {
		return apperrors.New(apperrors.KindInternalFailure, "placing an order requires a transaction")
	}
	if len(o.Items) == 0 {
		return apperrors.New(apperrors.KindValidationFailed, "order has no items")
	}

	if o.OrderID == "" {
		o.OrderID = NewOrderID(time.Now())
	}
	o.Status = OrderStatusPending
	if o.Billing.PaymentStatus == "" {
		o.Billing.PaymentStatus = PaymentStatusPending
	}
	if o.Billing.Currency == "" {
		o.Billing.Currency = s.config.Fulfillment.Currency
	}

	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		return apperrors.Internal(err, "failed to create order")
	}

	history := OrderStatusHistory{
		OrderID:   o.ID,
		Status:    OrderStatusPending,
		Comment:   "Order created",
		CreatedBy: o.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&history).Error; err != nil {
		return apperrors.Internal(err, "failed to create status history")
	}
	o.StatusHistory = []OrderStatusHistory{history}
	return nil
}

// Get retrieves a single order by its order id
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return Find(s.db.WithContext(ctx), orderID)
}

// GetForUser retrieves an order owned by the user. Orders of other users
// are reported as missing.
func (s *Service) GetForUser(ctx context.Context, userID uint, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperrors.Newf(apperrors.KindNotFound, "order %s not found", orderID)
	}
	return o, nil
}

// Find loads an order with items and history using the given handle, which
// may be a transaction.
func Find(db *gorm.DB, orderID string) (*Order, error) {
	var o Order
	err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("order_id = ?", orderID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "order %s not found", orderID)
		}
		return nil, apperrors.Internal(err, "failed to retrieve order")
	}
	return &o, nil
}

// List retrieves orders with filtering and pagination
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	var orders []Order
	var total int64

	query := s.db.WithContext(ctx).Model(&Order{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Preload("Items").
		Order(buildOrderClause(req.SortBy, req.SortOrder)).
		Offset(offset).Limit(req.Limit).
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &ListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// UpdateStatus moves an order forward along the fulfillment path.
// Cancellation and refunds have their own entry points.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to OrderStatus, actor Actor, comment string) (*Order, error) {
	switch to {
	case OrderStatusCancelled:
		return nil, apperrors.New(apperrors.KindInvalidState, "use cancel to cancel an order")
	case OrderStatusRefunded:
		return nil, apperrors.New(apperrors.KindInvalidState, "orders are refunded by the refund process")
	}
	if !to.Valid() {
		return nil, apperrors.Newf(apperrors.KindValidationFailed, "unknown order status %s", to)
	}

	var (
		o    *Order
		from OrderStatus
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		o, err = Find(tx, orderID)
		if err != nil {
			return err
		}
		from = o.Status

		now := time.Now().UTC()
		updates := map[string]interface{}{}
		if to == OrderStatusDelivered && o.Billing.PaymentMethod == PaymentMethodCOD && o.Billing.PaymentStatus == PaymentStatusPending {
			updates["billing_payment_status"] = PaymentStatusPaid
			o.Billing.PaymentStatus = PaymentStatusPaid
		}
		return s.transition(tx, o, to, updates, actor, comment, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": o.OrderID,
		"from":     from,
		"to":       to,
		"actor":    actor.ID,
	}).Info("order status updated")
	s.EmitStatusUpdated(o, from, comment)

	return o, nil
}

// Cancel cancels a PENDING or CONFIRMED order. Sold stock goes back to the
// ledger and the coupon redemption is given back in the same transaction.
// A settled payment is reversed through the gateway before the cancellation
// commits; if the reversal fails the order is left as it was.
func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by " + strings.ToLower(actor.Role)
	}

	var (
		o    *Order
		from OrderStatus
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		o, err = Find(tx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == RoleCustomer && o.UserID != actor.ID {
			return apperrors.Newf(apperrors.KindNotFound, "order %s not found", orderID)
		}
		if !o.CanBeCancelled() {
			return apperrors.Newf(apperrors.KindInvalidState, "order cannot be cancelled in current status: %s", o.Status)
		}
		from = o.Status

		for _, item := range o.Items {
			_, err := s.stock.Adjust(ctx, tx, inventory.AdjustRequest{
				ProductID:   item.ProductID,
				VariantSKU:  item.VariantSKU,
				Delta:       item.Quantity,
				Type:        inventory.MovementReturn,
				ReferenceID: o.OrderID,
				Reason:      "order cancelled",
			})
			if err != nil {
				return fmt.Errorf("failed to restore inventory: %w", err)
			}
		}

		if o.Billing.AppliedCouponID != nil {
			if _, err := s.coupons.RestoreUsage(ctx, tx, *o.Billing.AppliedCouponID, o.UserID, o.OrderID); err != nil {
				return fmt.Errorf("failed to restore coupon usage: %w", err)
			}
		}

		updates := map[string]interface{}{"cancel_reason": reason}
		if o.Billing.PaymentStatus == PaymentStatusPaid {
			if err := s.reverse(ctx, o, o.Billing.TransactionID, updates); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		o.CancelReason = reason
		return s.transition(tx, o, OrderStatusCancelled, updates, actor, "Order cancelled: "+reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": o.OrderID,
		"from":     from,
		"reason":   reason,
	}).Info("order cancelled")
	s.EmitStatusUpdated(o, from, reason)

	return o, nil
}

// ApplyPayment records a payment outcome. A settled payment confirms a
// PENDING order. Repeating the current status only refreshes the gateway
// references. Money settled on a cancelled order is paid straight back.
func (s *Service) ApplyPayment(ctx context.Context, orderID string, update PaymentUpdate) (*Order, error) {
	var (
		o    *Order
		from OrderStatus
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		o, err = Find(tx, orderID)
		if err != nil {
			return err
		}
		from = o.Status

		if o.Status == OrderStatusCancelled && update.Status == PaymentStatusPaid {
			return s.reverseLatePayment(ctx, tx, o, update.TransactionID)
		}

		current := o.Billing.PaymentStatus
		if current != update.Status && !CanTransitionPayment(current, update.Status) {
			return apperrors.Newf(apperrors.KindInvalidState, "payment cannot move from %s to %s", current, update.Status)
		}

		updates := map[string]interface{}{"billing_payment_status": update.Status}
		if update.TransactionID != "" {
			updates["billing_transaction_id"] = update.TransactionID
			o.Billing.TransactionID = update.TransactionID
		}
		if update.GatewayURL != "" {
			updates["billing_gateway_url"] = update.GatewayURL
			o.Billing.GatewayURL = update.GatewayURL
		}
		if update.WalletUsed > 0 {
			updates["billing_wallet_used"] = update.WalletUsed
			o.Billing.WalletUsed = update.WalletUsed
		}
		if update.CashbackUsed > 0 {
			updates["billing_cashback_used"] = update.CashbackUsed
			o.Billing.CashbackUsed = update.CashbackUsed
		}
		o.Billing.PaymentStatus = update.Status

		if update.Status == PaymentStatusPaid && o.Status == OrderStatusPending {
			comment := update.Note
			if comment == "" {
				comment = "Payment settled"
			}
			return s.transition(tx, o, OrderStatusConfirmed, updates, System, comment, time.Now().UTC())
		}

		if err := tx.Model(&Order{}).Where("id = ?", o.ID).Updates(updates).Error; err != nil {
			return apperrors.Internal(err, "failed to update payment status")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":       o.OrderID,
		"payment_status": o.Billing.PaymentStatus,
		"transaction_id": o.Billing.TransactionID,
	}).Info("order payment updated")
	if o.Status != from {
		s.EmitStatusUpdated(o, from, update.Note)
	}

	return o, nil
}

// reverseLatePayment pays back a payment that settled after the order was
// cancelled. A repeated callback for an already reversed payment is a no-op.
func (s *Service) reverseLatePayment(ctx context.Context, tx *gorm.DB, o *Order, transactionID string) error {
	if o.Billing.PaymentStatus == PaymentStatusRefunded {
		return nil
	}
	if transactionID == "" {
		transactionID = o.Billing.TransactionID
	}

	updates := map[string]interface{}{"billing_transaction_id": transactionID}
	o.Billing.TransactionID = transactionID
	if err := s.reverse(ctx, o, transactionID, updates); err != nil {
		return err
	}
	if err := tx.Model(&Order{}).Where("id = ?", o.ID).Updates(updates).Error; err != nil {
		return apperrors.Internal(err, "failed to record payment reversal")
	}

	s.log.WithFields(logrus.Fields{
		"order_id":       o.OrderID,
		"transaction_id": transactionID,
		"amount":         o.TotalRefundedAmount,
	}).Warn("payment settled on cancelled order was reversed")
	return nil
}

// reverse refunds whatever is left of the payable amount through the gateway
// and adds the resulting billing columns to updates. Any status other than a
// confirmed reversal is an error.
func (s *Service) reverse(ctx context.Context, o *Order, transactionID string, updates map[string]interface{}) error {
	amount := o.RefundableBalance()
	if amount > 0 {
		if s.payments == nil {
			return apperrors.New(apperrors.KindExternalUnavailable, "payment reversal is not available").WithCode(CodeReversalFailed)
		}

		pctx, cancel := context.WithTimeout(ctx, s.config.External.Payment.Timeout)
		defer cancel()
		res, err := s.payments.RefundPayment(pctx, payment.RefundRequest{
			RefundID:      "REV-" + o.OrderID,
			OrderID:       o.OrderID,
			TransactionID: transactionID,
			Amount:        amount,
			WalletRefund:  o.Billing.WalletUsed,
		})
		if err != nil {
			return &apperrors.Error{Kind: apperrors.KindExternalUnavailable, Code: CodeReversalFailed, Message: "payment reversal failed", Err: err}
		}
		if res.Status != payment.RefundSucceeded {
			return apperrors.Newf(apperrors.KindExternalUnavailable, "payment reversal declined: %s", res.FailureReason).WithCode(CodeReversalFailed)
		}
	}

	o.TotalRefundedAmount += amount
	o.Billing.PaymentStatus = PaymentStatusRefunded
	updates["total_refunded_amount"] = o.TotalRefundedAmount
	updates["billing_payment_status"] = PaymentStatusRefunded
	return nil
}

// RecordRefund books a completed refund on the order inside the refund's
// transaction. A full refund moves the order to REFUNDED.
func (s *Service) RecordRefund(ctx context.Context, tx *gorm.DB, orderID string, amount int64, full bool, actor Actor) (*Order, error) {
	if tx == nil {
		return nil, apperrors.New(apperrors.KindInternalFailure, "recording a refund requires a transaction")
	}

	o, err := Find(tx.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}

	payment := PaymentStatusPartiallyRefunded
	if full {
		payment = PaymentStatusRefunded
	}
	if !CanTransitionPayment(o.Billing.PaymentStatus, payment) {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "payment cannot move from %s to %s", o.Billing.PaymentStatus, payment)
	}

	o.TotalRefundedAmount += amount
	o.Billing.PaymentStatus = payment
	updates := map[string]interface{}{
		"total_refunded_amount":  gorm.Expr("total_refunded_amount + ?", amount),
		"billing_payment_status": payment,
	}

	if !full {
		if err := tx.Model(&Order{}).Where("id = ?", o.ID).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal(err, "failed to record refund")
		}
		return o, nil
	}

	comment := fmt.Sprintf("Refunded %d", amount)
	if err := s.transition(tx, o, OrderStatusRefunded, updates, actor, comment, time.Now().UTC()); err != nil {
		return nil, err
	}
	return o, nil
}

// EmitStatusUpdated publishes an OrderStatusUpdated fact. Callers invoke it
// after their transaction commits.
func (s *Service) EmitStatusUpdated(o *Order, from OrderStatus, comment string) {
	s.events.Emit(events.New(events.OrderStatusUpdated, events.AggregateOrder, o.OrderID, StatusChange{
		OrderID:       o.OrderID,
		UserID:        o.UserID,
		From:          from,
		To:            o.Status,
		PaymentStatus: o.Billing.PaymentStatus,
		Comment:       comment,
	}))
}

// transition applies a status change guarded on the status the order was
// read with, stamps the matching timestamp and appends a history row.
func (s *Service) transition(tx *gorm.DB, o *Order, to OrderStatus, updates map[string]interface{}, actor Actor, comment string, now time.Time) error {
	from := o.Status
	if !CanTransition(from, to) {
		return apperrors.Newf(apperrors.KindInvalidState, "invalid status transition from %s to %s", from, to)
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	if col := timestampColumn(to); col != "" {
		updates[col] = now
	}
	stamp(o, to, now)

	result := tx.Model(&Order{}).Where("id = ? AND status = ?", o.ID, from).Updates(updates)
	if result.Error != nil {
		return apperrors.Internal(result.Error, "failed to update order status")
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindConflict, "order %s was modified concurrently", o.OrderID)
	}
	o.Status = to

	history := OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: from,
		Status:     to,
		Comment:    comment,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return apperrors.Internal(err, "failed to create status history")
	}
	o.StatusHistory = append(o.StatusHistory, history)
	return nil
}

func timestampColumn(status OrderStatus) string {
	switch status {
	case OrderStatusConfirmed:
		return "confirmed_at"
	case OrderStatusShipped:
		return "shipped_at"
	case OrderStatusDelivered:
		return "delivered_at"
	case OrderStatusCompleted:
		return "completed_at"
	case OrderStatusCancelled:
		return "cancelled_at"
	case OrderStatusRefunded:
		return "refunded_at"
	}
	return ""
}

func stamp(o *Order, status OrderStatus, now time.Time) {
	switch status {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCompleted:
		o.CompletedAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	case OrderStatusRefunded:
		o.RefundedAt = &now
	}
}

func buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":             true,
		"updated_at":             true,
		"billing_payable_amount": true,
		"status":                 true,
		"order_id":               true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s, id %s", sortBy, sortOrder, sortOrder)
}
