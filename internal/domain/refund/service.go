// internal/domain/refund/service.go
package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
	"github.com/your-org/order-fulfillment/internal/events"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/uow"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"github.com/your-org/order-fulfillment/internal/pkg/metrics"
	"gorm.io/gorm"
)

// Error codes surfaced to clients
const (
	CodeRefundExists     = "REFUND_EXISTS"
	CodeNotEligible      = "NOT_ELIGIBLE"
	CodeWindowExpired    = "WINDOW_EXPIRED"
	CodeEvidenceRequired = "EVIDENCE_REQUIRED"
	CodeMonthlyLimit     = "MONTHLY_LIMIT"
)

// Audit actions
const (
	ActionRequested      = "REQUESTED"
	ActionSubmitted      = "SUBMITTED_FOR_APPROVAL"
	ActionApproved       = "APPROVED"
	ActionRejected       = "REJECTED"
	ActionProcessing     = "PROCESSING"
	ActionCompleted      = "COMPLETED"
	ActionFailed         = "FAILED"
	ActionCancelled      = "CANCELLED"
	ActionReopened       = "REOPENED"
	ActionNote           = "NOTE"
	ActionGatewayTimeout = "GATEWAY_TIMEOUT"
)

var transitions = map[Status][]Status{
	StatusRequested:       {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:        {StatusProcessing},
	StatusProcessing:      {StatusCompleted, StatusFailed},
	StatusFailed:          {StatusApproved},
}

// CanTransition reports whether a refund may move from one status to another
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderBook is the part of the order service refunds write through
type OrderBook interface {
	RecordRefund(ctx context.Context, tx *gorm.DB, orderID string, amount int64, full bool, actor order.Actor) (*order.Order, error)
	EmitStatusUpdated(o *order.Order, from order.OrderStatus, comment string)
}

// Dependencies are the collaborators of the refund service
type Dependencies struct {
	Orders    OrderBook
	Inventory order.StockAdjuster
	Coupons   order.UsageRestorer
	Payments  payment.Gateway
	Events    *events.Dispatcher
}

// Service handles refund business logic
type Service struct {
	db     *gorm.DB
	runner uow.Runner
	config *config.Config
	log    *logrus.Entry
	deps   Dependencies
	now    func() time.Time
}

// NewService creates a new refund service
func NewService(db *gorm.DB, cfg *config.Config, log *logrus.Logger, deps Dependencies) *Service {
	return &Service{
		db:     db,
		runner: uow.NewRunner(db),
		config: cfg,
		log:    log.WithField("component", "refund"),
		deps:   deps,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListResponse represents refunds with pagination
type ListResponse struct {
	Refunds    []Refund         `json:"refunds"`
	Pagination order.Pagination `json:"pagination"`
}

// NewRefundID generates a human readable refund id
func NewRefundID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RFD-%s-%s", now.Format("20060102"), suffix)
}

// Request files a refund for one of the user's orders. The refund is
// created and submitted for approval in one transaction.
func (s *Service) Request(ctx context.Context, userID uint, req *CreateRequest) (*Refund, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	customer := order.Actor{ID: userID, Role: order.RoleCustomer}
	now := s.now()

	var r *Refund
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		o, err := order.Find(tx, req.OrderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperrors.Newf(apperrors.KindNotFound, "order %s not found", req.OrderID)
		}
		if err := s.checkEligibility(o, req.Type, now); err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&Refund{}).
			Where("order_id = ? AND status NOT IN ?", o.OrderID, settledStatuses).
			Count(&active).Error; err != nil {
			return apperrors.Internal(err, "failed to check existing refunds")
		}
		if active > 0 {
			return apperrors.Newf(apperrors.KindConflict, "order %s already has an active refund", o.OrderID).WithCode(CodeRefundExists)
		}

		items, err := s.selectItems(tx, o, req)
		if err != nil {
			return err
		}

		amounts := Calculate(o, req.Type, items, Fees{})
		if amounts.TotalRefundAmount <= 0 {
			return apperrors.Newf(apperrors.KindValidationFailed, "nothing left to refund on order %s", o.OrderID).WithCode(CodeNotEligible)
		}
		if err := s.checkMonthlyLimits(tx, userID, amounts.TotalRefundAmount, now); err != nil {
			return err
		}

		r = &Refund{
			RefundID:    NewRefundID(now),
			OrderID:     o.OrderID,
			UserID:      userID,
			Type:        req.Type,
			Reason:      req.Reason,
			Description: strings.TrimSpace(req.Description),
			Evidence:    req.Evidence,
			Status:      StatusRequested,
			Amounts:     amounts,
			Timeline:    Timeline{RequestedAt: &now},
			Items:       items,
		}
		if err := tx.Create(r).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Newf(apperrors.KindConflict, "order %s already has an active refund", o.OrderID).WithCode(CodeRefundExists)
			}
			return apperrors.Internal(err, "failed to create refund")
		}
		if err := s.audit(tx, r, ActionRequested, "", StatusRequested, customer, r.Description, now); err != nil {
			return err
		}
		return s.transition(tx, r, StatusPendingApproval, nil, customer, ActionSubmitted, "", now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"refund_id": r.RefundID,
		"order_id":  r.OrderID,
		"type":      r.Type,
		"amount":    r.Amounts.TotalRefundAmount,
	}).Info("refund requested")
	s.emit(events.RefundRequested, r)

	return r, nil
}

func (s *Service) validateRequest(req *CreateRequest) error {
	if !req.Type.Valid() {
		return apperrors.Newf(apperrors.KindValidationFailed, "unknown refund type %s", req.Type)
	}
	if !req.Reason.Valid() {
		return apperrors.Newf(apperrors.KindValidationFailed, "unknown refund reason %s", req.Reason)
	}
	if s.config.Fulfillment.RequiresEvidence(string(req.Reason)) {
		if strings.TrimSpace(req.Description) == "" || req.Evidence.Empty() {
			return apperrors.Newf(apperrors.KindValidationFailed, "reason %s requires a description and photo or video evidence", req.Reason).WithCode(CodeEvidenceRequired)
		}
	}
	if req.Type == TypePartial && len(req.Items) == 0 {
		return apperrors.New(apperrors.KindValidationFailed, "partial refund requires items")
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return apperrors.New(apperrors.KindValidationFailed, "item quantity must be at least 1")
		}
	}
	return nil
}

func (s *Service) checkEligibility(o *order.Order, t Type, now time.Time) error {
	rules := s.config.Fulfillment

	if !rules.IsRefundableStatus(string(o.Status)) {
		return apperrors.Newf(apperrors.KindInvalidState, "order in status %s cannot be refunded", o.Status).WithCode(CodeNotEligible)
	}
	switch o.Billing.PaymentStatus {
	case order.PaymentStatusPaid, order.PaymentStatusPartiallyRefunded:
	default:
		return apperrors.Newf(apperrors.KindInvalidState, "order payment is %s", o.Billing.PaymentStatus).WithCode(CodeNotEligible)
	}

	since := o.DeliveredAt
	if since == nil {
		since = o.ShippedAt
	}
	if since == nil {
		return apperrors.New(apperrors.KindInvalidState, "order has not been shipped").WithCode(CodeNotEligible)
	}
	if now.After(since.AddDate(0, 0, rules.RefundWindowDays)) {
		return apperrors.Newf(apperrors.KindValidationFailed, "refund window of %d days has passed", rules.RefundWindowDays).WithCode(CodeWindowExpired)
	}

	if t == TypeShipping && o.Billing.DeliveryCharge == 0 {
		return apperrors.New(apperrors.KindValidationFailed, "order has no delivery charge to refund").WithCode(CodeNotEligible)
	}
	return nil
}

// selectItems resolves the refunded lines. Quantities already paid back by
// completed refunds are not available again.
func (s *Service) selectItems(tx *gorm.DB, o *order.Order, req *CreateRequest) ([]RefundItem, error) {
	if req.Type == TypeShipping {
		return nil, nil
	}
	if req.Type == TypeFull {
		items := make([]RefundItem, 0, len(o.Items))
		for _, line := range o.Items {
			items = append(items, newItem(line, line.Quantity))
		}
		return items, nil
	}

	var refunded []struct {
		ProductID  uint
		VariantSKU string
		Quantity   int
	}
	err := tx.Model(&RefundItem{}).
		Select("refund_items.product_id, refund_items.variant_sku, SUM(refund_items.quantity) AS quantity").
		Joins("JOIN refunds ON refunds.id = refund_items.refund_id").
		Where("refunds.order_id = ? AND refunds.status = ?", o.OrderID, StatusCompleted).
		Group("refund_items.product_id, refund_items.variant_sku").
		Scan(&refunded).Error
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load refunded quantities")
	}
	used := make(map[string]int, len(refunded))
	for _, r := range refunded {
		used[lineKey(r.ProductID, r.VariantSKU)] = r.Quantity
	}

	items := make([]RefundItem, 0, len(req.Items))
	for _, want := range req.Items {
		line, ok := o.Item(want.ProductID, want.VariantSKU)
		if !ok {
			return nil, apperrors.Newf(apperrors.KindValidationFailed, "product %d is not part of order %s", want.ProductID, o.OrderID)
		}
		key := lineKey(want.ProductID, want.VariantSKU)
		if used[key]+want.Quantity > line.Quantity {
			return nil, apperrors.Newf(apperrors.KindValidationFailed, "only %d of product %d can still be refunded", line.Quantity-used[key], want.ProductID)
		}
		used[key] += want.Quantity
		items = append(items, newItem(*line, want.Quantity))
	}
	return items, nil
}

func newItem(line order.OrderItem, qty int) RefundItem {
	return RefundItem{
		ProductID:  line.ProductID,
		VariantSKU: line.VariantSKU,
		Title:      line.Title,
		Quantity:   qty,
		UnitPrice:  line.UnitPrice,
		Amount:     line.UnitPrice * int64(qty),
	}
}

func lineKey(productID uint, sku string) string {
	return fmt.Sprintf("%d/%s", productID, sku)
}

func (s *Service) checkMonthlyLimits(tx *gorm.DB, userID uint, amount int64, now time.Time) error {
	rules := s.config.Fulfillment
	if rules.MaxRefundsPerMonth <= 0 && rules.MaxRefundAmountPerMonth <= 0 {
		return nil
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var usage struct {
		Count int64
		Total int64
	}
	err := tx.Model(&Refund{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount_total_refund_amount), 0) AS total").
		Where("user_id = ? AND created_at >= ? AND status NOT IN ?", userID, monthStart, []Status{StatusRejected, StatusCancelled}).
		Scan(&usage).Error
	if err != nil {
		return apperrors.Internal(err, "failed to check monthly refund usage")
	}

	if rules.MaxRefundsPerMonth > 0 && usage.Count >= int64(rules.MaxRefundsPerMonth) {
		return apperrors.Newf(apperrors.KindLimitExceeded, "at most %d refunds per month", rules.MaxRefundsPerMonth).WithCode(CodeMonthlyLimit)
	}
	if rules.MaxRefundAmountPerMonth > 0 && usage.Total+amount > rules.MaxRefundAmountPerMonth {
		return apperrors.Newf(apperrors.KindLimitExceeded, "refunds this month would exceed %d", rules.MaxRefundAmountPerMonth).WithCode(CodeMonthlyLimit)
	}
	return nil
}

// Approve accepts a pending refund. Returned stock and the coupon
// redemption are given back in the same transaction when requested.
func (s *Service) Approve(ctx context.Context, refundID string, actor order.Actor, req ApproveRequest) (*Refund, error) {
	now := s.now()

	var r *Refund
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		r, err = find(tx, refundID)
		if err != nil {
			return err
		}
		if r.Status != StatusPendingApproval {
			return apperrors.Newf(apperrors.KindInvalidState, "refund in status %s cannot be approved", r.Status)
		}

		updates := map[string]interface{}{}
		if req.RestoreStock && r.Type != TypeShipping {
			bucket := inventory.BucketSellable
			if r.Reason.DamagesStock() {
				bucket = inventory.BucketDamaged
			}
			for _, item := range r.Items {
				_, err := s.deps.Inventory.Adjust(ctx, tx, inventory.AdjustRequest{
					ProductID:   item.ProductID,
					VariantSKU:  item.VariantSKU,
					Delta:       item.Quantity,
					Type:        inventory.MovementReturn,
					Bucket:      bucket,
					ReferenceID: r.RefundID,
					Reason:      "refund " + strings.ToLower(string(r.Reason)),
				})
				if err != nil {
					return fmt.Errorf("failed to restore inventory: %w", err)
				}
			}
			r.IsStockRestored = true
			updates["is_stock_restored"] = true
		}

		if req.RestoreCoupon && r.Type == TypeFull {
			o, err := order.Find(tx, r.OrderID)
			if err != nil {
				return err
			}
			if o.Billing.AppliedCouponID != nil {
				restored, err := s.deps.Coupons.RestoreUsage(ctx, tx, *o.Billing.AppliedCouponID, o.UserID, o.OrderID)
				if err != nil {
					return fmt.Errorf("failed to restore coupon usage: %w", err)
				}
				r.IsCouponRestored = restored
				updates["is_coupon_restored"] = restored
			}
		}

		return s.transition(tx, r, StatusApproved, updates, actor, ActionApproved, req.Note, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"refund_id":       r.RefundID,
		"stock_restored":  r.IsStockRestored,
		"coupon_restored": r.IsCouponRestored,
		"approved_by":     actor.ID,
	}).Info("refund approved")
	s.emit(events.RefundApproved, r)

	return r, nil
}

// Reject declines a pending refund
func (s *Service) Reject(ctx context.Context, refundID string, actor order.Actor, reason string) (*Refund, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.New(apperrors.KindValidationFailed, "rejection reason is required")
	}

	r, err := s.simpleTransition(ctx, refundID, StatusRejected, actor, ActionRejected, reason,
		map[string]interface{}{"rejection_reason": reason}, nil)
	if err != nil {
		return nil, err
	}
	r.RejectionReason = reason

	s.log.WithFields(logrus.Fields{"refund_id": r.RefundID, "reason": reason}).Info("refund rejected")
	s.emit(events.RefundRejected, r)
	return r, nil
}

// Cancel withdraws the user's own refund before it is approved
func (s *Service) Cancel(ctx context.Context, userID uint, refundID string) (*Refund, error) {
	customer := order.Actor{ID: userID, Role: order.RoleCustomer}
	r, err := s.simpleTransition(ctx, refundID, StatusCancelled, customer, ActionCancelled, "cancelled by customer", nil,
		func(r *Refund) error {
			if r.UserID != userID {
				return apperrors.Newf(apperrors.KindNotFound, "refund %s not found", refundID)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.log.WithField("refund_id", r.RefundID).Info("refund cancelled")
	s.emit(events.RefundCancelled, r)
	return r, nil
}

// Process pays an approved refund back through the gateway. The refund is
// marked PROCESSING before the gateway is called and settled afterwards in a
// second transaction. Without a reply it stays PROCESSING for reconciliation.
func (s *Service) Process(ctx context.Context, refundID string, actor order.Actor) (*Refund, error) {
	var (
		r *Refund
		o *order.Order
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		r, err = find(tx, refundID)
		if err != nil {
			return err
		}
		if r.Status != StatusApproved {
			return apperrors.Newf(apperrors.KindInvalidState, "refund in status %s cannot be processed", r.Status)
		}
		o, err = order.Find(tx, r.OrderID)
		if err != nil {
			return err
		}

		r.Amounts = Calculate(o, r.Type, r.Items, s.fees(r))
		updates := map[string]interface{}{
			"amount_processing_fee":      r.Amounts.ProcessingFee,
			"amount_restocking_fee":      r.Amounts.RestockingFee,
			"amount_wallet_refund":       r.Amounts.WalletRefund,
			"amount_total_refund_amount": r.Amounts.TotalRefundAmount,
		}
		return s.transition(tx, r, StatusProcessing, updates, actor, ActionProcessing, "", s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.RefundProcessing, r)

	gatewayCtx, cancel := context.WithTimeout(ctx, s.config.External.Payment.Timeout)
	defer cancel()
	res, err := s.deps.Payments.RefundPayment(gatewayCtx, payment.RefundRequest{
		RefundID:      r.RefundID,
		OrderID:       r.OrderID,
		TransactionID: o.Billing.TransactionID,
		Amount:        r.Amounts.TotalRefundAmount,
		WalletRefund:  r.Amounts.WalletRefund,
	})
	if err != nil {
		s.log.WithError(err).WithField("refund_id", r.RefundID).Warn("payment gateway did not answer refund")
		note := "gateway did not reply; awaiting reconciliation"
		noteErr := s.runner.WithTx(context.WithoutCancel(ctx), func(tx *gorm.DB) error {
			return s.audit(tx, r, ActionGatewayTimeout, r.Status, r.Status, order.System, note, s.now())
		})
		if noteErr != nil {
			s.log.WithError(noteErr).WithField("refund_id", r.RefundID).Error("failed to record gateway timeout")
		}
		return r, nil
	}

	if res.Status != payment.RefundSucceeded {
		reason := res.FailureReason
		if reason == "" {
			reason = "refund declined by payment gateway"
		}
		return s.fail(ctx, r, actor, reason)
	}
	return s.complete(ctx, r, actor, res.GatewayRefundID)
}

// UpdateStatus is the manual recovery path: re-approving a failed refund or
// settling one stuck in PROCESSING after reconciliation.
func (s *Service) UpdateStatus(ctx context.Context, refundID string, actor order.Actor, req StatusUpdateRequest) (*Refund, error) {
	current, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}

	switch {
	case current.Status == StatusFailed && req.Status == StatusApproved:
		r, err := s.simpleTransition(ctx, refundID, StatusApproved, actor, ActionReopened, req.Note,
			map[string]interface{}{"failure_reason": ""}, nil)
		if err != nil {
			return nil, err
		}
		r.FailureReason = ""
		s.emit(events.RefundApproved, r)
		return r, nil
	case current.Status == StatusProcessing && req.Status == StatusCompleted:
		return s.complete(ctx, current, actor, req.GatewayRefundID)
	case current.Status == StatusProcessing && req.Status == StatusFailed:
		reason := strings.TrimSpace(req.FailureReason)
		if reason == "" {
			reason = strings.TrimSpace(req.Note)
		}
		if reason == "" {
			return nil, apperrors.New(apperrors.KindValidationFailed, "failure reason is required")
		}
		return s.fail(ctx, current, actor, reason)
	}
	return nil, apperrors.Newf(apperrors.KindInvalidState, "refund cannot be moved from %s to %s manually", current.Status, req.Status)
}

// AddNote appends an audit note. Customers may only annotate their own refunds.
func (s *Service) AddNote(ctx context.Context, refundID string, actor order.Actor, note string) (*AdminAction, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.New(apperrors.KindValidationFailed, "note is required")
	}

	var action *AdminAction
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		r, err := find(tx, refundID)
		if err != nil {
			return err
		}
		if actor.Role == order.RoleCustomer && r.UserID != actor.ID {
			return apperrors.Newf(apperrors.KindNotFound, "refund %s not found", refundID)
		}
		if err := s.audit(tx, r, ActionNote, r.Status, r.Status, actor, note, s.now()); err != nil {
			return err
		}
		action = &r.AdminActions[len(r.AdminActions)-1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// Get retrieves a refund with items and audit trail
func (s *Service) Get(ctx context.Context, refundID string) (*Refund, error) {
	return find(s.db.WithContext(ctx), refundID)
}

// GetForUser retrieves a refund owned by the user
func (s *Service) GetForUser(ctx context.Context, userID uint, refundID string) (*Refund, error) {
	r, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, apperrors.Newf(apperrors.KindNotFound, "refund %s not found", refundID)
	}
	return r, nil
}

// List retrieves refunds with filtering and pagination, newest first
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Refund{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count refunds: %w", err)
	}

	var refunds []Refund
	if err := query.Preload("Items").
		Order("created_at DESC, id DESC").
		Offset((req.Page - 1) * req.Limit).Limit(req.Limit).
		Find(&refunds).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve refunds: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &ListResponse{
		Refunds: refunds,
		Pagination: order.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

func (s *Service) fees(r *Refund) Fees {
	var f Fees
	if !r.Reason.SellerFault() {
		f.ProcessingPercent = s.config.Fulfillment.ProcessingFeePercent
	}
	if r.Reason == ReasonChangedMind && r.IsStockRestored {
		f.RestockingPercent = s.config.Fulfillment.RestockingFeePercent
	}
	return f
}

// complete settles a PROCESSING refund and books the amount on the order
func (s *Service) complete(ctx context.Context, r *Refund, actor order.Actor, gatewayRefundID string) (*Refund, error) {
	ctx = context.WithoutCancel(ctx)
	var (
		o         *order.Order
		fromOrder order.OrderStatus
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		before, err := order.Find(tx, r.OrderID)
		if err != nil {
			return err
		}
		fromOrder = before.Status

		updates := map[string]interface{}{}
		if gatewayRefundID != "" {
			updates["gateway_refund_id"] = gatewayRefundID
			r.GatewayRefundID = gatewayRefundID
		}
		if err := s.transition(tx, r, StatusCompleted, updates, actor, ActionCompleted, "", s.now()); err != nil {
			return err
		}
		o, err = s.deps.Orders.RecordRefund(ctx, tx, r.OrderID, r.Amounts.TotalRefundAmount, r.Type == TypeFull, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"refund_id":         r.RefundID,
		"order_id":          r.OrderID,
		"amount":            r.Amounts.TotalRefundAmount,
		"gateway_refund_id": r.GatewayRefundID,
	}).Info("refund completed")
	s.emit(events.RefundCompleted, r)
	if o.Status != fromOrder {
		s.deps.Orders.EmitStatusUpdated(o, fromOrder, "refund "+r.RefundID)
	}
	return r, nil
}

func (s *Service) fail(ctx context.Context, r *Refund, actor order.Actor, reason string) (*Refund, error) {
	err := s.runner.WithTx(context.WithoutCancel(ctx), func(tx *gorm.DB) error {
		return s.transition(tx, r, StatusFailed, map[string]interface{}{"failure_reason": reason}, actor, ActionFailed, reason, s.now())
	})
	if err != nil {
		return nil, err
	}
	r.FailureReason = reason

	s.log.WithFields(logrus.Fields{"refund_id": r.RefundID, "reason": reason}).Warn("refund failed")
	s.emit(events.RefundFailed, r)
	return r, nil
}

// simpleTransition loads a refund, runs an optional check and moves it
func (s *Service) simpleTransition(ctx context.Context, refundID string, to Status, actor order.Actor, action, note string, updates map[string]interface{}, check func(*Refund) error) (*Refund, error) {
	var r *Refund
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		r, err = find(tx, refundID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(r); err != nil {
				return err
			}
		}
		return s.transition(tx, r, to, updates, actor, action, note, s.now())
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// transition applies a status change guarded on the status the refund was
// read with, stamps the timeline and appends an audit row.
func (s *Service) transition(tx *gorm.DB, r *Refund, to Status, updates map[string]interface{}, actor order.Actor, action, note string, now time.Time) error {
	from := r.Status
	if !CanTransition(from, to) {
		return apperrors.Newf(apperrors.KindInvalidState, "invalid refund transition from %s to %s", from, to)
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates[timelineColumn(to)] = now

	result := tx.Model(&Refund{}).Where("id = ? AND status = ?", r.ID, from).Updates(updates)
	if result.Error != nil {
		return apperrors.Internal(result.Error, "failed to update refund status")
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindConflict, "refund %s was modified concurrently", r.RefundID)
	}
	r.Status = to
	stamp(&r.Timeline, to, now)
	metrics.RecordRefundTransition(string(to))

	return s.audit(tx, r, action, from, to, actor, note, now)
}

func (s *Service) audit(tx *gorm.DB, r *Refund, action string, from, to Status, actor order.Actor, note string, now time.Time) error {
	entry := AdminAction{
		RefundID:   r.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Note:       note,
		CreatedAt:  now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return apperrors.Internal(err, "failed to record refund action")
	}
	r.AdminActions = append(r.AdminActions, entry)
	return nil
}

func (s *Service) emit(t events.Type, r *Refund) {
	s.deps.Events.Emit(events.New(t, events.AggregateRefund, r.RefundID, r.Summary()))
}

func find(db *gorm.DB, refundID string) (*Refund, error) {
	var r Refund
	err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("AdminActions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("refund_id = ?", refundID).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "refund %s not found", refundID)
		}
		return nil, apperrors.Internal(err, "failed to retrieve refund")
	}
	return &r, nil
}

func timelineColumn(status Status) string {
	switch status {
	case StatusPendingApproval:
		return "pending_approval_at"
	case StatusApproved:
		return "approved_at"
	case StatusRejected:
		return "rejected_at"
	case StatusProcessing:
		return "processing_at"
	case StatusCompleted:
		return "completed_at"
	case StatusFailed:
		return "failed_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return "requested_at"
}

func stamp(t *Timeline, status Status, now time.Time) {
	switch status {
	case StatusPendingApproval:
		t.PendingApprovalAt = &now
	case StatusApproved:
		t.ApprovedAt = &now
	case StatusRejected:
		t.RejectedAt = &now
	case StatusProcessing:
		t.ProcessingAt = &now
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusFailed:
		t.FailedAt = &now
	case StatusCancelled:
		t.CancelledAt = &now
	}
}
