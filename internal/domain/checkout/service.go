// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/cart"
	"github.com/your-org/order-fulfillment/internal/domain/coupon"
	"github.com/your-org/order-fulfillment/internal/domain/inventory"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
	"github.com/your-org/order-fulfillment/internal/events"
	redisdb "github.com/your-org/order-fulfillment/internal/infrastructure/database/redis"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/uow"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"github.com/your-org/order-fulfillment/internal/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Error codes reported by the checkout
const (
	CodeEmptyCart          = "EMPTY_CART"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeCheckoutInProgress = "CHECKOUT_IN_PROGRESS"
)

// AddressResult is the address collaborator's answer
type AddressResult struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

// AddressValidator checks that an address belongs to the user and can be
// delivered to. An error means no usable reply was received.
type AddressValidator interface {
	ValidateAddress(ctx context.Context, userID, addressID uint) (*AddressResult, error)
}

// Dependencies are the collaborators of the checkout
type Dependencies struct {
	Carts     *cart.Service
	Coupons   *coupon.Service
	Inventory *inventory.Service
	Orders    *order.Service
	Addresses AddressValidator
	Payments  payment.Gateway
	Cache     *redisdb.Client
	Events    *events.Dispatcher
}

// Service turns a cart into a committed order
type Service struct {
	db        *gorm.DB
	runner    uow.Runner
	config    *config.Config
	log       *logrus.Entry
	carts     *cart.Service
	coupons   *coupon.Service
	inventory *inventory.Service
	orders    *order.Service
	addresses AddressValidator
	payments  payment.Gateway
	cache     *redisdb.Client
	events    *events.Dispatcher
}

// NewService creates a new checkout service
func NewService(db *gorm.DB, cfg *config.Config, log *logrus.Logger, deps Dependencies) *Service {
	return &Service{
		db:        db,
		runner:    uow.NewRunner(db),
		config:    cfg,
		log:       log.WithField("component", "checkout"),
		carts:     deps.Carts,
		coupons:   deps.Coupons,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		payments:  deps.Payments,
		cache:     deps.Cache,
		events:    deps.Events,
	}
}

// Request represents checkout data
type Request struct {
	AddressID     uint   `json:"address_id" binding:"required"`
	CouponCode    string `json:"coupon_code,omitempty"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=ONLINE COD"`
	PaymentIntent string `json:"payment_intent,omitempty"`
}

// ApplyCouponRequest represents coupon preview data
type ApplyCouponRequest struct {
	CouponCode string `json:"coupon_code" binding:"required"`
}

// AppliedCoupon is the coupon a user picked before checking out
type AppliedCoupon struct {
	CouponID uint   `json:"coupon_id"`
	Code     string `json:"code"`
}

// Preview represents the bill of the selected cart items
type Preview struct {
	Items      []cart.CartItem   `json:"items"`
	Pricing    pricing.Breakdown `json:"pricing"`
	CouponCode string            `json:"coupon_code,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// Result represents the outcome of a checkout
type Result struct {
	Order         *order.Order `json:"order"`
	PaymentStatus string       `json:"payment_status"`
	GatewayURL    string       `json:"gateway_url,omitempty"`
	Message       string       `json:"message,omitempty"`
}

func appliedCouponKey(userID uint) string {
	return fmt.Sprintf("applied_coupon:%d", userID)
}

func checkoutLockKey(userID uint) string {
	return fmt.Sprintf("checkout_lock:%d", userID)
}

func (s *Service) options() pricing.Options {
	return pricing.Options{
		DeliveryCharge:        s.config.Fulfillment.DeliveryCharge,
		FreeDeliveryThreshold: s.config.Fulfillment.FreeDeliveryThreshold,
	}
}

// ApplyCoupon validates a coupon against the selected items and remembers it
// for the next checkout.
func (s *Service) ApplyCoupon(ctx context.Context, userID uint, code string) (*Preview, error) {
	c, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.KindValidationFailed, "cart is empty").WithCode(CodeEmptyCart)
	}

	subtotal := pricing.Calculate(lines, nil, pricing.Options{}).Subtotal()
	cp, err := s.coupons.Validate(ctx, code, &userID, &subtotal)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		applied := AppliedCoupon{CouponID: cp.ID, Code: cp.Code}
		if err := s.cache.SetJSON(ctx, appliedCouponKey(userID), applied, s.config.Fulfillment.AppliedCouponTTL); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to store applied coupon")
		}
	}

	return &Preview{
		Items:      c.Selected(),
		Pricing:    pricing.Calculate(lines, cp.Terms(), s.options()),
		CouponCode: cp.Code,
	}, nil
}

// RemoveCoupon forgets the applied coupon
func (s *Service) RemoveCoupon(ctx context.Context, userID uint) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, appliedCouponKey(userID)); err != nil {
		return apperrors.Wrap(apperrors.KindExternalUnavailable, err, "failed to remove applied coupon")
	}
	return nil
}

// Preview prices the selected items with the applied coupon, if it is still
// valid.
func (s *Service) Preview(ctx context.Context, userID uint) (*Preview, error) {
	c, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines := c.Lines()
	preview := &Preview{Items: c.Selected()}

	var terms *pricing.CouponTerms
	if applied := s.appliedCoupon(ctx, userID); applied != nil {
		subtotal := pricing.Calculate(lines, nil, pricing.Options{}).Subtotal()
		cp, err := s.coupons.Validate(ctx, applied.Code, &userID, &subtotal)
		if err != nil {
			preview.Message = err.Error()
		} else {
			terms = cp.Terms()
			preview.CouponCode = cp.Code
		}
	}

	preview.Pricing = pricing.Calculate(lines, terms, s.options())
	return preview, nil
}

func (s *Service) appliedCoupon(ctx context.Context, userID uint) *AppliedCoupon {
	if s.cache == nil {
		return nil
	}
	var applied AppliedCoupon
	if err := s.cache.GetJSON(ctx, appliedCouponKey(userID), &applied); err != nil {
		if !errors.Is(err, redisdb.ErrNotFound) {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to read applied coupon")
		}
		return nil
	}
	return &applied
}

// Checkout converts the selected cart items into a PENDING order. Stock,
// coupon usage, the order and the cart change together or not at all.
// Payment is requested after the commit.
func (s *Service) Checkout(ctx context.Context, userID uint, req *Request) (*Result, error) {
	res, err := s.checkout(ctx, userID, req)
	if err != nil {
		metrics.RecordCheckout(string(apperrors.KindOf(err)))
		return nil, err
	}
	metrics.RecordCheckout("success")
	return res, nil
}

func (s *Service) checkout(ctx context.Context, userID uint, req *Request) (*Result, error) {
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method != order.PaymentMethodOnline && method != order.PaymentMethodCOD {
		return nil, apperrors.Newf(apperrors.KindValidationFailed, "unsupported payment method %s", req.PaymentMethod)
	}

	if s.cache != nil {
		unlock, err := s.cache.Lock(ctx, checkoutLockKey(userID), s.config.Fulfillment.CheckoutLockTTL)
		if err != nil {
			if errors.Is(err, redisdb.ErrLockHeld) {
				return nil, apperrors.New(apperrors.KindConflict, "a checkout is already in progress").WithCode(CodeCheckoutInProgress)
			}
			return nil, apperrors.Wrap(apperrors.KindExternalUnavailable, err, "failed to lock checkout")
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.WithError(err).WithField("user_id", userID).Warn("failed to release checkout lock")
			}
		}()
	}

	c, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	selected := c.Selected()
	if len(selected) == 0 {
		return nil, apperrors.New(apperrors.KindValidationFailed, "cart is empty").WithCode(CodeEmptyCart)
	}
	lines := c.Lines()

	code := strings.TrimSpace(req.CouponCode)
	if code == "" {
		if applied := s.appliedCoupon(ctx, userID); applied != nil {
			code = applied.Code
		}
	}

	var cp *coupon.Coupon
	var terms *pricing.CouponTerms
	if code != "" {
		subtotal := pricing.Calculate(lines, nil, pricing.Options{}).Subtotal()
		cp, err = s.coupons.Validate(ctx, code, &userID, &subtotal)
		if err != nil {
			return nil, err
		}
		terms = cp.Terms()
	}

	bill := pricing.Calculate(lines, terms, s.options())

	if err := s.precheck(ctx, userID, req.AddressID, selected); err != nil {
		return nil, err
	}

	o := &order.Order{
		OrderID:   order.NewOrderID(time.Now()),
		UserID:    userID,
		AddressID: req.AddressID,
		Billing: order.BillingInfo{
			TotalAmount:    bill.TotalAmount,
			Discount:       bill.Discount,
			CouponDiscount: bill.CouponDiscount,
			DeliveryCharge: bill.DeliveryCharge,
			PayableAmount:  bill.PayableAmount,
			Currency:       s.config.Fulfillment.Currency,
			PaymentStatus:  order.PaymentStatusPending,
			PaymentMethod:  method,
		},
	}
	if cp != nil {
		o.Billing.AppliedCouponID = &cp.ID
		o.Billing.CouponCode = cp.Code
	}
	for _, item := range selected {
		o.Items = append(o.Items, order.NewItem(item.ProductID, item.VariantSKU, item.Title, item.Thumbnail, item.Quantity, item.Price))
	}

	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.Place(ctx, tx, o); err != nil {
			return err
		}

		for _, item := range o.Items {
			_, err := s.inventory.Adjust(ctx, tx, inventory.AdjustRequest{
				ProductID:   item.ProductID,
				VariantSKU:  item.VariantSKU,
				Delta:       -item.Quantity,
				Type:        inventory.MovementSale,
				ReferenceID: o.OrderID,
				Reason:      "checkout",
			})
			if err != nil {
				return err
			}
		}

		if err := s.carts.ClearSelected(tx, c.ID); err != nil {
			return err
		}

		if cp != nil {
			if err := s.coupons.IncrementUsage(ctx, tx, cp.ID, userID, o.OrderID, bill.CouponDiscount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("checkout aborted")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": o.OrderID,
		"user_id":  userID,
		"payable":  o.Billing.PayableAmount,
		"items":    len(o.Items),
		"coupon":   o.Billing.CouponCode,
	}).Info("order placed")

	s.events.Emit(events.New(events.OrderCreated, events.AggregateOrder, o.OrderID, o))

	if cp != nil && s.cache != nil {
		if err := s.cache.Del(context.WithoutCancel(ctx), appliedCouponKey(userID)); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to clear applied coupon")
		}
	}

	return s.requestPayment(context.WithoutCancel(ctx), o, req.PaymentIntent), nil
}

// precheck validates the address and the stock of every line in parallel.
// The authoritative stock check is the conditional update at commit time.
func (s *Service) precheck(ctx context.Context, userID, addressID uint, items []cart.CartItem) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, s.config.External.Address.Timeout)
		defer cancel()

		res, err := s.addresses.ValidateAddress(actx, userID, addressID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindExternalUnavailable, err, "address validation unavailable")
		}
		if !res.IsValid {
			msg := res.Error
			if msg == "" {
				msg = "address is not valid"
			}
			return apperrors.New(apperrors.KindValidationFailed, msg).WithCode(CodeInvalidAddress)
		}
		return nil
	})

	for _, item := range items {
		item := item
		g.Go(func() error {
			avail, err := s.inventory.CheckAvailability(gctx, item.ProductID, item.Quantity, item.VariantSKU)
			if err != nil {
				return err
			}
			if !avail.IsAvailable {
				kind := apperrors.KindValidationFailed
				if avail.AvailableStock < item.Quantity {
					kind = apperrors.KindInsufficientStock
				}
				return apperrors.Newf(kind, "%s: %s", item.Title, avail.Error)
			}
			return nil
		})
	}

	return g.Wait()
}

// requestPayment asks the collaborator to collect the payable amount and
// records the answer. No reply is treated as a failed payment.
func (s *Service) requestPayment(ctx context.Context, o *order.Order, intent string) *Result {
	pctx, cancel := context.WithTimeout(ctx, s.config.External.Payment.Timeout)
	defer cancel()

	update := order.PaymentUpdate{Status: order.PaymentStatusFailed}
	message := ""

	res, err := s.payments.RequestPayment(pctx, payment.Request{
		OrderID:       o.OrderID,
		UserID:        o.UserID,
		TotalAmount:   o.Billing.PayableAmount,
		Currency:      o.Billing.Currency,
		PaymentIntent: intent,
	})
	switch {
	case err != nil:
		message = "payment service unavailable, retry payment later"
		s.log.WithError(err).WithField("order_id", o.OrderID).Warn("payment request failed")
	case res.Status == payment.StatusPaid:
		update = order.PaymentUpdate{Status: order.PaymentStatusPaid, TransactionID: res.TransactionID, Note: "Payment received"}
	case res.Status == payment.StatusPending:
		update = order.PaymentUpdate{Status: order.PaymentStatusPending, TransactionID: res.TransactionID, GatewayURL: res.GatewayURL}
	default:
		message = res.FailureReason
	}
	if res != nil {
		update.WalletUsed = res.WalletUsed
		update.CashbackUsed = res.CashbackUsed
	}

	updated, err := s.orders.ApplyPayment(ctx, o.OrderID, update)
	if err != nil {
		s.log.WithError(err).WithField("order_id", o.OrderID).Error("failed to record payment outcome")
		updated = o
	}

	return &Result{
		Order:         updated,
		PaymentStatus: string(updated.Billing.PaymentStatus),
		GatewayURL:    updated.Billing.GatewayURL,
		Message:       message,
	}
}

// RetryPayment requests payment again for a PENDING order whose last
// attempt failed.
func (s *Service) RetryPayment(ctx context.Context, userID uint, orderID string, intent string) (*Result, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.OrderStatusPending || o.Billing.PaymentStatus != order.PaymentStatusFailed {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "payment cannot be retried for order in status %s with payment %s", o.Status, o.Billing.PaymentStatus)
	}

	o, err = s.orders.ApplyPayment(ctx, orderID, order.PaymentUpdate{Status: order.PaymentStatusPending, Note: "Payment retried"})
	if err != nil {
		return nil, err
	}
	return s.requestPayment(context.WithoutCancel(ctx), o, intent), nil
}

// SettlePayment applies a payment callback from the collaborator
func (s *Service) SettlePayment(ctx context.Context, n payment.Notification) (*order.Order, error) {
	var status order.PaymentStatus
	switch n.Status {
	case payment.StatusPaid:
		status = order.PaymentStatusPaid
	case payment.StatusFailed:
		status = order.PaymentStatusFailed
	case payment.StatusPending:
		status = order.PaymentStatusPending
	default:
		return nil, apperrors.Newf(apperrors.KindValidationFailed, "unknown payment status %s", n.Status)
	}

	return s.orders.ApplyPayment(ctx, n.OrderID, order.PaymentUpdate{
		Status:        status,
		TransactionID: n.TransactionID,
		Note:          "Payment callback",
	})
}
