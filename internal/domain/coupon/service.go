// internal/domain/coupon/service.go
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/config"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
	"github.com/your-org/order-fulfillment/internal/infrastructure/database/uow"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Reason codes reported by Validate
const (
	CodeNotFound     = "COUPON_NOT_FOUND"
	CodeOutOfWindow  = "OUT_OF_WINDOW"
	CodeLimitReached = "LIMIT_REACHED"
	CodeBelowMinimum = "BELOW_MINIMUM"
)

// Service is the coupon ledger
type Service struct {
	db     *gorm.DB
	runner uow.Runner
	config *config.Config
	log    *logrus.Entry
	now    func() time.Time
}

// NewService creates a new coupon service
func NewService(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		db:     db,
		runner: uow.NewRunner(db),
		config: cfg,
		log:    log.WithField("component", "coupon"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeCode upper-cases and trims a coupon code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create adds a coupon to the catalog
func (s *Service) Create(ctx context.Context, req *CreateCouponRequest) (*Coupon, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, apperrors.New(apperrors.KindValidationFailed, "coupon code is required")
	}
	if err := validateTerms(req); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&Coupon{}).Where("code = ?", code).Count(&existing).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to check coupon code")
	}
	if existing > 0 {
		return nil, apperrors.Newf(apperrors.KindConflict, "coupon %s already exists", code)
	}

	c := Coupon{
		Code:              code,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinOrderAmount:    req.MinOrderAmount,
		ValidFrom:         req.ValidFrom.UTC(),
		ValidTo:           req.ValidTo.UTC(),
		UsageLimit:        req.UsageLimit,
		UsageLimitPerUser: req.UsageLimitPerUser,
		IsActive:          true,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to create coupon")
	}

	s.log.WithFields(logrus.Fields{"code": c.Code, "type": c.DiscountType}).Info("coupon created")
	return &c, nil
}

func validateTerms(req *CreateCouponRequest) error {
	switch req.DiscountType {
	case pricing.DiscountPercentage:
		if !req.DiscountValue.IsPositive() || req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return apperrors.New(apperrors.KindValidationFailed, "percentage must be between 0 and 100")
		}
	case pricing.DiscountFixedAmount:
		if !req.DiscountValue.IsPositive() {
			return apperrors.New(apperrors.KindValidationFailed, "fixed amount must be positive")
		}
	case pricing.DiscountFreeShipping:
	default:
		return apperrors.Newf(apperrors.KindValidationFailed, "unknown discount type %s", req.DiscountType)
	}
	if !req.ValidTo.After(req.ValidFrom) {
		return apperrors.New(apperrors.KindValidationFailed, "valid_to must be after valid_from")
	}
	if req.UsageLimit < 0 || req.UsageLimitPerUser < 0 {
		return apperrors.New(apperrors.KindValidationFailed, "usage limits must not be negative")
	}
	return nil
}

// GetByCode returns a coupon regardless of its state
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	var c Coupon
	if err := s.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "coupon %s not found", NormalizeCode(code)).WithCode(CodeNotFound)
		}
		return nil, apperrors.Internal(err, "failed to retrieve coupon")
	}
	return &c, nil
}

// List returns coupons, newest first
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	var coupons []Coupon
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

// Deactivate stops a coupon from validating
func (s *Service) Deactivate(ctx context.Context, code string) error {
	result := s.db.WithContext(ctx).Model(&Coupon{}).Where("code = ?", NormalizeCode(code)).Update("is_active", false)
	if result.Error != nil {
		return apperrors.Internal(result.Error, "failed to deactivate coupon")
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindNotFound, "coupon %s not found", NormalizeCode(code)).WithCode(CodeNotFound)
	}
	return nil
}

// Validate checks a coupon by code or id against its window, limits and
// minimum order amount. userID and orderAmount are optional.
func (s *Service) Validate(ctx context.Context, codeOrID string, userID *uint, orderAmount *int64) (*Coupon, error) {
	return s.validate(s.db.WithContext(ctx), codeOrID, userID, orderAmount)
}

func (s *Service) validate(db *gorm.DB, codeOrID string, userID *uint, orderAmount *int64) (*Coupon, error) {
	var c Coupon
	q := db.Where("code = ?", NormalizeCode(codeOrID))
	if id, err := strconv.ParseUint(strings.TrimSpace(codeOrID), 10, 64); err == nil {
		q = db.Where("code = ? OR id = ?", NormalizeCode(codeOrID), id)
	}
	if err := q.First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "coupon %s not found", codeOrID).WithCode(CodeNotFound)
		}
		return nil, apperrors.Internal(err, "failed to retrieve coupon")
	}

	if !c.IsActive {
		return nil, apperrors.Newf(apperrors.KindNotFound, "coupon %s is not active", c.Code).WithCode(CodeNotFound)
	}
	if !c.InWindow(s.now()) {
		return nil, apperrors.Newf(apperrors.KindValidationFailed, "coupon %s is not valid at this time", c.Code).WithCode(CodeOutOfWindow)
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, apperrors.Newf(apperrors.KindLimitExceeded, "coupon %s has reached its usage limit", c.Code).WithCode(CodeLimitReached)
	}
	if userID != nil && c.UsageLimitPerUser > 0 {
		used, err := userUsage(db, c.ID, *userID)
		if err != nil {
			return nil, err
		}
		if used >= int64(c.UsageLimitPerUser) {
			return nil, apperrors.Newf(apperrors.KindLimitExceeded, "coupon %s already used the maximum number of times", c.Code).WithCode(CodeLimitReached)
		}
	}
	if orderAmount != nil && c.MinOrderAmount != nil && *orderAmount < *c.MinOrderAmount {
		return nil, apperrors.Newf(apperrors.KindValidationFailed, "order amount below coupon minimum of %d", *c.MinOrderAmount).WithCode(CodeBelowMinimum)
	}

	return &c, nil
}

// userUsage sums the ledger entries of one user for one coupon
func userUsage(db *gorm.DB, couponID, userID uint) (int64, error) {
	var used int64
	err := db.Model(&CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&used).Error
	if err != nil {
		return 0, apperrors.Internal(err, "failed to count coupon usage")
	}
	return used, nil
}

// IncrementUsage records a redemption inside the caller's transaction. The
// global cap is enforced by a conditional update; the per-user cap by a count
// over the ledger inside the same transaction.
func (s *Service) IncrementUsage(ctx context.Context, tx *gorm.DB, couponID, userID uint, orderID string, discountAmount int64) error {
	if tx == nil {
		return apperrors.New(apperrors.KindInternalFailure, "coupon usage must be recorded inside a transaction")
	}

	var c Coupon
	if err := tx.Where("id = ?", couponID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Newf(apperrors.KindNotFound, "coupon %d not found", couponID).WithCode(CodeNotFound)
		}
		return apperrors.Internal(err, "failed to load coupon")
	}

	if c.UsageLimitPerUser > 0 {
		used, err := userUsage(tx, couponID, userID)
		if err != nil {
			return err
		}
		if used >= int64(c.UsageLimitPerUser) {
			return apperrors.Newf(apperrors.KindLimitExceeded, "coupon %s already used the maximum number of times", c.Code).WithCode(CodeLimitReached)
		}
	}

	result := tx.Model(&Coupon{}).
		Where("id = ? AND is_active = ? AND (usage_limit = 0 OR usage_count < usage_limit)", couponID, true).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return apperrors.Internal(result.Error, "failed to increment coupon usage")
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.KindLimitExceeded, "coupon %s has reached its usage limit", c.Code).WithCode(CodeLimitReached)
	}

	usage := CouponUsage{
		CouponID:       couponID,
		UserID:         userID,
		OrderID:        orderID,
		Quantity:       1,
		DiscountAmount: discountAmount,
		UsedAt:         s.now(),
	}
	if err := tx.Create(&usage).Error; err != nil {
		return apperrors.Internal(err, "failed to record coupon usage")
	}
	return nil
}

// RestoreUsage reverses the redemption made for an order. It reports false
// when there is nothing left to restore. A nil tx runs in its own transaction.
func (s *Service) RestoreUsage(ctx context.Context, tx *gorm.DB, couponID, userID uint, orderID string) (bool, error) {
	restored := false
	err := uow.Within(ctx, s.runner, tx, func(tx *gorm.DB) error {
		var entries []CouponUsage
		if err := tx.Where("coupon_id = ? AND user_id = ? AND order_id = ?", couponID, userID, orderID).
			Order("id ASC").Find(&entries).Error; err != nil {
			return apperrors.Internal(err, "failed to load coupon usage")
		}

		var net int
		var amount int64
		for _, e := range entries {
			net += e.Quantity
			if e.Quantity > 0 {
				amount = e.DiscountAmount
			}
		}
		if net <= 0 {
			return nil
		}

		reversal := CouponUsage{
			CouponID:       couponID,
			UserID:         userID,
			OrderID:        orderID,
			Quantity:       -1,
			DiscountAmount: -amount,
			UsedAt:         s.now(),
		}
		if err := tx.Create(&reversal).Error; err != nil {
			return apperrors.Internal(err, "failed to record coupon restoration")
		}

		if err := tx.Model(&Coupon{}).
			Where("id = ? AND usage_count > 0", couponID).
			Update("usage_count", gorm.Expr("usage_count - 1")).Error; err != nil {
			return apperrors.Internal(err, "failed to decrement coupon usage")
		}
		restored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return restored, nil
}

// LiveUsage returns the net number of redemptions recorded in the ledger
func (s *Service) LiveUsage(ctx context.Context, couponID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&CouponUsage{}).
		Where("coupon_id = ?", couponID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, apperrors.Internal(err, "failed to count coupon usage")
	}
	return n, nil
}
