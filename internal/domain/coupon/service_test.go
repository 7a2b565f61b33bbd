package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/order-fulfillment/internal/domain/pricing"
	"github.com/your-org/order-fulfillment/internal/pkg/apperrors"
	"github.com/your-org/order-fulfillment/internal/pkg/logger"
	"github.com/your-org/order-fulfillment/internal/testutil"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, Models()...)
	return NewService(db, testutil.Config(), logger.Discard()), db
}

func amount(v int64) *int64 { return &v }

func uid(v uint) *uint { return &v }

func createCoupon(t *testing.T, s *Service, code string, mutate func(*CreateCouponRequest)) *Coupon {
	t.Helper()

	req := &CreateCouponRequest{
		Code:          code,
		DiscountType:  pricing.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(req)
	}
	c, err := s.Create(context.Background(), req)
	require.NoError(t, err)
	return c
}

func redeem(t *testing.T, s *Service, db *gorm.DB, couponID, userID uint, orderID string) error {
	t.Helper()
	return db.Transaction(func(tx *gorm.DB) error {
		return s.IncrementUsage(context.Background(), tx, couponID, userID, orderID, 500)
	})
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	s, _ := newService(t)

	c := createCoupon(t, s, "  save10 ", nil)
	assert.Equal(t, "SAVE10", c.Code)
	assert.True(t, c.IsActive)

	_, err := s.Create(context.Background(), &CreateCouponRequest{
		Code: "SAVE10", DiscountType: pricing.DiscountFreeShipping,
		ValidFrom: time.Now(), ValidTo: time.Now().Add(time.Hour),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	_, err = s.Create(context.Background(), &CreateCouponRequest{
		Code: "BAD", DiscountType: pricing.DiscountPercentage, DiscountValue: decimal.NewFromInt(150),
		ValidFrom: time.Now(), ValidTo: time.Now().Add(time.Hour),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidationFailed))
}

func TestValidate(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()

	c := createCoupon(t, s, "WELCOME", func(r *CreateCouponRequest) {
		r.MinOrderAmount = amount(10000)
		r.UsageLimitPerUser = 1
	})

	got, err := s.Validate(ctx, "welcome", uid(1), amount(20000))
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = s.Validate(ctx, "WELCOME", nil, amount(5000))
	assert.Equal(t, CodeBelowMinimum, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidationFailed))

	_, err = s.Validate(ctx, "NOPE", nil, nil)
	assert.Equal(t, CodeNotFound, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	require.NoError(t, redeem(t, s, db, c.ID, 1, "ORD-1"))
	_, err = s.Validate(ctx, "WELCOME", uid(1), nil)
	assert.Equal(t, CodeLimitReached, apperrors.CodeOf(err))
	_, err = s.Validate(ctx, "WELCOME", uid(2), nil)
	assert.NoError(t, err)

	require.NoError(t, s.Deactivate(ctx, "welcome"))
	_, err = s.Validate(ctx, "WELCOME", nil, nil)
	assert.Equal(t, CodeNotFound, apperrors.CodeOf(err))
}

func TestValidateOutOfWindow(t *testing.T) {
	s, _ := newService(t)
	createCoupon(t, s, "LATER", func(r *CreateCouponRequest) {
		r.ValidFrom = time.Now().Add(48 * time.Hour)
		r.ValidTo = time.Now().Add(72 * time.Hour)
	})

	_, err := s.Validate(context.Background(), "LATER", nil, nil)
	assert.Equal(t, CodeOutOfWindow, apperrors.CodeOf(err))

	s.now = func() time.Time { return time.Now().Add(50 * time.Hour) }
	_, err = s.Validate(context.Background(), "LATER", nil, nil)
	assert.NoError(t, err)
}

func TestValidateByID(t *testing.T) {
	s, _ := newService(t)
	c := createCoupon(t, s, "BYID", nil)

	got, err := s.Validate(context.Background(), "1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestIncrementUsageEnforcesGlobalLimit(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	c := createCoupon(t, s, "ONCE", func(r *CreateCouponRequest) { r.UsageLimit = 1 })

	require.NoError(t, redeem(t, s, db, c.ID, 1, "ORD-1"))
	err := redeem(t, s, db, c.ID, 2, "ORD-2")
	assert.True(t, apperrors.IsKind(err, apperrors.KindLimitExceeded))

	got, err := s.GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)

	live, err := s.LiveUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(got.UsageCount), live)
}

func TestIncrementUsageRollsBackWithTransaction(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	c := createCoupon(t, s, "ATOMIC", nil)
	abort := errors.New("order failed")

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := s.IncrementUsage(ctx, tx, c.ID, 1, "ORD-1", 100); err != nil {
			return err
		}
		return abort
	})
	require.ErrorIs(t, err, abort)

	got, err := s.GetByCode(ctx, "ATOMIC")
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsageCount)
	live, err := s.LiveUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), live)

	assert.Error(t, s.IncrementUsage(ctx, nil, c.ID, 1, "ORD-1", 100))
}

func TestRestoreUsage(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	c := createCoupon(t, s, "BACK", func(r *CreateCouponRequest) { r.UsageLimitPerUser = 1 })

	require.NoError(t, redeem(t, s, db, c.ID, 7, "ORD-7"))

	restored, err := s.RestoreUsage(ctx, nil, c.ID, 7, "ORD-7")
	require.NoError(t, err)
	assert.True(t, restored)

	restored, err = s.RestoreUsage(ctx, nil, c.ID, 7, "ORD-7")
	require.NoError(t, err)
	assert.False(t, restored)

	got, err := s.GetByCode(ctx, "BACK")
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsageCount)
	live, err := s.LiveUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), live)

	var rows int64
	require.NoError(t, db.Model(&CouponUsage{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)

	_, err = s.Validate(ctx, "BACK", uid(7), nil)
	assert.NoError(t, err)
}
