package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/domain/coupon"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/middleware"
)

// CouponHandler handles coupon endpoints
type CouponHandler struct {
	couponService *coupon.Service
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(couponService *coupon.Service) *CouponHandler {
	return &CouponHandler{couponService: couponService}
}

// ValidateCouponRequest asks whether a coupon applies to an order amount
type ValidateCouponRequest struct {
	Code        string `json:"code" binding:"required"`
	OrderAmount *int64 `json:"order_amount,omitempty"`
}

// ListCouponsQuery filters the coupon list
type ListCouponsQuery struct {
	ActiveOnly bool `form:"active"`
}

// ValidateCoupon handles POST /coupons/validate
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cp, err := h.couponService.Validate(c.Request.Context(), req.Code, &userID, req.OrderAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupon is valid", cp)
}

// CreateCoupon handles POST /admin/coupons
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req coupon.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cp, err := h.couponService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Coupon created successfully", cp)
}

// ListCoupons handles GET /admin/coupons
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	var q ListCouponsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	coupons, err := h.couponService.List(c.Request.Context(), q.ActiveOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupons retrieved successfully", coupons)
}

// GetCoupon handles GET /admin/coupons/:code
func (h *CouponHandler) GetCoupon(c *gin.Context) {
	cp, err := h.couponService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupon retrieved successfully", cp)
}

// DeactivateCoupon handles POST /admin/coupons/:code/deactivate
func (h *CouponHandler) DeactivateCoupon(c *gin.Context) {
	if err := h.couponService.Deactivate(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupon deactivated successfully", nil)
}
