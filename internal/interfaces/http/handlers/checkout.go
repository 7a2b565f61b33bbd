// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/domain/checkout"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

// RetryPaymentRequest carries a fresh payment intent for a pending order
type RetryPaymentRequest struct {
	PaymentIntent string `json:"payment_intent"`
}

// Checkout handles POST /checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.checkoutService.Checkout(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Order placed successfully", result)
}

// Preview handles GET /checkout/preview
func (h *CheckoutHandler) Preview(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	preview, err := h.checkoutService.Preview(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Checkout preview generated", preview)
}

// ApplyCoupon handles POST /checkout/coupon
func (h *CheckoutHandler) ApplyCoupon(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req checkout.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	preview, err := h.checkoutService.ApplyCoupon(c.Request.Context(), userID, req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupon applied successfully", preview)
}

// RemoveCoupon handles DELETE /checkout/coupon
func (h *CheckoutHandler) RemoveCoupon(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	if err := h.checkoutService.RemoveCoupon(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupon removed successfully", nil)
}

// RetryPayment handles POST /orders/:id/payment
func (h *CheckoutHandler) RetryPayment(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req RetryPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.checkoutService.RetryPayment(c.Request.Context(), userID, c.Param("id"), req.PaymentIntent)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment requested", result)
}
