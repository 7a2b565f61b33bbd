// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
	"github.com/your-org/order-fulfillment/internal/domain/checkout"
	"github.com/your-org/order-fulfillment/internal/domain/payment"
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body
const SignatureHeader = "X-Payment-Signature"

// PaymentHandler receives settlement callbacks from the payment collaborator
type PaymentHandler struct {
	checkoutService *checkout.Service
	secret          string
	log             *logrus.Entry
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(checkoutService *checkout.Service, secret string, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkoutService: checkoutService,
		secret:          secret,
		log:             log.WithField("component", "payment_webhook"),
	}
}

// Webhook handles POST /webhooks/payments
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondBindError(c, err)
		return
	}

	if !payment.VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		h.log.WithField("client_ip", c.ClientIP()).Warn("Rejected payment callback with bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid signature",
		})
		return
	}

	var n payment.Notification
	if err := binding.JSON.BindBody(body, &n); err != nil {
		respondBindError(c, err)
		return
	}

	o, err := h.checkoutService.SettlePayment(c.Request.Context(), n)
	if err != nil {
		respondError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"order_id":       o.OrderID,
		"payment_status": o.Billing.PaymentStatus,
	}).Info("Payment callback applied")

	respondOK(c, http.StatusOK, "Payment status updated", gin.H{
		"order_id":       o.OrderID,
		"status":         o.Status,
		"payment_status": o.Billing.PaymentStatus,
	})
}
