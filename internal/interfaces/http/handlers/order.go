// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/order-fulfillment/internal/domain/order"
	"github.com/your-org/order-fulfillment/internal/interfaces/http/middleware"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orderService *order.Service
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *order.Service) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// StatusCommentRequest carries an optional note for the status history
type StatusCommentRequest struct {
	Comment string `json:"comment"`
}

// CancelRequest represents an order cancellation
type CancelRequest struct {
	Reason string `json:"reason"`
}

// GetUserOrders handles GET /orders
func (h *OrderHandler) GetUserOrders(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req order.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}
	req.UserID = userID

	result, err := h.orderService.List(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Orders retrieved successfully", result)
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	o, err := h.orderService.GetForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Order retrieved successfully", o)
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.cancel(c, customer(c))
}

// GetAllOrders handles GET /admin/orders
func (h *OrderHandler) GetAllOrders(c *gin.Context) {
	var req order.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.orderService.List(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Orders retrieved successfully", result)
}

// GetOrderAdmin handles GET /admin/orders/:id
func (h *OrderHandler) GetOrderAdmin(c *gin.Context) {
	o, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Order retrieved successfully", o)
}

// ConfirmOrder handles POST /admin/orders/:id/confirm
func (h *OrderHandler) ConfirmOrder(c *gin.Context) {
	h.advance(c, order.OrderStatusConfirmed)
}

// ShipOrder handles POST /admin/orders/:id/ship
func (h *OrderHandler) ShipOrder(c *gin.Context) {
	h.advance(c, order.OrderStatusShipped)
}

// DeliverOrder handles POST /admin/orders/:id/deliver
func (h *OrderHandler) DeliverOrder(c *gin.Context) {
	h.advance(c, order.OrderStatusDelivered)
}

// CompleteOrder handles POST /admin/orders/:id/complete
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	h.advance(c, order.OrderStatusCompleted)
}

func (h *OrderHandler) advance(c *gin.Context, to order.OrderStatus) {
	var req StatusCommentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	o, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), to, admin(c), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Order status updated successfully", o)
}

// CancelOrderAdmin handles POST /admin/orders/:id/cancel
func (h *OrderHandler) CancelOrderAdmin(c *gin.Context) {
	h.cancel(c, admin(c))
}

func (h *OrderHandler) cancel(c *gin.Context, actor order.Actor) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	o, err := h.orderService.Cancel(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Order cancelled successfully", o)
}
